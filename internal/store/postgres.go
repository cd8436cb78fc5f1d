package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-wenjoy/internal/events"
	"github.com/noah-isme/toko-wenjoy/internal/payment"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists transactions, orders and domain events with pgx.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

// WithinTx implements payment.Store. Rows read through the supplied queries
// are locked FOR UPDATE until the transaction ends.
func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, q payment.Queries) error) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(ctx, pgQueries{db: tx, lock: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// FindByReference implements payment.Store.
func (p *Postgres) FindByReference(ctx context.Context, reference string) ([]payment.Transaction, error) {
	return pgQueries{db: p.Pool}.FindByReference(ctx, reference)
}

// SaveOrder inserts or replaces an order.
func (p *Postgres) SaveOrder(ctx context.Context, order payment.Order) error {
	_, err := p.Pool.Exec(ctx, `
INSERT INTO sale_orders (id, name, state, customer_email, amount_total)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  state = EXCLUDED.state,
  customer_email = EXCLUDED.customer_email,
  amount_total = EXCLUDED.amount_total,
  updated_at = now()`,
		order.ID, order.Name, string(order.State), order.CustomerEmail, order.AmountTotal)
	return err
}

// Order returns the stored order.
func (p *Postgres) Order(ctx context.Context, orderID string) (payment.Order, error) {
	return pgQueries{db: p.Pool}.GetOrder(ctx, orderID)
}

// InsertDomainEvent implements events.EventStore.
func (p *Postgres) InsertDomainEvent(ctx context.Context, ev events.Event) (events.Event, error) {
	row := p.Pool.QueryRow(ctx, `
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id::text, occurred_at`,
		ev.Topic, ev.AggregateID, []byte(ev.Payload))
	if err := row.Scan(&ev.ID, &ev.OccurredAt); err != nil {
		return events.Event{}, err
	}
	return ev, nil
}

// Ping reports whether the database answers.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

const transactionColumns = `id::text, reference, acquirer_id, amount::float8, state,
  acquirer_reference, state_message, paid_at, created_at, updated_at`

type pgQueries struct {
	db   dbtx
	lock bool
}

func (q pgQueries) forUpdate() string {
	if q.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (q pgQueries) FindByReference(ctx context.Context, reference string) ([]payment.Transaction, error) {
	rows, err := q.db.Query(ctx, `SELECT `+transactionColumns+`
FROM payment_transactions
WHERE reference = $1
ORDER BY id`+q.forUpdate(), reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []payment.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (q pgQueries) CreateTransaction(ctx context.Context, tx payment.Transaction) (payment.Transaction, error) {
	row := q.db.QueryRow(ctx, `
INSERT INTO payment_transactions
  (id, reference, acquirer_id, amount, state, acquirer_reference, state_message, paid_at, created_at, updated_at)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+transactionColumns,
		tx.ID, tx.Reference, tx.AcquirerID, tx.Amount, string(tx.State),
		tx.AcquirerReference, tx.StateMessage, tx.PaidAt, tx.CreatedAt, tx.UpdatedAt)
	return scanTransaction(row)
}

func (q pgQueries) UpdateTransaction(ctx context.Context, tx payment.Transaction) error {
	tag, err := q.db.Exec(ctx, `
UPDATE payment_transactions SET
  reference = $2,
  acquirer_id = $3,
  amount = $4,
  state = $5,
  acquirer_reference = $6,
  state_message = $7,
  paid_at = $8,
  updated_at = $9
WHERE id = $1::uuid`,
		tx.ID, tx.Reference, tx.AcquirerID, tx.Amount, string(tx.State),
		tx.AcquirerReference, tx.StateMessage, tx.PaidAt, tx.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrTransactionNotFound
	}
	return nil
}

func (q pgQueries) LinkOrder(ctx context.Context, transactionID, orderID string) error {
	_, err := q.db.Exec(ctx, `
INSERT INTO sale_order_transaction_rel (order_id, transaction_id)
VALUES ($1, $2::uuid)
ON CONFLICT DO NOTHING`, orderID, transactionID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return payment.ErrOrderNotFound
	}
	return err
}

func (q pgQueries) LookupOrderForTransaction(ctx context.Context, transactionID string) (string, bool, error) {
	var orderID string
	err := q.db.QueryRow(ctx, `
SELECT order_id FROM sale_order_transaction_rel
WHERE transaction_id = $1::uuid
ORDER BY order_id
LIMIT 1`, transactionID).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return orderID, true, nil
}

func (q pgQueries) GetOrder(ctx context.Context, orderID string) (payment.Order, error) {
	var (
		order payment.Order
		state string
	)
	err := q.db.QueryRow(ctx, `
SELECT id, name, state, customer_email, amount_total::float8
FROM sale_orders
WHERE id = $1`+q.forUpdate(), orderID).
		Scan(&order.ID, &order.Name, &state, &order.CustomerEmail, &order.AmountTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return payment.Order{}, payment.ErrOrderNotFound
	}
	if err != nil {
		return payment.Order{}, err
	}
	order.State = payment.OrderState(state)
	return order, nil
}

func (q pgQueries) UpdateOrderState(ctx context.Context, orderID string, state payment.OrderState) error {
	tag, err := q.db.Exec(ctx, `
UPDATE sale_orders SET state = $2, updated_at = now()
WHERE id = $1`, orderID, string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrOrderNotFound
	}
	return nil
}

func scanTransaction(row pgx.Row) (payment.Transaction, error) {
	var (
		tx    payment.Transaction
		state string
	)
	if err := row.Scan(
		&tx.ID, &tx.Reference, &tx.AcquirerID, &tx.Amount, &state,
		&tx.AcquirerReference, &tx.StateMessage, &tx.PaidAt, &tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return payment.Transaction{}, err
	}
	tx.State = payment.TxState(state)
	return tx, nil
}
