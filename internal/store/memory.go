package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-wenjoy/internal/events"
	"github.com/noah-isme/toko-wenjoy/internal/payment"
)

// Memory is an in-process store used when no database is configured and in
// tests. WithinTx holds a store-wide lock and works on a copy of the records,
// so a failing callback leaves nothing behind.
type Memory struct {
	mu   sync.Mutex
	data memData
	evts []events.Event
	now  func() time.Time
}

type memData struct {
	txs    map[string]payment.Transaction
	orders map[string]payment.Order
	links  map[string][]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: memData{
			txs:    map[string]payment.Transaction{},
			orders: map[string]payment.Order{},
			links:  map[string][]string{},
		},
		now: time.Now,
	}
}

// WithinTx implements payment.Store.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, q payment.Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	working := m.data.clone()
	if err := fn(ctx, &memQueries{data: &working}); err != nil {
		return err
	}
	m.data = working
	return nil
}

// FindByReference implements payment.Store.
func (m *Memory) FindByReference(_ context.Context, reference string) ([]payment.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.byReference(reference), nil
}

// SaveOrder inserts or replaces an order.
func (m *Memory) SaveOrder(_ context.Context, order payment.Order) error {
	if order.ID == "" {
		return fmt.Errorf("order id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.orders[order.ID] = order
	return nil
}

// Order returns the stored order.
func (m *Memory) Order(_ context.Context, orderID string) (payment.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.data.orders[orderID]
	if !ok {
		return payment.Order{}, payment.ErrOrderNotFound
	}
	return order, nil
}

// Transactions returns every stored transaction ordered by creation time.
func (m *Memory) Transactions() []payment.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]payment.Transaction, 0, len(m.data.txs))
	for _, tx := range m.data.txs {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// InsertDomainEvent implements events.EventStore.
func (m *Memory) InsertDomainEvent(_ context.Context, ev events.Event) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = m.now().UTC()
	}
	m.evts = append(m.evts, ev)
	return ev, nil
}

// Events returns the recorded domain events in emission order.
func (m *Memory) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Event, len(m.evts))
	copy(out, m.evts)
	return out
}

func (d memData) clone() memData {
	out := memData{
		txs:    make(map[string]payment.Transaction, len(d.txs)),
		orders: make(map[string]payment.Order, len(d.orders)),
		links:  make(map[string][]string, len(d.links)),
	}
	for k, v := range d.txs {
		out.txs[k] = v
	}
	for k, v := range d.orders {
		out.orders[k] = v
	}
	for k, v := range d.links {
		out.links[k] = append([]string(nil), v...)
	}
	return out
}

func (d memData) byReference(reference string) []payment.Transaction {
	var out []payment.Transaction
	for _, tx := range d.txs {
		if tx.Reference == reference {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memQueries struct {
	data *memData
}

func (q *memQueries) FindByReference(_ context.Context, reference string) ([]payment.Transaction, error) {
	return q.data.byReference(reference), nil
}

func (q *memQueries) CreateTransaction(_ context.Context, tx payment.Transaction) (payment.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if _, exists := q.data.txs[tx.ID]; exists {
		return payment.Transaction{}, fmt.Errorf("transaction %s already exists", tx.ID)
	}
	q.data.txs[tx.ID] = tx
	return tx, nil
}

func (q *memQueries) UpdateTransaction(_ context.Context, tx payment.Transaction) error {
	if _, ok := q.data.txs[tx.ID]; !ok {
		return payment.ErrTransactionNotFound
	}
	q.data.txs[tx.ID] = tx
	return nil
}

func (q *memQueries) LinkOrder(_ context.Context, transactionID, orderID string) error {
	if _, ok := q.data.txs[transactionID]; !ok {
		return payment.ErrTransactionNotFound
	}
	if _, ok := q.data.orders[orderID]; !ok {
		return payment.ErrOrderNotFound
	}
	for _, existing := range q.data.links[transactionID] {
		if existing == orderID {
			return nil
		}
	}
	q.data.links[transactionID] = append(q.data.links[transactionID], orderID)
	return nil
}

func (q *memQueries) LookupOrderForTransaction(_ context.Context, transactionID string) (string, bool, error) {
	linked := q.data.links[transactionID]
	if len(linked) == 0 {
		return "", false, nil
	}
	return linked[0], true, nil
}

func (q *memQueries) GetOrder(_ context.Context, orderID string) (payment.Order, error) {
	order, ok := q.data.orders[orderID]
	if !ok {
		return payment.Order{}, payment.ErrOrderNotFound
	}
	return order, nil
}

func (q *memQueries) UpdateOrderState(_ context.Context, orderID string, state payment.OrderState) error {
	order, ok := q.data.orders[orderID]
	if !ok {
		return payment.ErrOrderNotFound
	}
	order.State = state
	q.data.orders[orderID] = order
	return nil
}
