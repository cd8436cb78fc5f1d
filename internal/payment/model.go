package payment

import (
	"context"
	"time"
)

// TxState is the lifecycle state of a payment transaction.
type TxState string

const (
	TxStateDraft   TxState = "draft"
	TxStatePending TxState = "pending"
	TxStateDone    TxState = "done"
	TxStateCancel  TxState = "cancel"
	TxStateError   TxState = "error"
)

// Live reports whether a transaction in this state may still be settled by the
// gateway under its current reference.
func (s TxState) Live() bool {
	return s == TxStatePending || s == TxStateDone
}

// OrderState is the state of the sale order paid by a transaction.
type OrderState string

const (
	OrderStateDraft     OrderState = "draft"
	OrderStateSent      OrderState = "sent"
	OrderStateConfirmed OrderState = "confirmed"
	OrderStateCancel    OrderState = "cancel"
)

// Transaction is one payment attempt tracked by the host system.
type Transaction struct {
	ID                string     `json:"id"`
	Reference         string     `json:"reference"`
	AcquirerID        string     `json:"acquirerId"`
	Amount            float64    `json:"amount"`
	State             TxState    `json:"state"`
	AcquirerReference string     `json:"acquirerReference,omitempty"`
	StateMessage      string     `json:"stateMessage,omitempty"`
	PaidAt            *time.Time `json:"paidAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Order is the external sale order linked to a transaction.
type Order struct {
	ID            string
	Name          string
	State         OrderState
	CustomerEmail string
	AmountTotal   float64
}

// Store opens the consistency boundary used by checkout and callback processing.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
	FindByReference(ctx context.Context, reference string) ([]Transaction, error)
}

// Queries are the record operations available inside a consistency boundary.
// Reads through FindByReference and GetOrder lock the returned rows until the
// boundary closes.
type Queries interface {
	FindByReference(ctx context.Context, reference string) ([]Transaction, error)
	CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	UpdateTransaction(ctx context.Context, tx Transaction) error
	LinkOrder(ctx context.Context, transactionID, orderID string) error
	LookupOrderForTransaction(ctx context.Context, transactionID string) (string, bool, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	UpdateOrderState(ctx context.Context, orderID string, state OrderState) error
}

// OrderTransitioner applies the order side effects of a transaction state change.
type OrderTransitioner interface {
	PaymentPending(ctx context.Context, q Queries, orderID string) error
	PaymentDone(ctx context.Context, q Queries, orderID string) error
}
