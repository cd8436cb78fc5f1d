package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// TypePaymentFulfill is the asynq task type processed after a payment settles.
const TypePaymentFulfill = "payment:fulfill"

// FulfillPayload is the task body. Field names follow the payment event payload
// so the event can be decoded straight into it.
type FulfillPayload struct {
	TransactionID string  `json:"transactionId"`
	Reference     string  `json:"reference"`
	Amount        float64 `json:"amount"`
	OrderID       string  `json:"orderId,omitempty"`
	OrderName     string  `json:"orderName,omitempty"`
	CustomerEmail string  `json:"customerEmail,omitempty"`
}

// TaskID dedupes fulfillment per transaction.
func (p FulfillPayload) TaskID() string {
	return "fulfill:" + p.TransactionID
}

// NewFulfillTask encodes the payload into an asynq task.
func NewFulfillTask(p FulfillPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if strings.TrimSpace(p.TransactionID) == "" {
		return nil, fmt.Errorf("queue: fulfill task requires a transaction id")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: encode fulfill payload: %w", err)
	}
	return asynq.NewTask(TypePaymentFulfill, raw, opts...), nil
}
