package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-wenjoy/internal/common"
)

// FulfillmentHandler notifies the customer once their payment is confirmed.
type FulfillmentHandler struct {
	Mailer common.EmailSender
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h FulfillmentHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p FulfillPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		TasksProcessedTotal.WithLabelValues(t.Type(), "invalid").Inc()
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	log := h.Logger.With().Str("task", t.Type()).Str("reference", p.Reference).Str("order_id", p.OrderID).Logger()

	to := strings.TrimSpace(p.CustomerEmail)
	if to == "" || h.Mailer == nil {
		log.Info().Msg("payment fulfilled without customer notification")
		TasksProcessedTotal.WithLabelValues(t.Type(), "skipped").Inc()
		return nil
	}
	name := p.OrderName
	if name == "" {
		name = p.Reference
	}
	subject := fmt.Sprintf("Payment received for %s", name)
	body := fmt.Sprintf("<p>We received your payment of %.2f for <strong>%s</strong> (reference %s).</p>",
		p.Amount, html.EscapeString(name), html.EscapeString(p.Reference))
	if err := h.Mailer.Send(to, subject, body); err != nil {
		TasksProcessedTotal.WithLabelValues(t.Type(), "error").Inc()
		return fmt.Errorf("send payment confirmation: %w", err)
	}
	TasksProcessedTotal.WithLabelValues(t.Type(), "ok").Inc()
	log.Info().Msg("payment confirmation sent")
	return nil
}

// NewServeMux routes the fulfillment task types to their handlers.
func NewServeMux(h FulfillmentHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypePaymentFulfill, h)
	return mux
}
