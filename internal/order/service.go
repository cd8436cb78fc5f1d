package order

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-wenjoy/internal/common"
	"github.com/noah-isme/toko-wenjoy/internal/payment"
)

// Service applies sale order side effects of payment state changes.
type Service struct {
	Mailer common.EmailSender
	Logger zerolog.Logger
}

var _ payment.OrderTransitioner = (*Service)(nil)

// PaymentPending sends the quotation to the customer and marks a draft order as sent.
func (s *Service) PaymentPending(ctx context.Context, q payment.Queries, orderID string) error {
	order, err := q.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.State != payment.OrderStateDraft {
		return nil
	}
	if err := s.sendQuotation(order); err != nil {
		return err
	}
	return q.UpdateOrderState(ctx, orderID, payment.OrderStateSent)
}

// PaymentDone confirms a draft or sent order. Draft orders get their
// quotation sent first so the customer always receives it.
func (s *Service) PaymentDone(ctx context.Context, q payment.Queries, orderID string) error {
	order, err := q.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	switch order.State {
	case payment.OrderStateDraft:
		if err := s.sendQuotation(order); err != nil {
			return err
		}
	case payment.OrderStateSent:
	default:
		s.Logger.Warn().
			Str("order_id", order.ID).
			Str("state", string(order.State)).
			Msg("paid order not confirmed from its current state")
		return nil
	}
	return q.UpdateOrderState(ctx, orderID, payment.OrderStateConfirmed)
}

func (s *Service) sendQuotation(order payment.Order) error {
	to := strings.TrimSpace(order.CustomerEmail)
	if to == "" || s.Mailer == nil {
		return nil
	}
	name := order.Name
	if name == "" {
		name = order.ID
	}
	subject := fmt.Sprintf("Quotation %s", name)
	body := fmt.Sprintf("<p>Your quotation <strong>%s</strong> amounts to %.2f.</p>", html.EscapeString(name), order.AmountTotal)
	if err := s.Mailer.Send(to, subject, body); err != nil {
		return fmt.Errorf("send quotation %s: %w", order.ID, err)
	}
	return nil
}
