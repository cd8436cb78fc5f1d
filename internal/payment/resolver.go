package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-wenjoy/internal/events"
	"github.com/noah-isme/toko-wenjoy/internal/obs"
)

// Resolver verifies gateway callbacks and settles the matching transaction.
type Resolver struct {
	Store Store
	// Acquirers are keyed by Acquirer.ID; transactions name the one they were signed with.
	Acquirers map[string]Acquirer
	Orders    OrderTransitioner
	Events    *events.Bus
	Logger    zerolog.Logger
	Now       func() time.Time
}

// PaymentEvent is the payload emitted when a callback changes a transaction state.
type PaymentEvent struct {
	TransactionID     string  `json:"transactionId"`
	Reference         string  `json:"reference"`
	State             TxState `json:"state"`
	PreviousState     TxState `json:"previousState"`
	Amount            float64 `json:"amount"`
	AcquirerReference string  `json:"acquirerReference,omitempty"`
	StateMessage      string  `json:"stateMessage,omitempty"`
	OrderID           string  `json:"orderId,omitempty"`
	OrderName         string  `json:"orderName,omitempty"`
	CustomerEmail     string  `json:"customerEmail,omitempty"`
}

// ResolveCallback runs the presence check, reference lookup, signature check
// and state transition for one callback. Lookup, verification and the write
// happen inside a single store boundary so concurrent deliveries for the same
// reference serialise on the transaction row.
func (r *Resolver) ResolveCallback(ctx context.Context, fields CallbackFields) (Transaction, error) {
	if r == nil || r.Store == nil {
		return Transaction{}, errors.New("payment resolver not configured")
	}
	ctx, span := otel.Tracer("payment.Resolver").Start(ctx, "PaymentResolver.ResolveCallback")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.provider", ProviderWenjoy),
		attribute.String("payment.reference", fields.Description),
		attribute.String("payment.purchase_state", fields.State),
	)

	result := "error"
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.String("payment.callback.result", result))
		obs.ObserveCallback(fields.State, result)
		obs.ObserveCallbackDuration(result, time.Since(start))
	}()

	if err := fields.Validate(); err != nil {
		result = "malformed"
		return Transaction{}, err
	}

	var (
		transition Transition
		event      PaymentEvent
	)
	err := r.Store.WithinTx(ctx, func(ctx context.Context, q Queries) error {
		matches, err := q.FindByReference(ctx, fields.Description)
		if err != nil {
			return fmt.Errorf("find transaction %s: %w", fields.Description, err)
		}
		switch len(matches) {
		case 0:
			return unknownReference(fields.Description)
		case 1:
		default:
			return ambiguousReference(fields.Description, len(matches))
		}
		tx := matches[0]

		acq, ok := r.Acquirers[tx.AcquirerID]
		if !ok {
			return acquirerNotConfigured(tx.AcquirerID)
		}
		if !VerifyCallbackSignature(acq, fields) {
			return signatureMismatch(fields.Description, fields.Signature)
		}

		transition = ApplyPurchaseState(tx, fields, r.now())
		if transition.Ignored {
			return nil
		}
		if err := q.UpdateTransaction(ctx, transition.Tx); err != nil {
			return fmt.Errorf("update transaction %s: %w", tx.ID, err)
		}
		if !transition.Changed {
			return nil
		}
		event, err = r.applyOrderSideEffects(ctx, q, transition)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownReference):
			result = "unknown_reference"
		case errors.Is(err, ErrAmbiguousReference):
			result = "ambiguous_reference"
		case errors.Is(err, ErrSignatureMismatch):
			result = "invalid_signature"
		}
		span.RecordError(err)
		return Transaction{}, err
	}

	tx := transition.Tx
	log := r.Logger.With().
		Str("reference", tx.Reference).
		Str("from", string(transition.From)).
		Str("state", string(tx.State)).
		Logger()
	switch {
	case transition.Ignored:
		result = "ignored"
		log.Info().Msg("wenjoy callback for settled transaction ignored")
		return tx, nil
	case !transition.Changed:
		result = "unchanged"
		log.Info().Msg("wenjoy callback repeated current state")
		return tx, nil
	}
	result = "applied"
	log.Info().Str("state_message", tx.StateMessage).Msg("wenjoy transaction state updated")
	r.emit(ctx, event)
	return tx, nil
}

func (r *Resolver) applyOrderSideEffects(ctx context.Context, q Queries, t Transition) (PaymentEvent, error) {
	event := PaymentEvent{
		TransactionID:     t.Tx.ID,
		Reference:         t.Tx.Reference,
		State:             t.Tx.State,
		PreviousState:     t.From,
		Amount:            t.Tx.Amount,
		AcquirerReference: t.Tx.AcquirerReference,
		StateMessage:      t.Tx.StateMessage,
	}
	orderID, linked, err := q.LookupOrderForTransaction(ctx, t.Tx.ID)
	if err != nil {
		return event, fmt.Errorf("lookup order for transaction %s: %w", t.Tx.ID, err)
	}
	if !linked {
		return event, nil
	}
	event.OrderID = orderID
	if r.Orders != nil {
		switch t.Tx.State {
		case TxStatePending:
			err = r.Orders.PaymentPending(ctx, q, orderID)
		case TxStateDone:
			err = r.Orders.PaymentDone(ctx, q, orderID)
		}
		if err != nil {
			return event, fmt.Errorf("order %s: %w", orderID, err)
		}
	}
	order, err := q.GetOrder(ctx, orderID)
	if err != nil {
		return event, fmt.Errorf("get order %s: %w", orderID, err)
	}
	event.OrderName = order.Name
	event.CustomerEmail = order.CustomerEmail
	return event, nil
}

// emit runs after commit; a failed notification never undoes a settled payment.
func (r *Resolver) emit(ctx context.Context, event PaymentEvent) {
	if r.Events == nil {
		return
	}
	topic := events.TopicPaymentCanceled
	switch event.State {
	case TxStateDone:
		topic = events.TopicPaymentDone
	case TxStatePending:
		topic = events.TopicPaymentPending
	}
	if _, err := r.Events.Emit(ctx, topic, event.TransactionID, event); err != nil {
		r.Logger.Error().Err(err).Str("topic", topic).Str("reference", event.Reference).Msg("payment event emit failed")
	}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
