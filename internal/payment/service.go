package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-pay/gopay"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/toko-wenjoy/internal/obs"
)

// Locker serialises work on one business key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Customer identifies the payer on the checkout form.
type Customer struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required,max=128"`
	LastName  string `json:"lastName" validate:"required,max=128"`
}

// CheckoutRequest carries what the storefront knows when the customer pays.
type CheckoutRequest struct {
	Reference string   `json:"reference" validate:"required,max=128,excludesall=~"`
	OrderID   string   `json:"orderId,omitempty" validate:"omitempty,max=64"`
	Amount    float64  `json:"amount" validate:"gt=0"`
	Customer  Customer `json:"customer" validate:"required"`
}

// CheckoutForm is the signed payload a browser posts to the gateway.
type CheckoutForm struct {
	ActionURL string        `json:"actionUrl"`
	Reference string        `json:"reference"`
	Fields    gopay.BodyMap `json:"fields"`
}

// Service builds signed checkout payloads.
type Service struct {
	Store    Store
	Acquirer Acquirer
	Locker   Locker
	LockTTL  time.Duration
	Logger   zerolog.Logger
	// NewReference mints replacement references; uuid.NewString when nil.
	NewReference func() string
	Now          func() time.Time
}

// TotalValue is the integer amount sent to and signed for the gateway.
// Fractional amounts are rounded half to even and never corrected later.
func TotalValue(amount float64) int64 {
	return int64(math.RoundToEven(amount))
}

// BuildCheckoutPayload resolves the reference to send for req and returns the
// signed form. A transaction under req.Reference that is neither pending nor
// done is moved to a freshly minted reference before signing, so a stale
// record can never be settled with a different amount.
func (s *Service) BuildCheckoutPayload(ctx context.Context, req CheckoutRequest) (CheckoutForm, error) {
	var zero CheckoutForm
	if s == nil || s.Store == nil {
		return zero, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.BuildCheckoutPayload")
	defer span.End()

	environment := s.Acquirer.Environment()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", ProviderWenjoy),
			attribute.String("payment.environment", environment),
			attribute.String("payment.checkout.result", result),
		)
		obs.ObserveCheckout(environment, result)
	}()

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return zero, errors.New("checkout reference is required")
	}
	if strings.Contains(reference, signSeparator) {
		return zero, fmt.Errorf("checkout reference must not contain %q", signSeparator)
	}
	span.SetAttributes(attribute.String("payment.business_reference", reference))

	var tx Transaction
	resolve := func(ctx context.Context) error {
		return s.Store.WithinTx(ctx, func(ctx context.Context, q Queries) error {
			var err error
			tx, err = s.resolveReference(ctx, q, reference, req)
			return err
		})
	}
	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, "checkout:"+reference, s.LockTTL, resolve)
	} else {
		err = resolve(ctx)
	}
	if err != nil {
		span.RecordError(err)
		return zero, err
	}

	fields := s.formFields(tx, req)
	result = "success"
	s.Logger.Info().
		Object("acquirer", s.Acquirer).
		Str("business_reference", reference).
		Str("reference", tx.Reference).
		Str("total_value", fields.GetString(FieldTotalValue)).
		Msg("wenjoy checkout payload built")
	return CheckoutForm{
		ActionURL: s.Acquirer.FormActionURL(),
		Reference: tx.Reference,
		Fields:    fields,
	}, nil
}

func (s *Service) resolveReference(ctx context.Context, q Queries, reference string, req CheckoutRequest) (Transaction, error) {
	existing, err := q.FindByReference(ctx, reference)
	if err != nil {
		return Transaction{}, fmt.Errorf("find transaction %s: %w", reference, err)
	}
	if len(existing) > 1 {
		return Transaction{}, ambiguousReference(reference, len(existing))
	}
	if len(existing) == 1 && existing[0].State.Live() {
		return existing[0], nil
	}

	now := s.now()
	fresh := s.mintReference()
	obs.ObserveReferenceRegeneration()

	if len(existing) == 1 {
		tx := existing[0]
		s.Logger.Info().
			Str("previous_reference", tx.Reference).
			Str("reference", fresh).
			Str("state", string(tx.State)).
			Msg("wenjoy transaction reference regenerated")
		tx.Reference = fresh
		tx.Amount = req.Amount
		tx.AcquirerID = s.Acquirer.ID
		tx.State = TxStateDraft
		tx.AcquirerReference = ""
		tx.StateMessage = ""
		tx.PaidAt = nil
		tx.UpdatedAt = now
		if err := q.UpdateTransaction(ctx, tx); err != nil {
			return Transaction{}, fmt.Errorf("update transaction %s: %w", tx.ID, err)
		}
		return tx, linkOrder(ctx, q, tx.ID, req.OrderID)
	}

	tx, err := q.CreateTransaction(ctx, Transaction{
		ID:         uuid.NewString(),
		Reference:  fresh,
		AcquirerID: s.Acquirer.ID,
		Amount:     req.Amount,
		State:      TxStateDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return tx, linkOrder(ctx, q, tx.ID, req.OrderID)
}

func linkOrder(ctx context.Context, q Queries, transactionID, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil
	}
	if err := q.LinkOrder(ctx, transactionID, orderID); err != nil {
		return fmt.Errorf("link order %s: %w", orderID, err)
	}
	return nil
}

// formFields signs the stored transaction amount, so a reused live reference
// keeps the total it was first signed with whatever the request carries.
func (s *Service) formFields(tx Transaction, req CheckoutRequest) gopay.BodyMap {
	callbackURL := s.Acquirer.CallbackURL()
	fields := make(gopay.BodyMap)
	fields.Set(FieldTotalValue, strconv.FormatInt(TotalValue(tx.Amount), 10)).
		Set(FieldDescription, tx.Reference).
		Set(FieldAPIKey, s.Acquirer.APIKey).
		Set(FieldVerify, "false").
		Set(FieldOwnerEmail, req.Customer.Email).
		Set(FieldOwnerFirstName, req.Customer.FirstName).
		Set(FieldOwnerLastName, req.Customer.LastName).
		Set(FieldResponseURL, callbackURL).
		Set(FieldConfirmationURL, callbackURL)
	fields.Set(FieldSignature, GenerateSign(s.Acquirer, fields, false))
	return fields
}

func (s *Service) mintReference() string {
	if s.NewReference != nil {
		return s.NewReference()
	}
	return uuid.NewString()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
