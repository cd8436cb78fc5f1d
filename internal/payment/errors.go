package payment

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/toko-wenjoy/internal/common"
)

var (
	// ErrMalformedCallback indicates a callback without one of the required purchase fields.
	ErrMalformedCallback = errors.New("wenjoy: malformed callback")
	// ErrUnknownReference indicates no transaction carries the callback reference.
	ErrUnknownReference = errors.New("wenjoy: unknown reference")
	// ErrAmbiguousReference indicates several transactions carry the callback reference.
	ErrAmbiguousReference = errors.New("wenjoy: ambiguous reference")
	// ErrSignatureMismatch indicates the callback signature does not match the recomputed one.
	ErrSignatureMismatch = errors.New("wenjoy: signature mismatch")
	// ErrAcquirerNotConfigured indicates a transaction points at an acquirer this service does not know.
	ErrAcquirerNotConfigured = errors.New("wenjoy: acquirer not configured")
	// ErrOrderNotFound is returned by stores when an order id has no record.
	ErrOrderNotFound = errors.New("payment: order not found")
	// ErrTransactionNotFound is returned by stores when a transaction id has no record.
	ErrTransactionNotFound = errors.New("payment: transaction not found")
)

func malformedCallback(reference, signature string) error {
	msg := fmt.Sprintf("Wenjoy: received data with missing reference (%s) or sign (%s)", reference, signature)
	return common.NewAppError("WENJOY_MALFORMED_CALLBACK", msg, http.StatusBadRequest, ErrMalformedCallback)
}

func unknownReference(reference string) error {
	msg := fmt.Sprintf("Wenjoy: received data for reference %s; no order found", reference)
	return common.NewAppError("WENJOY_UNKNOWN_REFERENCE", msg, http.StatusNotFound, ErrUnknownReference)
}

func ambiguousReference(reference string, matches int) error {
	msg := fmt.Sprintf("Wenjoy: received data for reference %s; multiple orders found (%d)", reference, matches)
	return common.NewAppError("WENJOY_AMBIGUOUS_REFERENCE", msg, http.StatusConflict, ErrAmbiguousReference)
}

func signatureMismatch(reference, received string) error {
	msg := fmt.Sprintf("Wenjoy: invalid sign for reference %s, received %s", reference, received)
	return common.NewAppError("WENJOY_INVALID_SIGNATURE", msg, http.StatusUnauthorized, ErrSignatureMismatch)
}

func acquirerNotConfigured(id string) error {
	msg := fmt.Sprintf("Wenjoy: acquirer %q is not configured", id)
	return common.NewAppError("WENJOY_ACQUIRER_MISSING", msg, http.StatusInternalServerError, ErrAcquirerNotConfigured)
}
