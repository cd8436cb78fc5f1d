package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-wenjoy/internal/common"
	"github.com/noah-isme/toko-wenjoy/internal/obs"
)

// Handler exposes the storefront-facing payment endpoints.
type Handler struct {
	Svc      *Service
	Store    Store
	Validate *validator.Validate
}

// Checkout returns the signed form the storefront auto-submits to the gateway.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.Reference = strings.TrimSpace(req.Reference)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	if err := h.validator().Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid checkout request", validationDetails(err))
		return
	}
	obs.Annotate(r.Context(), "business_reference", req.Reference)
	form, err := h.Svc.BuildCheckoutPayload(r.Context(), req)
	if err != nil {
		common.WriteError(w, err, "CHECKOUT_FAILED")
		return
	}
	obs.Annotate(r.Context(), "reference", form.Reference)
	common.JSON(w, http.StatusOK, form)
}

// Transaction reports the stored state of a transaction by reference.
func (h *Handler) Transaction(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "reference is required", nil)
		return
	}
	matches, err := h.Store.FindByReference(r.Context(), reference)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "STATUS_ERROR", err.Error(), nil)
		return
	}
	switch len(matches) {
	case 0:
		common.JSONError(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "transaction not found", nil)
	case 1:
		common.JSON(w, http.StatusOK, matches[0])
	default:
		common.WriteError(w, ambiguousReference(reference, len(matches)), "STATUS_ERROR")
	}
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New(validator.WithRequiredStructEnabled())
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Namespace()] = fe.Tag()
	}
	return details
}
