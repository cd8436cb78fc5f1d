package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-wenjoy/internal/common"
	"github.com/noah-isme/toko-wenjoy/internal/payment"
)

// Repository reads and writes sale orders outside a payment boundary.
type Repository interface {
	SaveOrder(ctx context.Context, order payment.Order) error
	Order(ctx context.Context, orderID string) (payment.Order, error)
}

// Handler lets the storefront register the orders it collects payment for.
type Handler struct {
	Repo     Repository
	Validate *validator.Validate
}

type upsertReq struct {
	Name          string  `json:"name" validate:"max=128"`
	CustomerEmail string  `json:"customerEmail" validate:"omitempty,email"`
	AmountTotal   float64 `json:"amountTotal" validate:"gte=0"`
}

type orderResp struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	State         payment.OrderState `json:"state"`
	CustomerEmail string             `json:"customerEmail,omitempty"`
	AmountTotal   float64            `json:"amountTotal"`
}

// Upsert creates or updates a draft order. Orders that already moved past
// draft keep their state.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order repository not configured", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	var req upsertReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := h.validator().Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	state := payment.OrderStateDraft
	existing, err := h.Repo.Order(r.Context(), orderID)
	switch {
	case err == nil:
		state = existing.State
	case !errors.Is(err, payment.ErrOrderNotFound):
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	order := payment.Order{
		ID:            orderID,
		Name:          strings.TrimSpace(req.Name),
		State:         state,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		AmountTotal:   req.AmountTotal,
	}
	if err := h.Repo.SaveOrder(r.Context(), order); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save order", nil)
		return
	}
	common.JSON(w, http.StatusOK, toResp(order))
}

// Get returns one order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order repository not configured", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	order, err := h.Repo.Order(r.Context(), orderID)
	if errors.Is(err, payment.ErrOrderNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	common.JSON(w, http.StatusOK, toResp(order))
}

func (h *Handler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return validator.New()
}

func toResp(o payment.Order) orderResp {
	return orderResp{
		ID:            o.ID,
		Name:          o.Name,
		State:         o.State,
		CustomerEmail: o.CustomerEmail,
		AmountTotal:   o.AmountTotal,
	}
}
