package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-wenjoy/internal/payment"
	"github.com/noah-isme/toko-wenjoy/internal/store"
)

func withReference(r *http.Request, reference string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("reference", reference)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestCheckoutHandlerReturnsSignedForm(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.SaveOrder(context.Background(), payment.Order{ID: "SO042", State: payment.OrderStateDraft}))
	h := &payment.Handler{Svc: newService(mem), Store: mem}

	body := `{"reference":"SO042-1","orderId":"SO042","amount":150000,"customer":{"email":"buyer@example.com","firstName":"Ana","lastName":"Gomez"}}`
	rr := httptest.NewRecorder()
	h.Checkout(rr, httptest.NewRequest(http.MethodPost, "/api/v1/payments/wenjoy/checkout", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		ActionURL string            `json:"actionUrl"`
		Reference string            `json:"reference"`
		Fields    map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "regenerated-ref", resp.Reference)
	require.Equal(t, "150000", resp.Fields[payment.FieldTotalValue])
	require.NotEmpty(t, resp.Fields[payment.FieldSignature])
	require.NotContains(t, rr.Body.String(), "priv-key")
}

func TestCheckoutHandlerValidatesInput(t *testing.T) {
	h := &payment.Handler{Svc: newService(store.NewMemory())}
	cases := map[string]string{
		"bad json":      `{`,
		"missing email": `{"reference":"R1","amount":10,"customer":{"firstName":"A","lastName":"B"}}`,
		"zero amount":   `{"reference":"R1","amount":0,"customer":{"email":"a@example.com","firstName":"A","lastName":"B"}}`,
		"tilde in ref":  `{"reference":"R~1","amount":10,"customer":{"email":"a@example.com","firstName":"A","lastName":"B"}}`,
		"missing ref":   `{"amount":10,"customer":{"email":"a@example.com","firstName":"A","lastName":"B"}}`,
		"invalid email": `{"reference":"R1","amount":10,"customer":{"email":"nope","firstName":"A","lastName":"B"}}`,
	}
	for name, body := range cases {
		rr := httptest.NewRecorder()
		h.Checkout(rr, httptest.NewRequest(http.MethodPost, "/api/v1/payments/wenjoy/checkout", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rr.Code, name)
	}
}

func TestTransactionHandler(t *testing.T) {
	mem := store.NewMemory()
	seedTransaction(t, mem, payment.Transaction{ID: "tx-1", Reference: "SO042-1", State: payment.TxStatePending})
	h := &payment.Handler{Store: mem}

	rr := httptest.NewRecorder()
	h.Transaction(rr, withReference(httptest.NewRequest(http.MethodGet, "/api/v1/payments/wenjoy/transactions/SO042-1", nil), "SO042-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	var tx payment.Transaction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tx))
	require.Equal(t, payment.TxStatePending, tx.State)

	rr = httptest.NewRecorder()
	h.Transaction(rr, withReference(httptest.NewRequest(http.MethodGet, "/api/v1/payments/wenjoy/transactions/x", nil), "x"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
