package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-wenjoy/internal/common"
	"github.com/noah-isme/toko-wenjoy/internal/payment"
)

type stubResolver struct {
	err error
}

func (s stubResolver) ResolveCallback(context.Context, payment.CallbackFields) (payment.Transaction, error) {
	return payment.Transaction{}, s.err
}

func callbackForm(fields payment.CallbackFields) url.Values {
	form := url.Values{}
	for k, v := range fields.Raw {
		form.Set(k, v)
	}
	return form
}

func postCallback(h payment.Webhook, form url.Values, wantJSON bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, payment.CallbackPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if wantJSON {
		req.Header.Set("Accept", "application/json")
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	return rr
}

func newReplay(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWebhookRedirectsBrowserToProcessPage(t *testing.T) {
	f := newResolverFixture(t, payment.TxStateDraft)
	h := payment.Webhook{Resolver: f.resolver}

	rr := postCallback(h, callbackForm(signedCallback(payment.PurchaseFinished)), false)
	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, payment.ProcessPath, rr.Header().Get("Location"))
	require.Equal(t, payment.TxStateDone, f.tx(t).State)
}

func TestWebhookJSONResponse(t *testing.T) {
	f := newResolverFixture(t, payment.TxStateDraft)
	h := payment.Webhook{Resolver: f.resolver}

	rr := postCallback(h, callbackForm(signedCallback(payment.PurchaseStarted)), true)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "SO042-1", body["reference"])
	require.Equal(t, "pending", body["state"])
}

func TestWebhookAcceptsQueryStringAndJSONBody(t *testing.T) {
	f := newResolverFixture(t, payment.TxStateDraft)
	h := payment.Webhook{Resolver: f.resolver}

	query := callbackForm(signedCallback(payment.PurchaseStarted)).Encode()
	req := httptest.NewRequest(http.MethodGet, payment.CallbackPath+"?"+query, nil)
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, payment.TxStatePending, f.tx(t).State)

	payload, err := json.Marshal(signedCallback(payment.PurchaseFinished).Raw)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, payment.CallbackPath, strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	h.Handle(rr, req)
	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, payment.TxStateDone, f.tx(t).State)
}

func TestWebhookErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(f resolverFixture, fields *payment.CallbackFields)
		status int
		code   string
	}{
		{
			name:   "malformed",
			mutate: func(_ resolverFixture, fields *payment.CallbackFields) { delete(fields.Raw, payment.FieldPurchaseSignature) },
			status: http.StatusBadRequest,
			code:   "WENJOY_MALFORMED_CALLBACK",
		},
		{
			name: "unknown reference",
			mutate: func(_ resolverFixture, fields *payment.CallbackFields) {
				fields.Raw[payment.FieldPurchaseDescription] = "missing"
			},
			status: http.StatusNotFound,
			code:   "WENJOY_UNKNOWN_REFERENCE",
		},
		{
			name: "ambiguous reference",
			mutate: func(f resolverFixture, _ *payment.CallbackFields) {
				_ = f.mem.WithinTx(context.Background(), func(ctx context.Context, q payment.Queries) error {
					_, err := q.CreateTransaction(ctx, payment.Transaction{ID: "tx-2", Reference: "SO042-1", AcquirerID: testAcquirer.ID})
					return err
				})
			},
			status: http.StatusConflict,
			code:   "WENJOY_AMBIGUOUS_REFERENCE",
		},
		{
			name: "signature mismatch",
			mutate: func(_ resolverFixture, fields *payment.CallbackFields) {
				fields.Raw[payment.FieldPurchaseTotalValue] = "1"
			},
			status: http.StatusUnauthorized,
			code:   "WENJOY_INVALID_SIGNATURE",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newResolverFixture(t, payment.TxStateDraft)
			fields := signedCallback(payment.PurchaseFinished)
			tc.mutate(f, &fields)

			rr := postCallback(payment.Webhook{Resolver: f.resolver}, callbackForm(fields), false)
			require.Equal(t, tc.status, rr.Code)
			var body struct {
				Error common.ErrorBody `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, tc.code, body.Error.Code)
			require.NotContains(t, rr.Body.String(), "priv-key")
		})
	}
}

func TestWebhookUnexpectedFailureIs500(t *testing.T) {
	h := payment.Webhook{Resolver: stubResolver{err: errors.New("db down")}}
	rr := postCallback(h, callbackForm(signedCallback(payment.PurchaseFinished)), false)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestWebhookReplayGuardAcknowledgesDuplicates(t *testing.T) {
	f := newResolverFixture(t, payment.TxStateDraft)
	_, client := newReplay(t)
	h := payment.Webhook{Resolver: f.resolver, Replay: client, ReplayTTL: time.Minute}
	form := callbackForm(signedCallback(payment.PurchaseFinished))

	first := postCallback(h, form, true)
	require.Equal(t, http.StatusOK, first.Code)

	second := postCallback(h, form, true)
	require.Equal(t, http.StatusOK, second.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	require.Equal(t, true, body["duplicate"])

	require.Equal(t, 1, f.orders.done)
	require.Len(t, f.mem.Events(), 1)
}

func TestWebhookReplayGuardReleasedOnFailure(t *testing.T) {
	mr, client := newReplay(t)
	h := payment.Webhook{Resolver: stubResolver{err: errors.New("db down")}, Replay: client, ReplayTTL: time.Minute}
	fields := signedCallback(payment.PurchaseFinished)

	rr := postCallback(h, callbackForm(fields), false)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.False(t, mr.Exists("wj:"+common.FieldsDigest(fields.Raw)))

	f := newResolverFixture(t, payment.TxStateDraft)
	h.Resolver = f.resolver
	rr = postCallback(h, callbackForm(fields), false)
	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, payment.TxStateDone, f.tx(t).State)
}
