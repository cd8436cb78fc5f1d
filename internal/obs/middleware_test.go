package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-wenjoy/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("wenjoy", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	req := httptest.NewRequest(http.MethodPost, "/payment/wenjoy/response", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/payment/wenjoy/response"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/payment/wenjoy/response", "302"))
	require.Equal(t, float64(1), total)
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("wenjoy", nil, registry)
	second := obs.NewHTTPMetrics("wenjoy", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestRequestLoggerWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Get("/api/v1/payments/wenjoy/transactions/{reference}", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside handler")
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/payments/wenjoy/transactions/abc", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.Equal(t, "inside handler", inner["message"])
	require.NotEmpty(t, inner["request_id"])

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "/api/v1/payments/wenjoy/transactions/{reference}", entry["route"])
	require.EqualValues(t, 200, entry["status"])
}

func TestObserveHelpersNoopWithoutRegistration(t *testing.T) {
	require.NotPanics(t, func() {
		obs.ObserveCallback("PURCHASE_FINISHED", "success")
		obs.ObserveCheckout("test", "success")
		obs.ObserveCallbackDuration("applied", 0)
	})
}

func TestRequestLoggerCarriesPaymentAnnotations(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Post("/payment/wenjoy/response", func(w http.ResponseWriter, r *http.Request) {
		obs.Annotate(r.Context(), "purchase_description", "SO042-1")
		obs.Annotate(r.Context(), "purchase_state", "PURCHASE_FINISHED")
		w.WriteHeader(http.StatusUnauthorized)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payment/wenjoy/response", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "SO042-1", entry["purchase_description"])
	require.Equal(t, "PURCHASE_FINISHED", entry["purchase_state"])
}

func TestRequestLoggerLevelsByStatus(t *testing.T) {
	cases := map[int]string{
		http.StatusFound:               "info",
		http.StatusConflict:            "warn",
		http.StatusInternalServerError: "error",
	}
	for status, level := range cases {
		var buf bytes.Buffer
		handler := obs.RequestLogger{Logger: obs.NewLoggerTo(&buf, "json", "info")}.Middleware(
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(status) }))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/payment/process", nil))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		require.Equal(t, level, entry["level"], "status %d", status)
	}
}

func TestAnnotateOutsideRequestLoggerIsNoop(t *testing.T) {
	require.NotPanics(t, func() {
		obs.Annotate(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "reference", "x")
	})
}
