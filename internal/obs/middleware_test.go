package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/avirag26/scholaro-api/internal/obs"
)

func TestHTTPMetricsUseChiRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("scholaro", []float64{1, 0.1}, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	total := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/api/v1/orders/{id}", "2xx"))
	require.Equal(t, float64(1), total)
	require.NotZero(t, testutil.CollectAndCount(metrics.Latency))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.Active))
}

func TestStatusClass(t *testing.T) {
	require.Equal(t, "2xx", obs.StatusClass(http.StatusCreated))
	require.Equal(t, "4xx", obs.StatusClass(http.StatusConflict))
	require.Equal(t, "5xx", obs.StatusClass(http.StatusBadGateway))
	require.Equal(t, "unknown", obs.StatusClass(0))
}

func TestRequestLoggerSeesInnerAnnotations(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Route("/checkout/sessions/{sessionID}", func(r chi.Router) {
		r.Use(obs.SessionIDMiddleware)
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				obs.InfoFrom(r.Context()).SetUser("u-1", "student")
				next.ServeHTTP(w, r)
			})
		})
		r.Post("/pay", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/checkout/sessions/s-9/pay", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "/checkout/sessions/{sessionID}/pay", line["route"])
	require.Equal(t, float64(http.StatusConflict), line["status"])
	require.Equal(t, "u-1", line["user_id"])
	require.Equal(t, "s-9", line["checkout_session"])
}

func TestSessionIDMiddlewareStoresParam(t *testing.T) {
	var seen string
	r := chi.NewRouter()
	r.With(obs.SessionIDMiddleware).Get("/checkout/sessions/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		seen = obs.SessionIDFromContext(r.Context())
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/checkout/sessions/s-1", nil))
	require.Equal(t, "s-1", seen)
}

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("scholaro", registry)
	obs.MustRegisterDomainMetrics("scholaro", registry)

	obs.IncSessionFailure("user_cancelled")
	require.Equal(t, float64(1), testutil.ToFloat64(obs.SessionFailureTotal.WithLabelValues("user_cancelled")))
}
