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
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-agency/internal/obs"
)

func newRouter(t *testing.T, buf *bytes.Buffer) (*chi.Mux, *obs.HTTPMetrics) {
	t.Helper()
	metrics := obs.NewHTTPMetrics("agency", []float64{1, 10}, prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(obs.HTTP{Metrics: metrics, Logger: obs.NewLoggerTo(buf, "agency-api", "json", "debug")}.Middleware)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/invoices/{invoiceId}", func(w http.ResponseWriter, r *http.Request) {
			obs.SetActor(r.Context(), "user-1", "tenant-1")
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r, metrics
}

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	r, metrics := newRouter(t, &buf)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/3f1e1f7e", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/invoices/{invoiceId}", "204"))
	require.Equal(t, float64(1), total)
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPUnmatchedRouteLabel(t *testing.T) {
	var buf bytes.Buffer
	r, metrics := newRouter(t, &buf)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unknown", "404")))
}

func TestAccessLogCarriesActor(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newRouter(t, &buf)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/invoices/abc", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, "agency-api", line["service"])
	require.Equal(t, "/api/v1/invoices/{invoiceId}", line["route"])
	require.Equal(t, "tenant-1", line["tenant_id"])
	require.Equal(t, "user-1", line["user_id"])
	require.EqualValues(t, 204, line["status"])
}
