package obs

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-agency/internal/common"
)

type actorKey struct{}

// actor is filled in by the auth layer deep in the chain and read back by the
// outer middleware once the handler returns.
type actor struct {
	mu       sync.Mutex
	userID   string
	tenantID string
}

func (a *actor) get() (string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID, a.tenantID
}

// SetActor records the authenticated caller for the access log and the server span.
func SetActor(ctx context.Context, userID, tenantID string) {
	if a, ok := ctx.Value(actorKey{}).(*actor); ok {
		a.mu.Lock()
		a.userID, a.tenantID = userID, tenantID
		a.mu.Unlock()
	}
	span := trace.SpanFromContext(ctx)
	if tenantID != "" {
		span.SetAttributes(attribute.String("agency.tenant_id", tenantID))
	}
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
	wrote  bool
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.wrote {
		rr.status = code
		rr.wrote = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(p []byte) (int, error) {
	rr.wrote = true
	n, err := rr.ResponseWriter.Write(p)
	rr.bytes += int64(n)
	return n, err
}

func (rr *responseRecorder) Unwrap() http.ResponseWriter { return rr.ResponseWriter }

// Route returns the chi pattern that matched r, or "" before routing has run.
func Route(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// HTTP instruments every request with a server span, Prometheus counters and
// one structured access log line. Mount it on the root router so the chi route
// context is shared with every sub-router.
type HTTP struct {
	Metrics *HTTPMetrics
	Tracing bool
	Logger  zerolog.Logger
}

// Middleware implements chi middleware.
func (h HTTP) Middleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("agency/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		who := &actor{}
		ctx := context.WithValue(r.Context(), actorKey{}, who)

		var span trace.Span
		if h.Tracing {
			ctx, span = tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer))
		}
		if h.Metrics != nil {
			h.Metrics.InFlight.Inc()
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		elapsed := time.Since(start)

		route := Route(r)
		userID, tenantID := who.get()

		if h.Metrics != nil {
			h.Metrics.InFlight.Dec()
			label := route
			if label == "" {
				label = "unknown"
			}
			h.Metrics.ReqTotal.WithLabelValues(r.Method, label, strconv.Itoa(rec.status)).Inc()
			h.Metrics.ReqDur.WithLabelValues(r.Method, label).Observe(DurationMillis(elapsed))
		}

		if span != nil {
			if route != "" {
				span.SetName(r.Method + " " + route)
			}
			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", r.URL.Path),
				attribute.Int("http.response.status_code", rec.status),
			)
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
			span.End()
		}

		h.logRequest(ctx, r, rec, route, userID, tenantID, elapsed)
	})
}

func (h HTTP) logRequest(ctx context.Context, r *http.Request, rec *responseRecorder, route, userID, tenantID string, elapsed time.Duration) {
	evt := h.Logger.Info()
	switch {
	case rec.status >= http.StatusInternalServerError:
		evt = h.Logger.Error()
	case rec.status >= http.StatusBadRequest:
		evt = h.Logger.Warn()
	}
	if route == "" {
		route = r.URL.Path
	}
	evt = evt.
		Str("method", r.Method).
		Str("route", route).
		Int("status", rec.status).
		Int64("duration_ms", elapsed.Milliseconds()).
		Int64("bytes", rec.bytes).
		Str("request_id", middleware.GetReqID(r.Context()))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	if tenantID != "" {
		evt = evt.Str("tenant_id", tenantID)
	}
	if userID != "" {
		evt = evt.Str("user_id", userID)
	}
	if ip := common.ClientIP(r); ip != "" {
		evt = evt.Str("remote_addr", ip)
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		evt = evt.Str("user_agent", ua)
	}
	evt.Msg("http_request")
}
