package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"thurman/observability"
)

const RequestIDHeader = "X-Request-ID"

// Observability records per-route metrics and spans and logs each request.
type Observability struct {
	service string
	logger  *slog.Logger
}

func NewObservability(service string, logger *slog.Logger) *Observability {
	if service == "" {
		service = "poold"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observability{service: service, logger: logger}
}

// Transport wraps the whole router with otelhttp so inbound trace context is
// extracted before routing.
func (o *Observability) Transport(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, o.service)
}

func (o *Observability) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routePattern(r)
		span := trace.SpanFromContext(r.Context())
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.String("request.id", requestID),
		)
		elapsed := time.Since(start)
		observability.API().Observe(route, r.Method, recorder.status, elapsed)
		attrs := []any{"request_id", requestID, "method", r.Method, "route", route, "status", recorder.status, "duration_ms", elapsed.Milliseconds()}
		if caller, ok := CallerFromContext(r.Context()); ok {
			attrs = append(attrs, "caller", caller.String())
		}
		if recorder.status >= http.StatusInternalServerError {
			o.logger.Error("request failed", attrs...)
			return
		}
		o.logger.Debug("request served", attrs...)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
