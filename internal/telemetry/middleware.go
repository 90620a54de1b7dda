package telemetry

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	commandPrefix  = "/commands/"
	unmatchedRoute = "unmatched"
)

// HTTPMiddleware traces and measures requests to the command surface.
type HTTPMiddleware struct {
	telemetry *Telemetry
}

func NewHTTPMiddleware(telemetry *Telemetry) *HTTPMiddleware {
	return &HTTPMiddleware{telemetry: telemetry}
}

// Middleware opens one server span per request, named after the command when
// the path addresses one. Metrics are labelled with the matched route pattern
// so unknown paths collapse into a single series.
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.telemetry == nil || m.telemetry.tracer == nil {
			next.ServeHTTP(w, r)

			return
		}

		start := time.Now()

		m.telemetry.IncrementHTTPInFlight()
		defer m.telemetry.DecrementHTTPInFlight()

		command := CommandName(r.URL.Path)

		attrs := []attribute.KeyValue{attribute.String("http.method", r.Method)}
		if id := GetRequestID(r.Context()); id != "" {
			attrs = append(attrs, attribute.String("http.request_id", id))
		}

		if command != "" {
			attrs = append(attrs, attribute.String("echotrails.command", command))
		}

		ctx, span := m.telemetry.Tracer().Start(r.Context(), spanName(r.Method, command),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		rw := wrapResponseWriter(w)

		next.ServeHTTP(rw, r.WithContext(ctx))

		route := routePattern(r)

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", rw.status),
			attribute.Int64("http.response_size", rw.bytesWritten),
		)

		if rw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.status))
		}

		m.telemetry.RecordHTTPRequest(r.Method, route, statusClass(rw.status), time.Since(start))
	})
}

// CommandName returns the command a /commands/{name} path addresses, or ""
// for any other path.
func CommandName(path string) string {
	name, ok := strings.CutPrefix(path, commandPrefix)
	if !ok || name == "" || strings.Contains(name, "/") {
		return ""
	}

	return name
}

func spanName(method, command string) string {
	if command != "" {
		return "command " + command
	}

	return "http " + method
}

// routePattern reads the pattern chi matched. The route context is filled in
// while routing, so this is only meaningful after the handler ran.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}

	pattern := rctx.RoutePattern()
	if pattern == "" || pattern == "/*" {
		return unmatchedRoute
	}

	return pattern
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}

	return string(rune('0'+status/100)) + "xx"
}
