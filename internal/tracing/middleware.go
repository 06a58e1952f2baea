package tracing

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddlewareConfig configures the HTTP tracing middleware.
type HTTPMiddlewareConfig struct {
	// Tracer is the OpenTelemetry tracer for creating spans.
	// If nil, the middleware returns a pass-through (no-op).
	Tracer trace.Tracer
}

// NewHTTPMiddleware creates middleware that creates a server span per
// request. Spans are named by method and path, carry the method, route,
// and status code as attributes, and report error status for 5xx
// responses.
//
// If Tracer is nil, the middleware returns a pass-through function that
// simply calls the next handler without any tracing overhead.
func NewHTTPMiddleware(cfg HTTPMiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.Tracer == nil {
		// Return pass-through if tracing disabled
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The matched route pattern is not visible outside the mux,
			// so spans are named by method and path.
			spanName := SpanPrefixHTTP + r.Method + " " + r.URL.Path
			ctx, span := cfg.Tracer.Start(r.Context(), spanName,
				trace.WithSpanKind(trace.SpanKindServer),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String(AttrHTTPMethod, r.Method),
				attribute.String(AttrHTTPRoute, r.URL.Path),
			)

			// Expose the trace ID to request handlers for log correlation
			ctx = ContextWithTraceID(ctx, span.SpanContext().TraceID().String())

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			span.SetAttributes(attribute.Int(AttrHTTPStatus, recorder.status))

			if recorder.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", recorder.status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		})
	}
}

// statusRecorder captures the response status code for span attributes.
// Unwrap lets http.ResponseController reach the underlying writer, which
// keeps flushing working for streaming responses.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Flush implements http.Flusher for streaming endpoints.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
