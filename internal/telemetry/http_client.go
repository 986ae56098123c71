package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// NewInstrumentedTransport wraps base (http.DefaultTransport when nil) so every
// outbound request gets a client span and carries the trace context
func NewInstrumentedTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base,
		otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
	)
}

// NewInstrumentedHTTPClient creates an HTTP client with automatic tracing
func NewInstrumentedHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: NewInstrumentedTransport(nil),
	}
}
