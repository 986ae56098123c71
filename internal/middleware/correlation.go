package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const correlationKey = "correlation_id"

// CorrelationMiddleware carries an X-Correlation-ID across requests that belong
// to one client action, such as an outbox replay spread over several POST /sync
// calls. Without the header the request ID is used. Runs after RequestIDMiddleware.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if !validRequestID(correlationID) {
			correlationID = c.GetString("request_id")
		}

		c.Set(correlationKey, correlationID)
		if correlationID != "" {
			c.Header("X-Correlation-ID", correlationID)
		}

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() && correlationID != "" {
			span.SetAttributes(attribute.String("trace.correlation_id", correlationID))
		}

		if correlationID != "" {
			if member, err := baggage.NewMember(correlationKey, correlationID); err == nil {
				if b, err := baggage.New(member); err == nil {
					c.Request = c.Request.WithContext(baggage.ContextWithBaggage(c.Request.Context(), b))
				}
			}
		}

		c.Next()

		if span.IsRecording() {
			status := c.Writer.Status()
			switch {
			case status >= 500:
				span.SetStatus(codes.Error, "server error")
			case status >= 400 && status != 404:
				span.SetStatus(codes.Error, "client error")
			default:
				span.SetStatus(codes.Ok, "")
			}
		}
	}
}

// GetCorrelationIDFromContext extracts the correlation ID from a request context,
// for background work started by a request
func GetCorrelationIDFromContext(ctx context.Context) string {
	return baggage.FromContext(ctx).Member(correlationKey).Value()
}
