package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/util"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware returns otelgin followed by a handler that tags the span with
// the user and the entity addressed. Install both: router.Use(TracingMiddleware(name)...)
func TracingMiddleware(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), spanAttributes}
}

// spanAttributes runs inside the otelgin span, which ends only after it returns
func spanAttributes(c *gin.Context) {
	c.Next()

	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}

	if userID := c.GetString(util.ContextUserIDKey); userID != "" {
		span.SetAttributes(attribute.String("user.id", userID))
	}
	if id := c.Param("id"); id != "" {
		span.SetAttributes(attribute.String("entity.id", id))
	}
	if date := c.Query("date"); date != "" {
		span.SetAttributes(attribute.String("query.date", date))
	}
	if g := c.Query("granularity"); g != "" {
		span.SetAttributes(attribute.String("query.granularity", g))
	}

	for _, ginErr := range c.Errors {
		if ginErr.Err != nil {
			span.RecordError(ginErr.Err)
			span.SetStatus(codes.Error, ginErr.Error())
		}
	}
}
