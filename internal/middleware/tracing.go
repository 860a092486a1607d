package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing 为每个请求创建 span。
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// EnrichTrace 在 span 上附加请求 ID 与用户信息，需在 AuthMiddleware 之后使用。
func EnrichTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		span.SetAttributes(attribute.String("request.id", GetRequestID(c)))
		if user, ok := CurrentUser(c); ok {
			span.SetAttributes(attribute.Int("user.id", int(user.ID)))
		}
		c.Next()
	}
}
