package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const ctxTraceID = "traceID"

// TraceMiddleware 添加请求追踪ID
// 已经有 otel span 时沿用其 TraceID，便于日志与链路对应
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-ID")
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// 设置到 context 和响应头
		c.Set(ctxTraceID, traceID)
		c.Header("X-Trace-ID", traceID)

		c.Next()
	}
}
