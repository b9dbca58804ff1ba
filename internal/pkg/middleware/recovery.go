package middleware

import (
	"fmt"
	"net/http"

	"creator_ledger/pkg/response"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware 捕获 panic，记录日志并上报 Sentry（未配置 DSN 时 Sentry 为空操作）
func RecoveryMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetRequest(c.Request)
			hub.Scope().SetTag("route", c.FullPath())
			if uid, ok := CurrentUserID(c); ok {
				hub.Scope().SetUser(sentry.User{ID: fmt.Sprint(uid)})
			}
			hub.RecoverWithContext(c.Request.Context(), rec)

			log.Error("panic recovered",
				zap.Any("panic", rec),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString("RequestID")),
				zap.Stack("stack"),
			)
			response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "internal server error")
			c.Abort()
		}()
		c.Next()
	}
}
