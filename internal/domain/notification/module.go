package notification

import (
	"creator_ledger/internal/domain/notification/handler"
	"creator_ledger/internal/domain/notification/repository"
	"creator_ledger/internal/domain/notification/service"
	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// NotificationModule 站内通知模块
// 投递由 cmd/server 创建的 Dispatcher 负责，本模块只提供查询与已读
type NotificationModule struct{}

func init() {
	registry.Register(&NotificationModule{})
}

func (m *NotificationModule) Name() string {
	return "notification"
}

func (m *NotificationModule) Priority() int {
	return 50
}

func (m *NotificationModule) Init(ctx *registry.ModuleContext) error {
	svc := service.NewNotificationService(repository.NewNotificationRepository(ctx.DB))
	setupRoutes(ctx.Router, handler.NewNotificationHandler(svc))
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.NotificationHandler) {
	group := r.Group("/notifications")
	group.Use(middleware.AuthMiddleware())
	{
		group.GET("", h.List)
		group.GET("/unread-count", h.UnreadCount)
		group.POST("/read", h.MarkRead)
		group.POST("/read-all", h.MarkAllRead)
	}
}
