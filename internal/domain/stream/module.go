package stream

import (
	"creator_ledger/internal/domain/content"
	interactionRepository "creator_ledger/internal/domain/interaction/repository"
	"creator_ledger/internal/domain/messaging"
	notificationRepository "creator_ledger/internal/domain/notification/repository"
	"creator_ledger/internal/domain/stream/handler"
	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/internal/pkg/registry"
	"creator_ledger/internal/realtime/baseline"

	"github.com/gin-gonic/gin"
)

// StreamModule 实时订阅模块
type StreamModule struct{}

func init() {
	registry.Register(&StreamModule{})
}

func (m *StreamModule) Name() string {
	return "stream"
}

func (m *StreamModule) Priority() int {
	return 60
}

func (m *StreamModule) Init(ctx *registry.ModuleContext) error {
	c := content.Build(ctx)
	msg := messaging.Build(ctx)

	fetcher := baseline.NewFetcher(
		interactionRepository.NewInteractionRepository(ctx.DB),
		msg.Repo,
		notificationRepository.NewNotificationRepository(ctx.DB),
	)
	h := handler.NewStreamHandler(ctx.Bus, fetcher, c.Service, msg.Repo, ctx.Logger.Named("stream"))
	setupRoutes(ctx.Router, h)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.StreamHandler) {
	group := r.Group("/stream")
	group.Use(middleware.AuthMiddleware())
	{
		group.GET("/threads/:id", h.Thread)
		group.GET("/conversations/:id", h.Conversation)
		group.GET("/notifications", h.Notifications)
	}
}
