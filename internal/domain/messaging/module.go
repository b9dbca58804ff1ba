package messaging

import (
	contentRepository "creator_ledger/internal/domain/content/repository"
	"creator_ledger/internal/domain/messaging/handler"
	"creator_ledger/internal/domain/messaging/repository"
	"creator_ledger/internal/domain/messaging/service"
	userRepository "creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/internal/pkg/registry"
	"creator_ledger/internal/realtime"

	"github.com/gin-gonic/gin"
)

// MessagingModule 私信模块
type MessagingModule struct{}

func init() {
	registry.Register(&MessagingModule{})
}

func (m *MessagingModule) Name() string {
	return "messaging"
}

func (m *MessagingModule) Priority() int {
	return 30
}

// Components 资金账本复用的私信组件
type Components struct {
	Repo    repository.MessagingRepository
	Policy  *service.Policy
	Courier *service.Courier
}

// Build 按模块上下文构建私信组件
func Build(ctx *registry.ModuleContext) *Components {
	log := ctx.Logger.Named("messaging")
	repo := repository.NewMessagingRepository(ctx.DB)
	return &Components{
		Repo:    repo,
		Policy:  service.NewPolicy(contentRepository.NewRelationRepository(ctx.DB)),
		Courier: service.NewCourier(repo, realtime.NewEmitter(ctx.Bus, ctx.Metrics, log), ctx.Notifier, log),
	}
}

func (m *MessagingModule) Init(ctx *registry.ModuleContext) error {
	c := Build(ctx)
	svc := service.NewMessagingService(c.Repo, userRepository.NewUserRepository(ctx.DB), c.Policy, c.Courier, ctx.Logger.Named("messaging"))
	setupRoutes(ctx.Router, handler.NewMessagingHandler(svc))
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.MessagingHandler) {
	convGroup := r.Group("/conversations")
	convGroup.Use(middleware.AuthMiddleware())
	{
		convGroup.POST("", h.StartConversation)
		convGroup.GET("", h.ListConversations)
		convGroup.GET("/:id/messages", h.ListMessages)
		convGroup.POST("/:id/messages", h.Send)
		convGroup.POST("/:id/read", h.MarkRead)
	}
}
