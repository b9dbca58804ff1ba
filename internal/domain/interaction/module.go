package interaction

import (
	"context"

	"creator_ledger/internal/domain/content"
	"creator_ledger/internal/domain/interaction/handler"
	"creator_ledger/internal/domain/interaction/repository"
	"creator_ledger/internal/domain/interaction/service"
	"creator_ledger/internal/domain/interaction/strategy"
	userRepository "creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/pkg/lock"
	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/internal/pkg/registry"
	"creator_ledger/internal/realtime"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InteractionModule 交互账本模块
type InteractionModule struct{}

func init() {
	registry.Register(&InteractionModule{})
}

func (m *InteractionModule) Name() string {
	return "interaction"
}

func (m *InteractionModule) Priority() int {
	return 20
}

func (m *InteractionModule) Init(ctx *registry.ModuleContext) error {
	log := ctx.Logger.Named("interaction")
	c := content.Build(ctx)

	s := strategy.Select(context.Background(), ctx.DB, ctx.Config.Ledger.InteractionStrategy, ctx.Metrics, log)
	log.Info("interaction strategy selected", zap.String("strategy", s.Name()))

	svc := service.NewInteractionService(
		s,
		repository.NewInteractionRepository(ctx.DB),
		c.Service,
		userRepository.NewUserRepository(ctx.DB),
		c.RelCache,
		realtime.NewEmitter(ctx.Bus, ctx.Metrics, log),
		ctx.Notifier,
		log,
	)

	var locker lock.Locker
	if ctx.Redis != nil {
		locker = lock.NewRedisLocker(ctx.Redis)
	}
	recounter, err := service.NewRecounter(ctx.DB, locker, ctx.Config.Ledger.RecountLockTTL, ctx.Metrics, log.Named("recount"))
	if err != nil {
		return err
	}
	ctx.Go(func(lc context.Context) {
		recounter.Run(lc, ctx.Config.Ledger.RecountInterval)
	})

	setupRoutes(ctx.Router, handler.NewInteractionHandler(svc, recounter))
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.InteractionHandler) {
	auth := middleware.AuthMiddleware()

	postGroup := r.Group("/posts")
	postGroup.Use(auth)
	{
		postGroup.POST("/:id/like", h.ToggleLike)
		postGroup.PUT("/:id/like", h.Like)
		postGroup.DELETE("/:id/like", h.Unlike)
		postGroup.POST("/:id/save", h.ToggleSave)
		postGroup.GET("/:id/state", h.PostState)
		postGroup.GET("/:id/comments", h.ListComments)
		postGroup.POST("/:id/comments", h.AddComment)
	}

	commentGroup := r.Group("/comments")
	commentGroup.Use(auth)
	{
		commentGroup.POST("/:id/like", h.ToggleCommentLike)
		commentGroup.DELETE("/:id", h.DeleteComment)
	}

	r.POST("/users/:id/follow", auth, h.ToggleFollow)
	r.GET("/saves", auth, h.SavedPosts)

	adminGroup := r.Group("/admin")
	adminGroup.Use(auth, middleware.AdminMiddleware())
	{
		adminGroup.POST("/posts/:id/recount", h.Recount)
	}
}
