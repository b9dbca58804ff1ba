package content

import (
	"context"
	"time"

	"creator_ledger/internal/domain/content/handler"
	"creator_ledger/internal/domain/content/repository"
	"creator_ledger/internal/domain/content/service"
	userRepository "creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/internal/pkg/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContentModule 帖子、订阅与可见性模块
type ContentModule struct{}

func init() {
	registry.Register(&ContentModule{})
}

func (m *ContentModule) Name() string {
	return "content"
}

func (m *ContentModule) Priority() int {
	return 10
}

// Components 其他模块复用的内容组件
// 关系缓存基于共享的 CacheService，各模块各自构建的实例失效同一批 key
type Components struct {
	Posts     repository.PostRepository
	Relations repository.RelationRepository
	RelCache  service.RelationshipCache
	Service   service.ContentService
}

// Build 按模块上下文构建内容组件
func Build(ctx *registry.ModuleContext) *Components {
	posts := repository.NewPostRepository(ctx.DB)
	relations := repository.NewRelationRepository(ctx.DB)
	relCache := service.NewRelationshipCache(relations, ctx.Cache, ctx.Config.Ledger.RelationCacheTTL, ctx.Metrics, ctx.Logger.Named("relcache"))
	svc := service.NewContentService(posts, relations, userRepository.NewUserRepository(ctx.DB), relCache, ctx.Notifier, ctx.Logger.Named("content"))
	return &Components{Posts: posts, Relations: relations, RelCache: relCache, Service: svc}
}

func (m *ContentModule) Init(ctx *registry.ModuleContext) error {
	c := Build(ctx)
	setupRoutes(ctx.Router, handler.NewContentHandler(c.Service))

	// 订阅到期检查
	log := ctx.Logger.Named("content")
	ctx.Go(func(lc context.Context) {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-lc.Done():
				return
			case now := <-ticker.C:
				if _, err := c.Service.LapseExpired(lc, now); err != nil {
					log.Error("lapse subscriptions failed", zap.Error(err))
				}
			}
		}
	})
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.ContentHandler) {
	postGroup := r.Group("/posts")
	postGroup.Use(middleware.AuthMiddleware())
	{
		postGroup.POST("", h.CreatePost)
		postGroup.GET("", h.Feed)
		postGroup.GET("/:id", h.GetPost)
		postGroup.PATCH("/:id", h.UpdatePost)
	}

	subGroup := r.Group("/subscriptions")
	subGroup.Use(middleware.AuthMiddleware())
	{
		subGroup.GET("", h.ListSubscriptions)
		subGroup.POST("/:creatorId", h.Subscribe)
		subGroup.DELETE("/:creatorId", h.CancelSubscription)
	}
}
