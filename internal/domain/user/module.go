package user

import (
	"creator_ledger/internal/domain/user/handler"
	"creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/domain/user/service"
	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// UserModule 用户模块
type UserModule struct{}

func init() {
	// 自动注册模块
	registry.Register(&UserModule{})
}

func (m *UserModule) Name() string {
	return "user"
}

func (m *UserModule) Priority() int {
	// 其他模块依赖用户资料，最先初始化
	return 1
}

func (m *UserModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	userRepo := repository.NewUserRepository(ctx.DB)
	userService := service.NewUserService(userRepo)
	userHandler := handler.NewUserHandler(userService)

	// 2. 路由注册
	setupRoutes(ctx.Router, userHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.UserHandler) {
	userGroup := r.Group("/users")
	userGroup.Use(middleware.AuthMiddleware())
	{
		userGroup.GET("", h.GetUsers)
		userGroup.GET("/me", h.GetMe)
		userGroup.PUT("/me", h.UpsertMe)
		userGroup.GET("/:id", h.GetUser)
	}
}
