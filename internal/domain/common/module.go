package common

import (
	commonHandler "creator_ledger/internal/pkg/common"
	"creator_ledger/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// CommonModule 通用功能模块
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	checks := map[string]func(c *gin.Context) error{}
	if ctx.Redis != nil {
		checks["redis"] = func(c *gin.Context) error {
			return ctx.Redis.Ping(c.Request.Context()).Err()
		}
	}
	ctx.Router.GET("/healthz", commonHandler.Health(ctx.DB, checks))
	if ctx.Metrics != nil {
		ctx.Router.GET("/metrics", gin.WrapH(ctx.Metrics.Handler()))
	}
	return nil
}
