package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	notificationService "creator_ledger/internal/domain/notification/service"
	"creator_ledger/internal/pkg/config"
	"creator_ledger/internal/realtime"
	"creator_ledger/pkg/cache"
	"creator_ledger/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
// 共享的基础设施由 cmd/server 创建后注入，模块之间不直接互相引用
type ModuleContext struct {
	DB       *gorm.DB
	Redis    *redis.Client // 可为 nil，此时锁与缓存使用内存实现
	Router   *gin.Engine
	Config   *config.Config
	Logger   *zap.Logger
	Cache    cache.CacheService
	Bus      realtime.Bus
	Notifier notificationService.Notifier
	Metrics  *metrics.MetricsCollector

	// Lifecycle 进程级上下文，关闭时取消
	Lifecycle context.Context
	jobs      sync.WaitGroup
}

// Go 启动后台任务，任务需在 Lifecycle 取消后返回
func (c *ModuleContext) Go(fn func(ctx context.Context)) {
	ctx := c.Lifecycle
	if ctx == nil {
		ctx = context.Background()
	}
	c.jobs.Add(1)
	go func() {
		defer c.jobs.Done()
		fn(ctx)
	}()
}

// Wait 等待所有后台任务退出
func (c *ModuleContext) Wait() {
	c.jobs.Wait()
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块，重名视为编程错误
func Register(module Module) {
	if _, exists := moduleRegistry[module.Name()]; exists {
		panic(fmt.Sprintf("registry: module %q registered twice", module.Name()))
	}
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// Sorted 按优先级返回模块，同优先级按名称排序保证顺序稳定
func Sorted() []Module {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})
	return modules
}

// InitModules 按优先级初始化所有模块
func InitModules(ctx *ModuleContext) error {
	for _, module := range Sorted() {
		if err := module.Init(ctx); err != nil {
			return fmt.Errorf("init module %s: %w", module.Name(), err)
		}
		if ctx.Logger != nil {
			ctx.Logger.Info("module initialized", zap.String("module", module.Name()), zap.Int("priority", module.Priority()))
		}
	}
	return nil
}
