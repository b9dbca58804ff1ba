package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "creator_ledger/internal/domain/common"
	_ "creator_ledger/internal/domain/content"
	_ "creator_ledger/internal/domain/interaction"
	_ "creator_ledger/internal/domain/messaging"
	_ "creator_ledger/internal/domain/notification"
	_ "creator_ledger/internal/domain/stream"
	_ "creator_ledger/internal/domain/user"
	_ "creator_ledger/internal/domain/wallet"

	notificationRepository "creator_ledger/internal/domain/notification/repository"
	notificationService "creator_ledger/internal/domain/notification/service"
	"creator_ledger/internal/pkg/config"
	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/internal/pkg/push"
	"creator_ledger/internal/pkg/registry"
	"creator_ledger/internal/pkg/worker"
	"creator_ledger/internal/realtime"
	"creator_ledger/pkg/cache"
	"creator_ledger/pkg/database"
	"creator_ledger/pkg/logger"
	"creator_ledger/pkg/metrics"
	"creator_ledger/pkg/tracing"

	"github.com/getsentry/sentry-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func main() {
	config.LoadConfig()
	cfg := &config.GlobalConfig

	zlog, err := logger.InitLogger(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.App.Env}); err != nil {
			zlog.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	lifecycle, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(lifecycle, cfg.Tracing, cfg.App.Env, zlog)
	if err != nil {
		zlog.Fatal("init tracing", zap.Error(err))
	}

	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug, zlog)
	if err != nil {
		zlog.Fatal("init database", zap.Error(err))
	}
	rdb, err := database.InitRedis(cfg.Redis)
	if err != nil {
		zlog.Fatal("init redis", zap.Error(err))
	}
	defer rdb.Close()

	bus, err := newBus(cfg, rdb, zlog)
	if err != nil {
		zlog.Fatal("init realtime bus", zap.Error(err))
	}
	defer bus.Close()

	collector := metrics.NewMetricsCollector()
	dispatcher := newDispatcher(cfg, db, bus, collector, zlog)
	dispatcher.Start(lifecycle)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(
		middleware.RecoveryMiddleware(zlog),
		otelgin.Middleware(cfg.Tracing.ServiceName),
		middleware.TraceMiddleware(),
		middleware.LoggerMiddleware(zlog),
		middleware.MetricsMiddleware(collector),
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:          12 * time.Hour,
		}),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/stream", "/metrics"})),
		middleware.RateLimitMiddleware(middleware.NewKeyedRateLimiter(rate.Limit(50), 100)),
	)

	mctx := &registry.ModuleContext{
		DB:        db,
		Redis:     rdb,
		Router:    r,
		Config:    cfg,
		Logger:    zlog,
		Cache:     cache.NewRedisCache(rdb, "ledger"),
		Bus:       bus,
		Notifier:  dispatcher,
		Metrics:   collector,
		Lifecycle: lifecycle,
	}
	if err := registry.InitModules(mctx); err != nil {
		zlog.Fatal("init modules", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("listen", zap.Error(err))
		}
	}()

	<-lifecycle.Done()
	zlog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server shutdown", zap.Error(err))
	}
	// 后台任务在 lifecycle 取消后退出，之后再排空通知队列
	mctx.Wait()
	dispatcher.Stop()
	if err := shutdownTracing(ctx); err != nil {
		zlog.Warn("tracing shutdown", zap.Error(err))
	}
	zlog.Info("server exited")
}

// newBus 按配置选择实时总线
func newBus(cfg *config.Config, rdb *redis.Client, log *zap.Logger) (realtime.Bus, error) {
	switch cfg.Realtime.Driver {
	case config.RealtimeRedis:
		return realtime.NewRedisBus(rdb, cfg.Realtime.BufferSize, log.Named("bus")), nil
	case config.RealtimeNATS:
		return realtime.NewNATSBus(cfg.Realtime.NATSURL, cfg.Realtime.BufferSize, log.Named("bus"))
	default:
		return realtime.NewMemoryBus(cfg.Realtime.BufferSize), nil
	}
}

// newDispatcher 通知先落库并推送到通知流，配置了推送时再走移动端推送
func newDispatcher(cfg *config.Config, db *gorm.DB, bus realtime.Bus, m *metrics.MetricsCollector, log *zap.Logger) *notificationService.Dispatcher {
	log = log.Named("notification")
	sinks := []notificationService.Sink{
		notificationService.NewStoreSink(notificationRepository.NewNotificationRepository(db), realtime.NewEmitter(bus, m, log)),
	}
	if cfg.Notification.Push {
		p, err := push.NewAliyunPushService(cfg.Push)
		if err != nil {
			log.Warn("push disabled", zap.Error(err))
		} else {
			sinks = append(sinks, notificationService.NewPushSink(p))
		}
	}
	return notificationService.NewDispatcher(sinks, worker.Options{
		Workers:   cfg.Notification.Workers,
		QueueSize: cfg.Notification.QueueSize,
		MaxRetry:  cfg.Notification.MaxRetry,
	}, m, log)
}
