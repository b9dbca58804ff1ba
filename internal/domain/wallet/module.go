package wallet

import (
	"creator_ledger/internal/domain/content"
	"creator_ledger/internal/domain/messaging"
	"creator_ledger/internal/domain/wallet/handler"
	"creator_ledger/internal/domain/wallet/repository"
	"creator_ledger/internal/domain/wallet/service"
	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// WalletModule 资金账本模块
type WalletModule struct{}

func init() {
	registry.Register(&WalletModule{})
}

func (m *WalletModule) Name() string {
	return "wallet"
}

func (m *WalletModule) Priority() int {
	return 40
}

func (m *WalletModule) Init(ctx *registry.ModuleContext) error {
	c := content.Build(ctx)
	msg := messaging.Build(ctx)

	svc := service.NewLedgerService(service.Deps{
		Wallets:      repository.NewWalletRepository(ctx.DB),
		Messages:     msg.Repo,
		Policy:       msg.Policy,
		Courier:      msg.Courier,
		Posts:        c.Posts,
		Purchases:    c.RelCache,
		Notifier:     ctx.Notifier,
		Metrics:      ctx.Metrics,
		Logger:       ctx.Logger.Named("wallet"),
		SharePercent: ctx.Config.Ledger.CreatorSharePercent,
	})

	setupRoutes(ctx.Router, handler.NewWalletHandler(svc))
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.WalletHandler) {
	auth := middleware.AuthMiddleware()

	r.POST("/conversations/:id/tips", auth, h.SendTip)
	r.POST("/conversations/:id/gifts", auth, h.SendGift)
	r.POST("/messages/:id/unlock", auth, h.UnlockMessage)
	r.POST("/posts/:id/purchase", auth, h.PurchasePost)
	r.GET("/gifts", h.ListGifts)

	walletGroup := r.Group("/wallet")
	walletGroup.Use(auth)
	{
		walletGroup.GET("", h.GetWallet)
		walletGroup.GET("/history", h.History)
	}

	adminGroup := r.Group("/admin")
	adminGroup.Use(auth, middleware.AdminMiddleware())
	{
		adminGroup.POST("/gifts", h.CreateGift)
		adminGroup.POST("/wallets/:id/grant", h.Grant)
	}
}
