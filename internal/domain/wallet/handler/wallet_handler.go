package handler

import (
	"net/http"

	"creator_ledger/internal/domain/wallet/service"
	commonHandler "creator_ledger/internal/pkg/common"
	"creator_ledger/pkg/response"
	"creator_ledger/pkg/utils"

	"github.com/gin-gonic/gin"
)

// WalletHandler 钱包与资金操作
type WalletHandler struct {
	service service.LedgerService
}

func NewWalletHandler(s service.LedgerService) *WalletHandler {
	return &WalletHandler{service: s}
}

// TipRequest 打赏
type TipRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// GiftRequest 送礼
type GiftRequest struct {
	GiftID uint64 `json:"giftId" binding:"required"`
}

// CreateGiftRequest 新增礼物
type CreateGiftRequest struct {
	Name  string `json:"name" binding:"required,max=64"`
	Price int64  `json:"price" binding:"required,gt=0"`
}

// GrantRequest 管理员入账
type GrantRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// respond 资金操作已部分生效时仍带回回执
func respond(c *gin.Context, r *service.Receipt, err error) {
	if err != nil {
		status, code, msg := response.Classify(err)
		c.JSON(status, response.Response{Code: code, Message: msg, Data: r})
		return
	}
	response.Success(c, r)
}

// SendTip 在会话中打赏
// @Summary 打赏
// @Tags Wallet
// @Accept json
// @Produce json
// @Param id path int true "会话ID"
// @Param input body TipRequest true "金额"
// @Success 200 {object} service.Receipt
// @Failure 402 {object} response.Response
// @Router /conversations/{id}/tips [post]
func (h *WalletHandler) SendTip(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	convID, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	var req TipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	r, err := h.service.SendTip(c.Request.Context(), convID, uid, req.Amount)
	respond(c, r, err)
}

// SendGift 在会话中送礼
// @Summary 送礼
// @Tags Wallet
// @Param id path int true "会话ID"
// @Param input body GiftRequest true "礼物"
// @Router /conversations/{id}/gifts [post]
func (h *WalletHandler) SendGift(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	convID, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	var req GiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	r, err := h.service.SendGift(c.Request.Context(), convID, uid, req.GiftID)
	respond(c, r, err)
}

func (h *WalletHandler) UnlockMessage(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	msgID, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	r, err := h.service.UnlockPayPerView(c.Request.Context(), msgID, uid)
	respond(c, r, err)
}

func (h *WalletHandler) PurchasePost(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	postID, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	r, err := h.service.PurchaseContent(c.Request.Context(), postID, uid)
	respond(c, r, err)
}

// GetWallet 当前用户余额
func (h *WalletHandler) GetWallet(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	balance, err := h.service.Balance(c.Request.Context(), uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"userId": uid, "balance": balance})
}

func (h *WalletHandler) History(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	p, ok := commonHandler.BindPage(c)
	if !ok {
		return
	}
	txs, total, err := h.service.History(c.Request.Context(), uid, p.Page, p.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.PageResult{List: txs, Total: total, Page: p.Page, Limit: p.Limit})
}

func (h *WalletHandler) ListGifts(c *gin.Context) {
	gifts, err := h.service.ListGifts(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gifts)
}

// CreateGift 管理员新增礼物
func (h *WalletHandler) CreateGift(c *gin.Context) {
	var req CreateGiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	gift, err := h.service.CreateGift(c.Request.Context(), req.Name, req.Price)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gift)
}

// Grant 管理员给用户入账
func (h *WalletHandler) Grant(c *gin.Context) {
	adminID, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	userID, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	r, err := h.service.Grant(c.Request.Context(), adminID, userID, req.Amount)
	respond(c, r, err)
}
