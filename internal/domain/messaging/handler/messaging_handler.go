package handler

import (
	"net/http"
	"strconv"

	"creator_ledger/internal/domain/messaging/service"
	commonHandler "creator_ledger/internal/pkg/common"
	"creator_ledger/pkg/response"
	"creator_ledger/pkg/utils"

	"github.com/gin-gonic/gin"
)

// MessagingHandler 私信处理器
type MessagingHandler struct {
	service service.MessagingService
}

func NewMessagingHandler(s service.MessagingService) *MessagingHandler {
	return &MessagingHandler{service: s}
}

// StartRequest 发起会话
type StartRequest struct {
	UserID uint64 `json:"userId" binding:"required"`
}

// SendRequest 发送消息，price > 0 为按次付费消息
type SendRequest struct {
	Content  string `json:"content"`
	MediaURL string `json:"mediaUrl"`
	Price    int64  `json:"price" binding:"gte=0"`
}

// StartConversation 打开与某用户的会话
// @Summary 发起会话
// @Tags Messaging
// @Accept json
// @Produce json
// @Param input body StartRequest true "对方用户"
// @Success 200 {object} model.Conversation
// @Router /conversations [post]
func (h *MessagingHandler) StartConversation(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	conv, err := h.service.StartConversation(c.Request.Context(), uid, req.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, conv)
}

func (h *MessagingHandler) ListConversations(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	p, ok := commonHandler.BindPage(c)
	if !ok {
		return
	}
	views, total, err := h.service.ListConversations(c.Request.Context(), uid, p.Page, p.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.PageResult{List: views, Total: total, Page: p.Page, Limit: p.Limit})
}

// ListMessages 消息列表，before 为游标
func (h *MessagingHandler) ListMessages(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	id, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	before, _ := strconv.ParseUint(c.DefaultQuery("before", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := h.service.ListMessages(c.Request.Context(), id, uid, before, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, msgs)
}

// Send 发送文本、媒体或按次付费消息
// @Summary 发送消息
// @Tags Messaging
// @Param id path int true "会话ID"
// @Param input body SendRequest true "消息内容"
// @Router /conversations/{id}/messages [post]
func (h *MessagingHandler) Send(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	id, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	msg, err := h.service.Send(c.Request.Context(), id, uid, service.SendInput{
		Content:  req.Content,
		MediaURL: req.MediaURL,
		Price:    req.Price,
	})
	if err != nil {
		// 消息已写入但会话更新失败时同时返回消息
		if msg != nil {
			status, code, text := response.Classify(err)
			c.JSON(status, response.Response{Code: code, Message: text, Data: msg})
			return
		}
		response.FromError(c, err)
		return
	}
	response.Success(c, msg)
}

func (h *MessagingHandler) MarkRead(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	id, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), id, uid); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}
