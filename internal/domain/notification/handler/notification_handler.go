package handler

import (
	"net/http"

	"creator_ledger/internal/domain/notification/service"
	commonHandler "creator_ledger/internal/pkg/common"
	"creator_ledger/pkg/response"
	"creator_ledger/pkg/utils"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 通知处理器
type NotificationHandler struct {
	service service.NotificationService
}

func NewNotificationHandler(s service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: s}
}

// MarkReadRequest 标记已读
type MarkReadRequest struct {
	IDs []uint64 `json:"ids" binding:"required,min=1,max=100"`
}

// List 通知列表
// @Summary 通知列表
// @Tags Notification
// @Produce json
// @Param unread query bool false "只看未读"
// @Success 200 {object} utils.PageResult
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	p, ok := commonHandler.BindPage(c)
	if !ok {
		return
	}
	unreadOnly := c.Query("unread") == "true"
	list, total, err := h.service.List(c.Request.Context(), uid, unreadOnly, p.Page, p.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.PageResult{List: list, Total: total, Page: p.Page, Limit: p.Limit})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	n, err := h.service.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"unread": n})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	n, err := h.service.MarkRead(c.Request.Context(), uid, req.IDs)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	n, err := h.service.MarkAllRead(c.Request.Context(), uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"updated": n})
}
