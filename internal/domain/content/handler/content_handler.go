package handler

import (
	"net/http"
	"strconv"

	"creator_ledger/internal/domain/content/service"
	commonHandler "creator_ledger/internal/pkg/common"
	"creator_ledger/pkg/response"
	"creator_ledger/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ContentHandler 帖子与订阅处理器
type ContentHandler struct {
	service service.ContentService
}

func NewContentHandler(s service.ContentService) *ContentHandler {
	return &ContentHandler{service: s}
}

// CreatePostRequest 发帖输入
type CreatePostRequest struct {
	Content     string `json:"content"`
	MediaURL    string `json:"mediaUrl"`
	Visibility  string `json:"visibility" binding:"omitempty,oneof=public followers subscribers"`
	IsNSFW      bool   `json:"isNsfw"`
	UnlockPrice int64  `json:"unlockPrice" binding:"gte=0"`
}

// UpdatePostRequest 编辑输入，价格与 NSFW 标记不可修改
type UpdatePostRequest struct {
	Content    *string `json:"content"`
	MediaURL   *string `json:"mediaUrl"`
	Visibility *string `json:"visibility"`
}

// CreatePost 发布帖子
// @Summary 发布帖子
// @Tags Content
// @Accept json
// @Produce json
// @Param input body CreatePostRequest true "帖子内容"
// @Success 200 {object} model.Post
// @Router /posts [post]
func (h *ContentHandler) CreatePost(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	post, err := h.service.CreatePost(c.Request.Context(), uid, service.CreatePostInput{
		Content:     req.Content,
		MediaURL:    req.MediaURL,
		Visibility:  req.Visibility,
		IsNSFW:      req.IsNSFW,
		UnlockPrice: req.UnlockPrice,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, post)
}

// UpdatePost 编辑帖子 (仅作者)
// @Summary 编辑帖子
// @Tags Content
// @Param id path int true "帖子ID"
// @Router /posts/{id} [patch]
func (h *ContentHandler) UpdatePost(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	id, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	view, err := h.service.UpdatePost(c.Request.Context(), id, uid, service.UpdatePostInput{
		Content:    req.Content,
		MediaURL:   req.MediaURL,
		Visibility: req.Visibility,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, view)
}

// GetPost 帖子详情，不可见时正文为空且 canView=false
// @Summary 帖子详情
// @Tags Content
// @Param id path int true "帖子ID"
// @Router /posts/{id} [get]
func (h *ContentHandler) GetPost(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	id, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	view, err := h.service.GetPost(c.Request.Context(), id, uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, view)
}

// Feed 帖子流，owner 参数过滤作者
// @Summary 帖子流
// @Tags Content
// @Param owner query int false "作者ID"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Router /posts [get]
func (h *ContentHandler) Feed(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	p, ok := commonHandler.BindPage(c)
	if !ok {
		return
	}
	var ownerID uint64
	if owner := c.Query("owner"); owner != "" {
		v, err := strconv.ParseUint(owner, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "invalid owner")
			return
		}
		ownerID = v
	}

	views, total, err := h.service.Feed(c.Request.Context(), uid, ownerID, p.Page, p.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.PageResult{List: views, Total: total, Page: p.Page, Limit: p.Limit})
}

// Subscribe 订阅创作者
func (h *ContentHandler) Subscribe(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	creatorID, ok := commonHandler.ParseID(c, "creatorId")
	if !ok {
		return
	}
	changed, err := h.service.Subscribe(c.Request.Context(), uid, creatorID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"changed": changed})
}

// CancelSubscription 取消订阅
func (h *ContentHandler) CancelSubscription(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	creatorID, ok := commonHandler.ParseID(c, "creatorId")
	if !ok {
		return
	}
	changed, err := h.service.CancelSubscription(c.Request.Context(), uid, creatorID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"changed": changed})
}

func (h *ContentHandler) ListSubscriptions(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	subs, err := h.service.ListSubscriptions(c.Request.Context(), uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, subs)
}
