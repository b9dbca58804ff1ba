package handler

import (
	"net/http"

	"creator_ledger/internal/domain/interaction/service"
	commonHandler "creator_ledger/internal/pkg/common"
	"creator_ledger/pkg/response"
	"creator_ledger/pkg/utils"

	"github.com/gin-gonic/gin"
)

// InteractionHandler 点赞、收藏、关注与评论
type InteractionHandler struct {
	service   service.InteractionService
	recounter *service.Recounter
}

func NewInteractionHandler(s service.InteractionService, r *service.Recounter) *InteractionHandler {
	return &InteractionHandler{service: s, recounter: r}
}

// CommentRequest 评论输入
type CommentRequest struct {
	Content  string  `json:"content" binding:"required"`
	ParentID *uint64 `json:"parentId"`
}

// toggle 解析 path id 与当前用户后执行切换，返回切换后的状态
func toggle(c *gin.Context, key string, fn func(c *gin.Context, uid, id uint64) (bool, error)) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	id, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	state, err := fn(c, uid, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{key: state})
}

// ToggleLike 切换点赞
// @Summary 切换点赞
// @Tags Interaction
// @Param id path int true "帖子ID"
// @Success 200 {object} response.Response "{liked: bool}"
// @Router /posts/{id}/like [post]
func (h *InteractionHandler) ToggleLike(c *gin.Context) {
	toggle(c, "liked", func(c *gin.Context, uid, id uint64) (bool, error) {
		return h.service.ToggleLike(c.Request.Context(), uid, id)
	})
}

// Like 幂等点赞，返回状态是否变化
func (h *InteractionHandler) Like(c *gin.Context) {
	toggle(c, "changed", func(c *gin.Context, uid, id uint64) (bool, error) {
		return h.service.Like(c.Request.Context(), uid, id)
	})
}

func (h *InteractionHandler) Unlike(c *gin.Context) {
	toggle(c, "changed", func(c *gin.Context, uid, id uint64) (bool, error) {
		return h.service.Unlike(c.Request.Context(), uid, id)
	})
}

// ToggleSave 切换收藏
// @Summary 切换收藏
// @Tags Interaction
// @Param id path int true "帖子ID"
// @Router /posts/{id}/save [post]
func (h *InteractionHandler) ToggleSave(c *gin.Context) {
	toggle(c, "saved", func(c *gin.Context, uid, id uint64) (bool, error) {
		return h.service.ToggleSave(c.Request.Context(), uid, id)
	})
}

// ToggleFollow 切换关注
// @Summary 切换关注
// @Tags Interaction
// @Param id path int true "用户ID"
// @Router /users/{id}/follow [post]
func (h *InteractionHandler) ToggleFollow(c *gin.Context) {
	toggle(c, "following", func(c *gin.Context, uid, id uint64) (bool, error) {
		return h.service.ToggleFollow(c.Request.Context(), uid, id)
	})
}

func (h *InteractionHandler) ToggleCommentLike(c *gin.Context) {
	toggle(c, "liked", func(c *gin.Context, uid, id uint64) (bool, error) {
		return h.service.ToggleCommentLike(c.Request.Context(), uid, id)
	})
}

// PostState 当前用户对帖子的点赞、收藏状态
func (h *InteractionHandler) PostState(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	id, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	liked, saved, err := h.service.PostState(c.Request.Context(), uid, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"liked": liked, "saved": saved})
}

// AddComment 发表评论或回复
// @Summary 发表评论
// @Tags Interaction
// @Accept json
// @Produce json
// @Param id path int true "帖子ID"
// @Param input body CommentRequest true "评论内容"
// @Success 200 {object} model.Comment
// @Router /posts/{id}/comments [post]
func (h *InteractionHandler) AddComment(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	postID, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), uid, postID, service.CommentInput{
		Content:  req.Content,
		ParentID: req.ParentID,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, comment)
}

// ListComments 评论树
func (h *InteractionHandler) ListComments(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	postID, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	comments, err := h.service.ListComments(c.Request.Context(), uid, postID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, comments)
}

// DeleteComment 删除评论 (作者或帖子作者)
func (h *InteractionHandler) DeleteComment(c *gin.Context) {
	toggle(c, "changed", func(c *gin.Context, uid, id uint64) (bool, error) {
		return h.service.DeleteComment(c.Request.Context(), uid, id)
	})
}

// SavedPosts 当前用户收藏的帖子ID
func (h *InteractionHandler) SavedPosts(c *gin.Context) {
	uid, ok := commonHandler.MustUser(c)
	if !ok {
		return
	}
	p, ok := commonHandler.BindPage(c)
	if !ok {
		return
	}
	ids, total, err := h.service.SavedPosts(c.Request.Context(), uid, p.Page, p.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, utils.PageResult{List: ids, Total: total, Page: p.Page, Limit: p.Limit})
}

// Recount 强制重算单个帖子的计数 (管理员)
// @Summary 强制对账
// @Tags Admin
// @Param id path int true "帖子ID"
// @Router /admin/posts/{id}/recount [post]
func (h *InteractionHandler) Recount(c *gin.Context) {
	id, ok := commonHandler.ParseID(c, "id")
	if !ok {
		return
	}
	corrected, err := h.recounter.RecountPost(c.Request.Context(), id)
	if err != nil {
		response.Error(c, http.StatusServiceUnavailable, response.ErrRetryable, err.Error())
		return
	}
	response.Success(c, gin.H{"corrected": corrected})
}
