package handler

import (
	"net/http"
	"strconv"

	"creator_ledger/internal/domain/user/service"
	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/pkg/response"
	"creator_ledger/pkg/utils"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户处理器
type UserHandler struct {
	service service.UserService
}

// NewUserHandler 创建处理器
func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// ProfileRequest 资料输入
type ProfileRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	Bio         string `json:"bio"`
}

// UpsertMe 建立或更新当前用户资料
func (h *UserHandler) UpsertMe(c *gin.Context) {
	uid, _ := middleware.CurrentUserID(c)

	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	if _, err := h.service.EnsureProfile(c.Request.Context(), uid, req.Username); err != nil {
		response.FromError(c, err)
		return
	}
	user, err := h.service.UpdateProfile(c.Request.Context(), uid, service.ProfileInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Bio:         req.Bio,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}

// GetMe 当前用户资料
func (h *UserHandler) GetMe(c *gin.Context) {
	uid, _ := middleware.CurrentUserID(c)
	user, err := h.service.GetUser(c.Request.Context(), uid)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}

// GetUsers 用户列表
func (h *UserHandler) GetUsers(c *gin.Context) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	users, total, err := h.service.GetUsers(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	page, limit := utils.Normalize(p.Page, p.Limit)
	response.Success(c, utils.PageResult{List: users, Total: total, Page: page, Limit: limit})
}

// GetUser 获取单个用户
func (h *UserHandler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "invalid user id")
		return
	}
	user, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, user)
}
