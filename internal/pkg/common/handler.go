package handler

import (
	"net/http"
	"strconv"

	"creator_ledger/internal/pkg/middleware"
	"creator_ledger/pkg/response"
	"creator_ledger/pkg/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ParseID 解析路径参数中的数字ID，失败时直接写入 400 响应
func ParseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "invalid "+name)
		return 0, false
	}
	return id, true
}

// MustUser 取当前登录用户，未登录写入 401
func MustUser(c *gin.Context) (uint64, bool) {
	uid, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.ErrAuthFailed, "login required")
		return 0, false
	}
	return uid, true
}

// BindPage 解析分页参数
func BindPage(c *gin.Context) (utils.Pagination, bool) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return p, false
	}
	p.Page, p.Limit = utils.Normalize(p.Page, p.Limit)
	return p, true
}

// Health 存活与依赖检查
// @Summary 健康检查
// @Tags Common
// @Produce json
// @Success 200 {object} response.Response
// @Router /healthz [get]
func Health(db *gorm.DB, checks map[string]func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := map[string]string{}
		healthy := true

		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			status["database"] = statusOf(err)
			healthy = healthy && err == nil
		}
		for name, check := range checks {
			err := check(c)
			status[name] = statusOf(err)
			healthy = healthy && err == nil
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, response.Response{Code: response.ErrRetryable, Message: "unhealthy", Data: status})
			return
		}
		response.Success(c, status)
	}
}

func statusOf(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
