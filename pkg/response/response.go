package response

import (
	"net/http"

	"creator_ledger/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`    // 业务码
	Message string      `json:"message"` // 提示信息
	Data    interface{} `json:"data"`    // 数据
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, msg string) {
	c.JSON(httpCode, Response{
		Code:    errCode,
		Message: msg,
		Data:    nil,
	})
}

// Fail 业务失败响应 (HTTP 200, 业务码非 0)
func Fail(c *gin.Context, errCode int, msg string) {
	c.JSON(http.StatusOK, Response{
		Code:    errCode,
		Message: msg,
		Data:    nil,
	})
}

// retryableMessage 瞬时错误统一提示，不暴露存储细节
const retryableMessage = "service temporarily unavailable, please retry"

// FromError 按错误分类输出响应
// 权限与余额错误返回具体原因，瞬时错误只返回通用可重试提示
func FromError(c *gin.Context, err error) {
	status, code, msg := Classify(err)
	Error(c, status, code, msg)
}

// Classify 返回错误对应的 HTTP 状态码、业务码与提示
func Classify(err error) (int, int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, ErrInvalidParam, err.Error()
	case apperr.KindPermission:
		return http.StatusForbidden, ErrNoPermission, err.Error()
	case apperr.KindInsufficientBalance:
		return http.StatusPaymentRequired, ErrInsufficientBalance, err.Error()
	case apperr.KindNotFound:
		return http.StatusNotFound, ErrNotFound, err.Error()
	case apperr.KindTransient:
		return http.StatusServiceUnavailable, ErrRetryable, retryableMessage
	default:
		return http.StatusInternalServerError, ErrServerInternal, retryableMessage
	}
}
