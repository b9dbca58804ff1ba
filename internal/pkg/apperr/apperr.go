package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind 错误分类
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPermission
	KindInsufficientBalance
	KindNotFound
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPermission:
		return "permission"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error 带分类的业务错误
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return e.Msg + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同类错误视为相等，便于 errors.Is(err, apperr.ErrNotFound) 判断
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// 哨兵错误，仅用于 errors.Is 比较
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrPermission          = &Error{Kind: KindPermission}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrTransient           = &Error{Kind: KindTransient}
)

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Permission(format string, args ...interface{}) error {
	return &Error{Kind: KindPermission, Msg: fmt.Sprintf(format, args...)}
}

func InsufficientBalance(balance, required int64) error {
	return &Error{Kind: KindInsufficientBalance, Msg: fmt.Sprintf("insufficient balance: have %d, need %d", balance, required)}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

// Transient 包装存储层/网络错误，调用方不自动重试
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: KindTransient, Msg: op, Err: err}
}

// KindOf 返回错误分类，非 *Error 视为 Unknown
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// FromStore 把 gorm 错误翻译成业务错误
func FromStore(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(what)
	}
	return Transient("load "+what, err)
}

// IsUniqueViolation 判断是否唯一键冲突
// gorm 开启 TranslateError 后 sqlite/postgres 都会返回 ErrDuplicatedKey，
// 未开启时退回到 pgconn 错误码判断
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsCanceled 请求上下文被取消
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var validate = validator.New()

// ValidateStruct 校验服务层输入，失败返回 ValidationError
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return Validation("invalid %s: failed on %s", strings.ToLower(fe.Field()), fe.Tag())
		}
		return Validation("%s", err.Error())
	}
	return nil
}
