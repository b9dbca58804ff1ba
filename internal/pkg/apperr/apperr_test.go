package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKinds(t *testing.T) {
	err := Validation("content is empty")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrPermission))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "content is empty", err.Error())

	wrapped := fmt.Errorf("send tip: %w", InsufficientBalance(10, 30))
	assert.True(t, errors.Is(wrapped, ErrInsufficientBalance))
	assert.Equal(t, KindInsufficientBalance, KindOf(wrapped))
}

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient("debit", nil))

	base := errors.New("connection reset")
	err := Transient("debit", base)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.True(t, errors.Is(err, base))

	// already classified errors keep their kind
	nf := NotFound("post")
	assert.Equal(t, nf, Transient("load", nf))
}

func TestFromStore(t *testing.T) {
	assert.True(t, errors.Is(FromStore("post", gorm.ErrRecordNotFound), ErrNotFound))
	assert.True(t, errors.Is(FromStore("post", errors.New("timeout")), ErrTransient))
	assert.Nil(t, FromStore("post", nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(nil))
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		Content string `validate:"required,max=5"`
	}
	assert.NoError(t, ValidateStruct(input{Content: "hi"}))

	err := ValidateStruct(input{})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "content")
}
