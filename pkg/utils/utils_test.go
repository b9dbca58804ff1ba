package utils

import (
	"testing"

	"creator_ledger/internal/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	config.GlobalConfig.JWT.Secret = "0123456789abcdef0123456789abcdef"
	config.GlobalConfig.JWT.Expire = 1

	token, expireAt, err := GenerateToken(42, RoleAdmin)
	require.NoError(t, err)
	require.NotNil(t, expireAt)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = ParseToken(token + "x")
	assert.Error(t, err)
}

func TestPagination(t *testing.T) {
	p := Pagination{Page: 0, Limit: 500}
	offset, limit := p.GetPageOffset()
	assert.Equal(t, 0, offset)
	assert.Equal(t, 100, limit)

	p = Pagination{Page: 3, Limit: 20}
	offset, limit = p.GetPageOffset()
	assert.Equal(t, 40, offset)
	assert.Equal(t, 20, limit)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "hel…", Truncate("hello", 3))
	assert.Equal(t, "你好…", Truncate("你好世界", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
