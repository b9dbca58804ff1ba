package testutil

import (
	"strconv"
	"testing"

	contentModel "creator_ledger/internal/domain/content/model"
	userModel "creator_ledger/internal/domain/user/model"
	walletModel "creator_ledger/internal/domain/wallet/model"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// MustCreate 依次插入记录
func MustCreate(t testing.TB, db *gorm.DB, records ...interface{}) {
	t.Helper()
	for _, r := range records {
		require.NoError(t, db.Create(r).Error)
	}
}

// CreateUsers 按ID创建用户资料
func CreateUsers(t testing.TB, db *gorm.DB, ids ...uint64) {
	t.Helper()
	for _, id := range ids {
		u := &userModel.User{Username: "user_" + itoa(id), Role: userModel.RoleUser}
		u.ID = id
		MustCreate(t, db, u)
	}
}

// CreatePost 创建帖子
func CreatePost(t testing.TB, db *gorm.DB, id, ownerID uint64, visibility string, nsfw bool, price int64) *contentModel.Post {
	t.Helper()
	p := &contentModel.Post{
		OwnerID:     ownerID,
		Content:     "post body",
		MediaURL:    "https://cdn.example.com/p.jpg",
		Visibility:  visibility,
		IsNSFW:      nsfw,
		UnlockPrice: price,
	}
	p.ID = id
	MustCreate(t, db, p)
	return p
}

// Fund 直接写入钱包余额
func Fund(t testing.TB, db *gorm.DB, userID uint64, balance int64) {
	t.Helper()
	MustCreate(t, db, &walletModel.Wallet{UserID: userID, Balance: balance})
}

// Balance 读取钱包余额，无钱包返回 0
func Balance(t testing.TB, db *gorm.DB, userID uint64) int64 {
	t.Helper()
	var w walletModel.Wallet
	err := db.Where("user_id = ?", userID).Limit(1).Find(&w).Error
	require.NoError(t, err)
	return w.Balance
}

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }
