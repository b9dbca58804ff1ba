package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	contentModel "creator_ledger/internal/domain/content/model"
	interactionModel "creator_ledger/internal/domain/interaction/model"
	messagingModel "creator_ledger/internal/domain/messaging/model"
	notificationModel "creator_ledger/internal/domain/notification/model"
	userModel "creator_ledger/internal/domain/user/model"
	walletModel "creator_ledger/internal/domain/wallet/model"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq int64

// AllModels 所有表模型，测试库与开发环境迁移共用
func AllModels() []interface{} {
	return []interface{}{
		&userModel.User{},
		&contentModel.Post{},
		&contentModel.Follow{},
		&contentModel.Subscription{},
		&contentModel.Purchase{},
		&interactionModel.PostLike{},
		&interactionModel.PostSave{},
		&interactionModel.Comment{},
		&interactionModel.CommentLike{},
		&messagingModel.Conversation{},
		&messagingModel.Message{},
		&messagingModel.MessageUnlock{},
		&walletModel.Wallet{},
		&walletModel.WalletTransaction{},
		&walletModel.Gift{},
		&notificationModel.Notification{},
	}
}

// NewTestDB 创建独立的 sqlite 内存库并迁移全部表
// 单连接保证同一内存库；事务内的查询必须使用 tx
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(AllModels()...))
	return db
}
