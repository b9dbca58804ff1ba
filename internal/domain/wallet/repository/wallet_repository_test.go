package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	contentModel "creator_ledger/internal/domain/content/model"
	messagingModel "creator_ledger/internal/domain/messaging/model"
	"creator_ledger/internal/domain/wallet/model"
	"creator_ledger/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (WalletRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewWalletRepository(gdb), mock
}

var debitSQL = regexp.QuoteMeta(`UPDATE "wallets" SET "balance"=balance - $1 WHERE user_id = $2 AND balance >= $3`)

func tipMessage() *messagingModel.Message {
	return &messagingModel.Message{ConversationID: 3, SenderID: 7, Type: messagingModel.TypeTip, Amount: 30}
}

func TestCreatePaidMessageDebitsInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "messages"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec(debitSQL).
		WithArgs(int64(30), uint64(7), int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "wallet_transactions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	msg := tipMessage()
	err := repo.CreatePaidMessage(context.Background(), msg, Entry{UserID: 7, Amount: 30, Kind: model.KindTipSent, RefType: model.RefMessage})
	require.NoError(t, err)
	assert.Equal(t, uint64(11), msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaidMessageInsufficientRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "messages"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec(debitSQL).
		WithArgs(int64(30), uint64(7), int64(30)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreatePaidMessage(context.Background(), tipMessage(), Entry{UserID: 7, Amount: 30, Kind: model.KindTipSent})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaidMessageStoreErrorRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "messages"`)).WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.CreatePaidMessage(context.Background(), tipMessage(), Entry{UserID: 7, Amount: 30, Kind: model.KindGiftSent})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlockAndDebit(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()
	entry := Entry{UserID: 1, Amount: 40, Kind: model.KindUnlockPaid, RefType: model.RefMessage, RefID: 5}

	t.Run("insufficient funds leaves no unlock", func(t *testing.T) {
		testutil.Fund(t, db, 1, 10)

		created, err := repo.UnlockAndDebit(ctx, 5, entry)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.False(t, created)

		var unlocks int64
		require.NoError(t, db.Model(&messagingModel.MessageUnlock{}).Count(&unlocks).Error)
		assert.Zero(t, unlocks)
		assert.Equal(t, int64(10), testutil.Balance(t, db, 1))
	})

	t.Run("debits once", func(t *testing.T) {
		require.NoError(t, db.Model(&model.Wallet{}).Where("user_id = ?", 1).Update("balance", 100).Error)

		created, err := repo.UnlockAndDebit(ctx, 5, entry)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = repo.UnlockAndDebit(ctx, 5, entry)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, int64(60), testutil.Balance(t, db, 1))

		var txs int64
		require.NoError(t, db.Model(&model.WalletTransaction{}).Count(&txs).Error)
		assert.Equal(t, int64(1), txs)
	})
}

func TestPurchaseAndDebitRollsBack(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewWalletRepository(db)
	ctx := context.Background()
	testutil.Fund(t, db, 1, 20)

	created, err := repo.PurchaseAndDebit(ctx, &contentModel.Purchase{UserID: 1, PostID: 9, Amount: 30},
		Entry{UserID: 1, Amount: 30, Kind: model.KindPurchasePaid, RefType: model.RefPost, RefID: 9})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.False(t, created)

	owned, err := repo.HasPurchase(ctx, 1, 9)
	require.NoError(t, err)
	assert.False(t, owned)
	assert.Equal(t, int64(20), testutil.Balance(t, db, 1))
}
