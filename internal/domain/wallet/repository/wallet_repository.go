package repository

import (
	"context"
	"errors"

	contentModel "creator_ledger/internal/domain/content/model"
	messagingModel "creator_ledger/internal/domain/messaging/model"
	"creator_ledger/internal/domain/wallet/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientFunds 条件扣款未命中：余额不足或钱包不存在
var ErrInsufficientFunds = errors.New("insufficient funds")

// Entry 一笔流水
type Entry struct {
	UserID  uint64
	Amount  int64 // 正数，方向由扣款/入账决定
	Kind    string
	RefType string
	RefID   uint64
}

// WalletRepository 钱包与资金相关记录
// 余额只能通过条件扣款或 Credit 修改，每次修改都写一条流水
type WalletRepository interface {
	GetBalance(ctx context.Context, userID uint64) (int64, error)
	// Credit 入账，钱包不存在时创建
	Credit(ctx context.Context, e Entry) error
	History(ctx context.Context, userID uint64, offset, limit int) ([]model.WalletTransaction, int64, error)

	GetGift(ctx context.Context, id uint64) (*model.Gift, error)
	ListGifts(ctx context.Context) ([]model.Gift, error)
	CreateGift(ctx context.Context, gift *model.Gift) error

	// 以下三个方法在同一事务内写业务记录并条件扣款 (balance >= amount)，
	// 余额不足返回 ErrInsufficientFunds，业务记录随之回滚

	// CreatePaidMessage 写入打赏/礼物消息并扣款，流水关联新消息ID
	CreatePaidMessage(ctx context.Context, msg *messagingModel.Message, e Entry) error
	// UnlockAndDebit 写入解锁记录并扣款，已解锁返回 false 且不扣款
	UnlockAndDebit(ctx context.Context, messageID uint64, e Entry) (bool, error)
	// PurchaseAndDebit 写入购买记录并扣款，已购买返回 false 且不扣款
	PurchaseAndDebit(ctx context.Context, p *contentModel.Purchase, e Entry) (bool, error)
	HasPurchase(ctx context.Context, userID, postID uint64) (bool, error)
}

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) GetBalance(ctx context.Context, userID uint64) (int64, error) {
	var w model.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&w).Error
	return w.Balance, err
}

// debit 条件扣款并写流水，必须在事务内调用；并发扣款由行锁串行化
func debit(tx *gorm.DB, e Entry) error {
	res := tx.Model(&model.Wallet{}).
		Where("user_id = ? AND balance >= ?", e.UserID, e.Amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", e.Amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientFunds
	}
	return tx.Create(&model.WalletTransaction{
		UserID:  e.UserID,
		Delta:   -e.Amount,
		Kind:    e.Kind,
		RefType: e.RefType,
		RefID:   e.RefID,
	}).Error
}

func (r *walletRepository) CreatePaidMessage(ctx context.Context, msg *messagingModel.Message, e Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		e.RefID = msg.ID
		return debit(tx, e)
	})
}

func (r *walletRepository) UnlockAndDebit(ctx context.Context, messageID uint64, e Entry) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&messagingModel.MessageUnlock{MessageID: messageID, UserID: e.UserID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := debit(tx, e); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (r *walletRepository) PurchaseAndDebit(ctx context.Context, p *contentModel.Purchase, e Entry) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(p)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := debit(tx, e); err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (r *walletRepository) Credit(ctx context.Context, e Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Wallet{UserID: e.UserID}).Error; err != nil {
			return err
		}
		res := tx.Model(&model.Wallet{}).
			Where("user_id = ?", e.UserID).
			UpdateColumn("balance", gorm.Expr("balance + ?", e.Amount))
		if res.Error != nil {
			return res.Error
		}
		return tx.Create(&model.WalletTransaction{
			UserID:  e.UserID,
			Delta:   e.Amount,
			Kind:    e.Kind,
			RefType: e.RefType,
			RefID:   e.RefID,
		}).Error
	})
}

func (r *walletRepository) History(ctx context.Context, userID uint64, offset, limit int) ([]model.WalletTransaction, int64, error) {
	var txs []model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&txs).Error
	return txs, total, err
}

func (r *walletRepository) GetGift(ctx context.Context, id uint64) (*model.Gift, error) {
	var g model.Gift
	if err := r.db.WithContext(ctx).First(&g, id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *walletRepository) ListGifts(ctx context.Context) ([]model.Gift, error) {
	var gifts []model.Gift
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("price ASC, id ASC").Find(&gifts).Error
	return gifts, err
}

func (r *walletRepository) CreateGift(ctx context.Context, gift *model.Gift) error {
	return r.db.WithContext(ctx).Create(gift).Error
}

func (r *walletRepository) HasPurchase(ctx context.Context, userID, postID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&contentModel.Purchase{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&n).Error
	return n > 0, err
}
