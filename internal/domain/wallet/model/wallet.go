package model

import (
	"time"

	"creator_ledger/pkg/model"
)

// Wallet 钱包，余额不允许为负
type Wallet struct {
	UserID    uint64    `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	Balance   int64     `gorm:"not null;default:0;check:chk_wallets_balance,balance >= 0" json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// 流水类型
const (
	KindTipSent      = "tip_sent"
	KindTipReceived  = "tip_received"
	KindGiftSent     = "gift_sent"
	KindGiftReceived = "gift_received"
	KindUnlockPaid   = "unlock_paid"
	KindUnlockEarned = "unlock_earned"
	KindPurchasePaid = "purchase_paid"
	KindPurchaseSold = "purchase_sold"
	KindGrant        = "grant"
)

// 关联对象类型
const (
	RefMessage = "message"
	RefPost    = "post"
	RefGrant   = "grant"
)

// WalletTransaction 钱包流水，Delta 为正表示入账
type WalletTransaction struct {
	model.BaseModel
	UserID  uint64 `gorm:"not null;index" json:"userId"`
	Delta   int64  `gorm:"not null" json:"delta"`
	Kind    string `gorm:"type:varchar(32);not null" json:"kind"`
	RefType string `gorm:"type:varchar(32)" json:"refType"`
	RefID   uint64 `json:"refId"`
}

// Gift 礼物目录
type Gift struct {
	model.BaseModel
	Name   string `gorm:"type:varchar(64);not null" json:"name"`
	Price  int64  `gorm:"not null" json:"price"`
	Active bool   `gorm:"not null;default:true" json:"active"`
}
