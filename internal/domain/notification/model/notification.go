package model

import (
	"encoding/json"

	"creator_ledger/pkg/model"

	"gorm.io/datatypes"
)

// 通知类型
const (
	TypeFollow    = "follow"
	TypeComment   = "comment"
	TypeReply     = "reply"
	TypeTip       = "tip"
	TypeGift      = "gift"
	TypeUnlock    = "unlock"
	TypePurchase  = "purchase"
	TypeMessage   = "message"
	TypeSubscribe = "subscribe"
)

// Notification 站内通知
type Notification struct {
	model.BaseModel
	RecipientID uint64         `gorm:"not null;index:idx_notifications_recipient" json:"recipientId"`
	ActorID     uint64         `gorm:"not null" json:"actorId"`
	Type        string         `gorm:"type:varchar(32);not null" json:"type"`
	EntityID    uint64         `json:"entityId"`
	Payload     datatypes.JSON `json:"payload"`
	Read        bool           `gorm:"not null;default:false;index:idx_notifications_recipient" json:"read"`
}

// New 构造通知，payload 序列化失败时置空
func New(recipientID, actorID uint64, typ string, entityID uint64, payload map[string]interface{}) *Notification {
	n := &Notification{
		RecipientID: recipientID,
		ActorID:     actorID,
		Type:        typ,
		EntityID:    entityID,
	}
	if len(payload) > 0 {
		if data, err := json.Marshal(payload); err == nil {
			n.Payload = datatypes.JSON(data)
		}
	}
	return n
}
