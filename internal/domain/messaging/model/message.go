package model

import (
	"time"

	"creator_ledger/pkg/model"
)

// 消息类型
const (
	TypeText       = "text"
	TypeMedia      = "media"
	TypeGift       = "gift"
	TypeTip        = "tip"
	TypePayPerView = "pay-per-view"
)

// Conversation 私信会话，参与者按 ParticipantA < ParticipantB 存储，一对用户只有一个会话
type Conversation struct {
	model.BaseModel
	ParticipantA       uint64     `gorm:"not null;uniqueIndex:idx_conversations_pair;check:chk_conversations_order,participant_a < participant_b" json:"participantA"`
	ParticipantB       uint64     `gorm:"not null;uniqueIndex:idx_conversations_pair;index" json:"participantB"`
	UnreadA            int64      `gorm:"not null;default:0" json:"unreadA"`
	UnreadB            int64      `gorm:"not null;default:0" json:"unreadB"`
	LastMessagePreview string     `gorm:"type:varchar(200)" json:"lastMessagePreview"`
	LastMessageAt      *time.Time `json:"lastMessageAt"`
	LastSenderID       *uint64    `json:"lastSenderId"`
}

// OrderedPair 返回按大小排序的参与者
func OrderedPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// HasParticipant 是否为会话参与者
func (c *Conversation) HasParticipant(userID uint64) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other 返回另一位参与者，调用前需保证 userID 为参与者
func (c *Conversation) Other(userID uint64) uint64 {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// UnreadFor 返回某参与者的未读数
func (c *Conversation) UnreadFor(userID uint64) int64 {
	if c.ParticipantA == userID {
		return c.UnreadA
	}
	return c.UnreadB
}

// UnreadColumn 返回某参与者未读数对应的列名
func (c *Conversation) UnreadColumn(userID uint64) string {
	if c.ParticipantA == userID {
		return "unread_a"
	}
	return "unread_b"
}

// Message 私信
// Amount 对打赏、礼物、按次付费消息有意义；UnlockedBy 由 message_unlocks 物化
type Message struct {
	model.BaseModel
	ConversationID uint64   `gorm:"not null;index" json:"conversationId"`
	SenderID       uint64   `gorm:"not null" json:"senderId"`
	Type           string   `gorm:"type:varchar(20);not null" json:"type"`
	Content        string   `gorm:"type:text" json:"content"`
	MediaURL       string   `gorm:"type:varchar(500)" json:"mediaUrl"`
	Amount         int64    `gorm:"not null;default:0" json:"amount"`
	GiftID         *uint64  `json:"giftId,omitempty"`
	UnlockedBy     []uint64 `gorm:"-" json:"unlockedBy"`
}

// IsUnlockedFor 按次付费消息对某用户是否可见，发送者始终可见
func (m *Message) IsUnlockedFor(userID uint64) bool {
	if m.Type != TypePayPerView || m.SenderID == userID {
		return true
	}
	for _, id := range m.UnlockedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Redacted 返回对某用户隐藏付费内容后的副本
func (m *Message) Redacted(userID uint64) *Message {
	if m.IsUnlockedFor(userID) {
		return m
	}
	cp := *m
	cp.Content = ""
	cp.MediaURL = ""
	return &cp
}

// MessageUnlock 按次付费解锁记录，只增不删
type MessageUnlock struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID uint64    `gorm:"not null;uniqueIndex:idx_message_unlocks_pair" json:"messageId"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_message_unlocks_pair" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}
