package repository

import (
	"context"
	"time"

	"creator_ledger/internal/domain/messaging/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessagingRepository 会话与消息存储
type MessagingRepository interface {
	// GetOrCreateConversation 一对用户只有一个会话，并发创建时以唯一索引为准
	GetOrCreateConversation(ctx context.Context, a, b uint64) (*model.Conversation, error)
	GetConversation(ctx context.Context, id uint64) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID uint64, offset, limit int) ([]model.Conversation, int64, error)
	// RecordDelivery 更新预览与最后消息时间，接收方未读数加一
	RecordDelivery(ctx context.Context, conv *model.Conversation, msg *model.Message, preview string) error
	MarkRead(ctx context.Context, conv *model.Conversation, userID uint64) error

	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id uint64) (*model.Message, error)
	// ListMessages 按时间正序返回，beforeID 非 0 时只取更早的消息
	ListMessages(ctx context.Context, conversationID, beforeID uint64, limit int) ([]*model.Message, error)
	// LoadUnlocks 为按次付费消息填充 UnlockedBy
	LoadUnlocks(ctx context.Context, msgs []*model.Message) error
	HasUnlock(ctx context.Context, messageID, userID uint64) (bool, error)
}

type messagingRepository struct {
	db *gorm.DB
}

func NewMessagingRepository(db *gorm.DB) MessagingRepository {
	return &messagingRepository{db: db}
}

func (r *messagingRepository) GetOrCreateConversation(ctx context.Context, a, b uint64) (*model.Conversation, error) {
	lo, hi := model.OrderedPair(a, b)
	conv := &model.Conversation{ParticipantA: lo, ParticipantB: hi}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(conv).Error; err != nil {
		return nil, err
	}
	var out model.Conversation
	if err := r.db.WithContext(ctx).Where("participant_a = ? AND participant_b = ?", lo, hi).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *messagingRepository) GetConversation(ctx context.Context, id uint64) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *messagingRepository) ListConversations(ctx context.Context, userID uint64, offset, limit int) ([]model.Conversation, int64, error) {
	var convs []model.Conversation
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("participant_a = ? OR participant_b = ?", userID, userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("COALESCE(last_message_at, created_at) DESC").Order("id DESC").
		Offset(offset).Limit(limit).Find(&convs).Error
	return convs, total, err
}

func (r *messagingRepository) RecordDelivery(ctx context.Context, conv *model.Conversation, msg *model.Message, preview string) error {
	unread := conv.UnreadColumn(conv.Other(msg.SenderID))
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(map[string]interface{}{
			"last_message_preview": preview,
			"last_message_at":      at,
			"last_sender_id":       msg.SenderID,
			unread:                 gorm.Expr(unread + " + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *messagingRepository) MarkRead(ctx context.Context, conv *model.Conversation, userID uint64) error {
	return r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", conv.ID).
		UpdateColumn(conv.UnreadColumn(userID), 0).Error
}

func (r *messagingRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messagingRepository) GetMessage(ctx context.Context, id uint64) (*model.Message, error) {
	var msg model.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, err
	}
	if err := r.LoadUnlocks(ctx, []*model.Message{&msg}); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messagingRepository) ListMessages(ctx context.Context, conversationID, beforeID uint64, limit int) ([]*model.Message, error) {
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	var msgs []*model.Message
	if err := query.Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	// 取最新的一页后翻转为正序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if err := r.LoadUnlocks(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messagingRepository) LoadUnlocks(ctx context.Context, msgs []*model.Message) error {
	byID := map[uint64]*model.Message{}
	var ids []uint64
	for _, m := range msgs {
		if m.Type == model.TypePayPerView {
			byID[m.ID] = m
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var unlocks []model.MessageUnlock
	if err := r.db.WithContext(ctx).Where("message_id IN ?", ids).Order("id ASC").Find(&unlocks).Error; err != nil {
		return err
	}
	for _, m := range byID {
		m.UnlockedBy = []uint64{}
	}
	for _, u := range unlocks {
		m := byID[u.MessageID]
		m.UnlockedBy = append(m.UnlockedBy, u.UserID)
	}
	return nil
}

func (r *messagingRepository) HasUnlock(ctx context.Context, messageID, userID uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.MessageUnlock{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Count(&n).Error
	return n > 0, err
}
