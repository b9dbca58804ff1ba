package repository

import (
	"context"

	"creator_ledger/internal/domain/notification/model"

	"gorm.io/gorm"
)

// NotificationRepository 站内通知存储
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	List(ctx context.Context, recipientID uint64, unreadOnly bool, offset, limit int) ([]*model.Notification, int64, error)
	// Recent 最近的通知，最新在前
	Recent(ctx context.Context, recipientID uint64, limit int) ([]*model.Notification, error)
	UnreadCount(ctx context.Context, recipientID uint64) (int64, error)
	// MarkRead 只会修改属于 recipientID 的通知，返回实际更新条数
	MarkRead(ctx context.Context, recipientID uint64, ids []uint64) (int64, error)
	MarkAllRead(ctx context.Context, recipientID uint64) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) List(ctx context.Context, recipientID uint64, unreadOnly bool, offset, limit int) ([]*model.Notification, int64, error) {
	var list []*model.Notification
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Notification{}).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *notificationRepository) Recent(ctx context.Context, recipientID uint64, limit int) ([]*model.Notification, error) {
	var list []*model.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *notificationRepository) UnreadCount(ctx context.Context, recipientID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, recipientID uint64, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND id IN ? AND read = ?", recipientID, ids, false).
		UpdateColumn("read", true)
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uint64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		UpdateColumn("read", true)
	return result.RowsAffected, result.Error
}
