package service

import (
	"context"

	"creator_ledger/internal/domain/notification/model"
	"creator_ledger/internal/domain/notification/repository"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/pkg/utils"
)

// RecentLimit 通知流基线条数
const RecentLimit = 50

// NotificationService 通知查询与已读
type NotificationService interface {
	List(ctx context.Context, userID uint64, unreadOnly bool, page, limit int) ([]*model.Notification, int64, error)
	Recent(ctx context.Context, userID uint64) ([]*model.Notification, error)
	UnreadCount(ctx context.Context, userID uint64) (int64, error)
	MarkRead(ctx context.Context, userID uint64, ids []uint64) (int64, error)
	MarkAllRead(ctx context.Context, userID uint64) (int64, error)
}

type notificationService struct {
	repo repository.NotificationRepository
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func (s *notificationService) List(ctx context.Context, userID uint64, unreadOnly bool, page, limit int) ([]*model.Notification, int64, error) {
	offset, size := (&utils.Pagination{Page: page, Limit: limit}).GetPageOffset()
	list, total, err := s.repo.List(ctx, userID, unreadOnly, offset, size)
	if err != nil {
		return nil, 0, apperr.Transient("list notifications", err)
	}
	return list, total, nil
}

func (s *notificationService) Recent(ctx context.Context, userID uint64) ([]*model.Notification, error) {
	list, err := s.repo.Recent(ctx, userID, RecentLimit)
	if err != nil {
		return nil, apperr.Transient("load notifications", err)
	}
	return list, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperr.Transient("count notifications", err)
	}
	return n, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID uint64, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, apperr.Validation("ids is required")
	}
	n, err := s.repo.MarkRead(ctx, userID, ids)
	if err != nil {
		return 0, apperr.Transient("mark read", err)
	}
	return n, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperr.Transient("mark read", err)
	}
	return n, nil
}
