package service

import (
	"context"

	"creator_ledger/internal/domain/notification/model"
)

// Notifier 通知投递，调用方不等待结果，也不感知失败
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification)
}

// NopNotifier 丢弃所有通知
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *model.Notification) {}
