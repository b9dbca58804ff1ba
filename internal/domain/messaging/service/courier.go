package service

import (
	"context"

	"creator_ledger/internal/domain/messaging/model"
	"creator_ledger/internal/domain/messaging/repository"
	notificationModel "creator_ledger/internal/domain/notification/model"
	notificationService "creator_ledger/internal/domain/notification/service"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/internal/realtime"

	"go.uber.org/zap"
)

// Courier 消息落库之后的投递：会话预览与未读数、实时事件、通知
// 私信与资金账本共用
type Courier struct {
	repo     repository.MessagingRepository
	emitter  *realtime.Emitter
	notifier notificationService.Notifier
	log      *zap.Logger
}

func NewCourier(repo repository.MessagingRepository, emitter *realtime.Emitter, notifier notificationService.Notifier, log *zap.Logger) *Courier {
	if notifier == nil {
		notifier = notificationService.NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Courier{repo: repo, emitter: emitter, notifier: notifier, log: log}
}

// Deliver 更新会话后广播消息并通知接收方
// 会话更新失败时返回 Transient，消息本身不回滚
func (c *Courier) Deliver(ctx context.Context, conv *model.Conversation, msg *model.Message, preview, notifyType string, payload map[string]interface{}) error {
	receiver := conv.Other(msg.SenderID)
	if err := c.repo.RecordDelivery(context.WithoutCancel(ctx), conv, msg, preview); err != nil {
		c.log.Error("update conversation after message",
			zap.Uint64("conversation_id", conv.ID),
			zap.Uint64("message_id", msg.ID),
			zap.Error(err),
		)
		return apperr.Transient("update conversation", err)
	}

	// 事件对双方广播，付费内容按接收方视角隐藏
	c.emitter.Emit(ctx, realtime.ConversationScope(conv.ID), realtime.OpInsert, msg.ID, nil, msg.SenderID, msg.Redacted(receiver))

	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["conversationId"] = conv.ID
	payload["preview"] = preview
	c.notifier.Notify(ctx, notificationModel.New(receiver, msg.SenderID, notifyType, msg.ID, payload))
	return nil
}

// Updated 广播消息变更 (例如解锁后可见内容变化)
func (c *Courier) Updated(ctx context.Context, msg *model.Message, origin uint64) {
	c.emitter.Emit(ctx, realtime.ConversationScope(msg.ConversationID), realtime.OpUpdate, msg.ID, nil, origin, msg)
}
