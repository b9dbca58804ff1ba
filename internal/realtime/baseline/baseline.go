package baseline

import (
	"context"

	interactionModel "creator_ledger/internal/domain/interaction/model"
	interactionRepository "creator_ledger/internal/domain/interaction/repository"
	messagingModel "creator_ledger/internal/domain/messaging/model"
	messagingRepository "creator_ledger/internal/domain/messaging/repository"
	notificationModel "creator_ledger/internal/domain/notification/model"
	notificationRepository "creator_ledger/internal/domain/notification/repository"
)

// ConversationLimit 会话基线最多加载的消息数
const ConversationLimit = 100

// NotificationLimit 通知流基线条数
const NotificationLimit = 50

// Fetcher 从存储拉取订阅范围的当前状态
// 调用方负责鉴权，这里只做按查看者的付费内容隐藏
type Fetcher struct {
	comments      interactionRepository.InteractionRepository
	messages      messagingRepository.MessagingRepository
	notifications notificationRepository.NotificationRepository
}

func NewFetcher(
	comments interactionRepository.InteractionRepository,
	messages messagingRepository.MessagingRepository,
	notifications notificationRepository.NotificationRepository,
) *Fetcher {
	return &Fetcher{comments: comments, messages: messages, notifications: notifications}
}

// Thread 平铺的评论列表，由视图自行组装成树
func (f *Fetcher) Thread(ctx context.Context, postID uint64) ([]*interactionModel.Comment, error) {
	return f.comments.ListComments(ctx, postID)
}

func (f *Fetcher) Conversation(ctx context.Context, conversationID, viewerID uint64) ([]*messagingModel.Message, error) {
	msgs, err := f.messages.ListMessages(ctx, conversationID, 0, ConversationLimit)
	if err != nil {
		return nil, err
	}
	out := make([]*messagingModel.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Redacted(viewerID)
	}
	return out, nil
}

func (f *Fetcher) Notifications(ctx context.Context, userID uint64) ([]*notificationModel.Notification, error) {
	return f.notifications.Recent(ctx, userID, NotificationLimit)
}
