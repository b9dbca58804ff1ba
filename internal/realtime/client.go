package realtime

import (
	"context"

	interactionModel "creator_ledger/internal/domain/interaction/model"
	messagingModel "creator_ledger/internal/domain/messaging/model"
	notificationModel "creator_ledger/internal/domain/notification/model"

	"go.uber.org/zap"
)

// BaselineFetcher 拉取订阅范围的当前状态
type BaselineFetcher interface {
	Thread(ctx context.Context, postID uint64) ([]*interactionModel.Comment, error)
	Conversation(ctx context.Context, conversationID, viewerID uint64) ([]*messagingModel.Message, error)
	Notifications(ctx context.Context, userID uint64) ([]*notificationModel.Notification, error)
}

// Client 某个用户的实时订阅客户端
// 每次订阅都会新建通道并重新拉取基线，退订后本地状态丢弃
type Client struct {
	bus     Subscriber
	fetcher BaselineFetcher
	userID  uint64
	log     *zap.Logger
}

func NewClient(bus Subscriber, fetcher BaselineFetcher, userID uint64, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{bus: bus, fetcher: fetcher, userID: userID, log: log.With(zap.Uint64("user_id", userID))}
}

// SubscribeToThread 订阅帖子评论串
// onChange 在每次状态变化后收到事件与评论树快照
func (c *Client) SubscribeToThread(ctx context.Context, postID uint64, onChange func(Event, []*interactionModel.Comment)) (*ThreadView, func(), error) {
	v := NewThreadView(c.userID)
	ch := newChannel(ThreadScope(postID), c.bus, v,
		func(ctx context.Context) error {
			comments, err := c.fetcher.Thread(ctx, postID)
			if err != nil {
				return err
			}
			v.Load(comments)
			return nil
		},
		func(ev Event) {
			if onChange != nil {
				onChange(ev, v.Snapshot())
			}
		},
		c.log,
	)
	if err := ch.Start(ctx); err != nil {
		return nil, nil, err
	}
	return v, ch.Stop, nil
}

// SubscribeToConversation 订阅私信会话
func (c *Client) SubscribeToConversation(ctx context.Context, conversationID uint64, onChange func(Event, []*messagingModel.Message)) (*ConversationView, func(), error) {
	v := NewConversationView(c.userID)
	ch := newChannel(ConversationScope(conversationID), c.bus, v,
		func(ctx context.Context) error {
			msgs, err := c.fetcher.Conversation(ctx, conversationID, c.userID)
			if err != nil {
				return err
			}
			v.Load(msgs)
			return nil
		},
		func(ev Event) {
			if onChange != nil {
				onChange(ev, v.Snapshot())
			}
		},
		c.log,
	)
	if err := ch.Start(ctx); err != nil {
		return nil, nil, err
	}
	return v, ch.Stop, nil
}

// SubscribeToNotifications 订阅当前用户的通知流
func (c *Client) SubscribeToNotifications(ctx context.Context, onChange func(Event, []*notificationModel.Notification)) (*NotificationView, func(), error) {
	v := NewNotificationView(c.userID)
	ch := newChannel(NotificationScope(c.userID), c.bus, v,
		func(ctx context.Context) error {
			items, err := c.fetcher.Notifications(ctx, c.userID)
			if err != nil {
				return err
			}
			v.Load(items)
			return nil
		},
		func(ev Event) {
			if onChange != nil {
				onChange(ev, v.Snapshot())
			}
		},
		c.log,
	)
	if err := ch.Start(ctx); err != nil {
		return nil, nil, err
	}
	return v, ch.Stop, nil
}
