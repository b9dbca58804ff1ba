package service

import (
	"context"
	"strings"

	"creator_ledger/internal/domain/messaging/model"
	"creator_ledger/internal/domain/messaging/repository"
	notificationModel "creator_ledger/internal/domain/notification/model"
	userRepository "creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/pkg/utils"

	"go.uber.org/zap"
)

// SendInput 普通或按次付费消息
// Price > 0 时为按次付费消息，内容在解锁前对接收方隐藏
type SendInput struct {
	Content  string `validate:"max=4000"`
	MediaURL string `validate:"omitempty,max=500"`
	Price    int64  `validate:"gte=0"`
}

// ConversationView 带当前用户未读数的会话
type ConversationView struct {
	model.Conversation
	OtherID uint64 `json:"otherId"`
	Unread  int64  `json:"unread"`
}

// MessagingService 私信
type MessagingService interface {
	StartConversation(ctx context.Context, userID, otherID uint64) (*model.Conversation, error)
	GetConversation(ctx context.Context, conversationID, userID uint64) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID uint64, page, limit int) ([]ConversationView, int64, error)
	Send(ctx context.Context, conversationID, senderID uint64, input SendInput) (*model.Message, error)
	// ListMessages 返回按查看者视角隐藏付费内容后的消息
	ListMessages(ctx context.Context, conversationID, viewerID, beforeID uint64, limit int) ([]*model.Message, error)
	MarkRead(ctx context.Context, conversationID, userID uint64) error
}

type messagingService struct {
	repo    repository.MessagingRepository
	users   userRepository.UserRepository
	policy  *Policy
	courier *Courier
	log     *zap.Logger
}

func NewMessagingService(repo repository.MessagingRepository, users userRepository.UserRepository, policy *Policy, courier *Courier, log *zap.Logger) MessagingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &messagingService{repo: repo, users: users, policy: policy, courier: courier, log: log}
}

func (s *messagingService) StartConversation(ctx context.Context, userID, otherID uint64) (*model.Conversation, error) {
	if userID == otherID {
		return nil, apperr.Validation("cannot message yourself")
	}
	if _, err := s.users.GetByID(ctx, otherID); err != nil {
		return nil, apperr.FromStore("user", err)
	}
	if err := s.policy.CanContact(ctx, userID, otherID); err != nil {
		return nil, err
	}
	conv, err := s.repo.GetOrCreateConversation(ctx, userID, otherID)
	if err != nil {
		return nil, apperr.Transient("open conversation", err)
	}
	return conv, nil
}

// loadParticipant 会话存在且用户为参与者
func (s *messagingService) loadParticipant(ctx context.Context, conversationID, userID uint64) (*model.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apperr.FromStore("conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.Permission("not a participant of this conversation")
	}
	return conv, nil
}

func (s *messagingService) GetConversation(ctx context.Context, conversationID, userID uint64) (*model.Conversation, error) {
	return s.loadParticipant(ctx, conversationID, userID)
}

func (s *messagingService) ListConversations(ctx context.Context, userID uint64, page, limit int) ([]ConversationView, int64, error) {
	offset, size := (&utils.Pagination{Page: page, Limit: limit}).GetPageOffset()
	convs, total, err := s.repo.ListConversations(ctx, userID, offset, size)
	if err != nil {
		return nil, 0, apperr.Transient("list conversations", err)
	}
	views := make([]ConversationView, len(convs))
	for i := range convs {
		views[i] = ConversationView{
			Conversation: convs[i],
			OtherID:      convs[i].Other(userID),
			Unread:       convs[i].UnreadFor(userID),
		}
	}
	return views, total, nil
}

func (s *messagingService) Send(ctx context.Context, conversationID, senderID uint64, input SendInput) (*model.Message, error) {
	if err := apperr.ValidateStruct(input); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Content) == "" && input.MediaURL == "" {
		return nil, apperr.Validation("message needs content or media")
	}
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apperr.FromStore("conversation", err)
	}
	if err := s.policy.CanMessage(ctx, conv, senderID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Type:           model.TypeText,
		Content:        input.Content,
		MediaURL:       input.MediaURL,
	}
	switch {
	case input.Price > 0:
		msg.Type = model.TypePayPerView
		msg.Amount = input.Price
		msg.UnlockedBy = []uint64{}
	case input.MediaURL != "":
		msg.Type = model.TypeMedia
	}

	if err := s.repo.CreateMessage(context.WithoutCancel(ctx), msg); err != nil {
		return nil, apperr.Transient("create message", err)
	}
	if err := s.courier.Deliver(ctx, conv, msg, Preview(msg, ""), notificationModel.TypeMessage, nil); err != nil {
		return msg, err
	}
	return msg, nil
}

func (s *messagingService) ListMessages(ctx context.Context, conversationID, viewerID, beforeID uint64, limit int) ([]*model.Message, error) {
	if _, err := s.loadParticipant(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	_, limit = utils.Normalize(1, limit)
	msgs, err := s.repo.ListMessages(ctx, conversationID, beforeID, limit)
	if err != nil {
		return nil, apperr.Transient("list messages", err)
	}
	for i, m := range msgs {
		msgs[i] = m.Redacted(viewerID)
	}
	return msgs, nil
}

func (s *messagingService) MarkRead(ctx context.Context, conversationID, userID uint64) error {
	conv, err := s.loadParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.repo.MarkRead(ctx, conv, userID); err != nil {
		return apperr.Transient("mark conversation read", err)
	}
	return nil
}
