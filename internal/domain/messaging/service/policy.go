package service

import (
	"context"

	"creator_ledger/internal/domain/messaging/model"
	"creator_ledger/internal/pkg/apperr"
)

// Relater 判断两位用户之间是否存在关注或有效订阅
type Relater interface {
	Related(ctx context.Context, a, b uint64) (bool, error)
}

// Policy 私信权限：发送者必须是会话参与者，且与对方存在关注 (任一方向) 或有效订阅 (任一方向)
type Policy struct {
	relations Relater
}

func NewPolicy(relations Relater) *Policy {
	return &Policy{relations: relations}
}

// CanMessage 返回 nil 表示允许
func (p *Policy) CanMessage(ctx context.Context, conv *model.Conversation, senderID uint64) error {
	if !conv.HasParticipant(senderID) {
		return apperr.Permission("not a participant of this conversation")
	}
	return p.CanContact(ctx, senderID, conv.Other(senderID))
}

// CanContact 两位用户能否建立私信
func (p *Policy) CanContact(ctx context.Context, senderID, receiverID uint64) error {
	ok, err := p.relations.Related(ctx, senderID, receiverID)
	if err != nil {
		return apperr.Transient("load relationship", err)
	}
	if !ok {
		return apperr.Permission("you need to follow or subscribe to message this user")
	}
	return nil
}
