package service

import (
	"context"
	"errors"

	contentModel "creator_ledger/internal/domain/content/model"
	contentRepository "creator_ledger/internal/domain/content/repository"
	messagingModel "creator_ledger/internal/domain/messaging/model"
	messagingRepository "creator_ledger/internal/domain/messaging/repository"
	messagingService "creator_ledger/internal/domain/messaging/service"
	notificationModel "creator_ledger/internal/domain/notification/model"
	notificationService "creator_ledger/internal/domain/notification/service"
	"creator_ledger/internal/domain/wallet/model"
	"creator_ledger/internal/domain/wallet/repository"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/pkg/metrics"
	"creator_ledger/pkg/utils"

	"go.uber.org/zap"
)

// 资金操作类型，用于指标与回执
const (
	OpTip      = "tip"
	OpGift     = "gift"
	OpUnlock   = "unlock"
	OpPurchase = "purchase"
	OpGrant    = "grant"
)

// Receipt 资金操作回执
// Changed=false 表示幂等的空操作 (已解锁、已购买)，此时没有扣款
type Receipt struct {
	Op       string                  `json:"op"`
	Changed  bool                    `json:"changed"`
	Gross    int64                   `json:"gross"`
	Credited int64                   `json:"credited"`
	Balance  int64                   `json:"balance"` // 付款方操作后的余额
	Message  *messagingModel.Message `json:"message,omitempty"`
	PostID   uint64                  `json:"postId,omitempty"`
}

// PurchaseInvalidator 购买后失效关系缓存
type PurchaseInvalidator interface {
	InvalidatePurchase(ctx context.Context, userID, postID uint64)
}

// LedgerService 资金账本
// 顺序：校验 (金额、礼物、权限、余额) → 业务记录与扣款同一事务提交 → 入账 → 会话更新
// 扣款失败时业务记录一并回滚；扣款提交之后的失败直接返回，不回滚
type LedgerService interface {
	SendTip(ctx context.Context, conversationID, senderID uint64, amount int64) (*Receipt, error)
	SendGift(ctx context.Context, conversationID, senderID, giftID uint64) (*Receipt, error)
	UnlockPayPerView(ctx context.Context, messageID, userID uint64) (*Receipt, error)
	PurchaseContent(ctx context.Context, postID, userID uint64) (*Receipt, error)

	Balance(ctx context.Context, userID uint64) (int64, error)
	History(ctx context.Context, userID uint64, page, limit int) ([]model.WalletTransaction, int64, error)
	ListGifts(ctx context.Context) ([]model.Gift, error)
	CreateGift(ctx context.Context, name string, price int64) (*model.Gift, error)
	// Grant 管理员入账，是初始化余额的唯一途径
	Grant(ctx context.Context, adminID, userID uint64, amount int64) (*Receipt, error)
}

// Deps 账本依赖
type Deps struct {
	Wallets      repository.WalletRepository
	Messages     messagingRepository.MessagingRepository
	Policy       *messagingService.Policy
	Courier      *messagingService.Courier
	Posts        contentRepository.PostRepository
	Purchases    PurchaseInvalidator
	Notifier     notificationService.Notifier
	Metrics      *metrics.MetricsCollector
	Logger       *zap.Logger
	SharePercent int64
}

type ledgerService struct {
	Deps
}

func NewLedgerService(d Deps) LedgerService {
	if d.Notifier == nil {
		d.Notifier = notificationService.NopNotifier{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &ledgerService{Deps: d}
}

// Share 创作者分成，向下取整，余数不入账也不记录
func Share(gross, percent int64) int64 {
	return gross * percent / 100
}

// requireFunds 变更前的余额检查
func (s *ledgerService) requireFunds(ctx context.Context, userID uint64, amount int64) error {
	balance, err := s.Wallets.GetBalance(ctx, userID)
	if err != nil {
		return apperr.Transient("load balance", err)
	}
	if balance < amount {
		return apperr.InsufficientBalance(balance, amount)
	}
	return nil
}

// debitFailed 翻译业务记录+扣款事务的错误，此时没有任何写入生效
func (s *ledgerService) debitFailed(ctx context.Context, op, what string, payer uint64, gross int64, err error) error {
	if errors.Is(err, repository.ErrInsufficientFunds) {
		balance, _ := s.Wallets.GetBalance(ctx, payer)
		s.Metrics.RecordLedgerOp(op, "insufficient_balance", gross)
		return apperr.InsufficientBalance(balance, gross)
	}
	s.Metrics.RecordLedgerOp(op, "debit_failed", gross)
	return apperr.Transient(what, err)
}

// credit 扣款提交后给收款方入账分成，返回入账金额
func (s *ledgerService) credit(ctx context.Context, op string, payer, payee uint64, gross int64, earnedKind, refType string, refID uint64) (int64, error) {
	credited := Share(gross, s.SharePercent)
	if credited > 0 {
		if err := s.Wallets.Credit(ctx, repository.Entry{UserID: payee, Amount: credited, Kind: earnedKind, RefType: refType, RefID: refID}); err != nil {
			s.Logger.Error("credit after debit failed",
				zap.String("op", op),
				zap.Uint64("payer", payer),
				zap.Uint64("payee", payee),
				zap.Int64("amount", credited),
				zap.Error(err),
			)
			s.Metrics.RecordLedgerOp(op, "credit_failed", gross)
			return 0, apperr.Transient("credit", err)
		}
	}
	s.Metrics.RecordLedgerOp(op, "ok", gross)
	return credited, nil
}

func (s *ledgerService) receipt(ctx context.Context, op string, payer uint64, gross, credited int64) *Receipt {
	balance, err := s.Wallets.GetBalance(ctx, payer)
	if err != nil {
		s.Logger.Warn("load balance for receipt", zap.Uint64("user_id", payer), zap.Error(err))
	}
	return &Receipt{Op: op, Changed: true, Gross: gross, Credited: credited, Balance: balance}
}

// loadConversation 会话存在且发送方有权限
func (s *ledgerService) loadConversation(ctx context.Context, conversationID, senderID uint64) (*messagingModel.Conversation, error) {
	conv, err := s.Messages.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apperr.FromStore("conversation", err)
	}
	if err := s.Policy.CanMessage(ctx, conv, senderID); err != nil {
		return nil, err
	}
	return conv, nil
}

// transfer 打赏与礼物共用的流程
func (s *ledgerService) transfer(ctx context.Context, op string, conv *messagingModel.Conversation, msg *messagingModel.Message, preview, paidKind, earnedKind, notifyType string) (*Receipt, error) {
	if err := s.requireFunds(ctx, msg.SenderID, msg.Amount); err != nil {
		s.Metrics.RecordLedgerOp(op, "insufficient_balance", msg.Amount)
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	paid := repository.Entry{UserID: msg.SenderID, Amount: msg.Amount, Kind: paidKind, RefType: model.RefMessage}
	if err := s.Wallets.CreatePaidMessage(ctx, msg, paid); err != nil {
		msg.ID = 0
		return nil, s.debitFailed(ctx, op, "create message", msg.SenderID, msg.Amount, err)
	}
	receiver := conv.Other(msg.SenderID)
	credited, err := s.credit(ctx, op, msg.SenderID, receiver, msg.Amount, earnedKind, model.RefMessage, msg.ID)
	if err != nil {
		return &Receipt{Op: op, Changed: true, Gross: msg.Amount, Message: msg}, err
	}

	r := s.receipt(ctx, op, msg.SenderID, msg.Amount, credited)
	r.Message = msg
	payload := map[string]interface{}{"amount": msg.Amount}
	if err := s.Courier.Deliver(ctx, conv, msg, preview, notifyType, payload); err != nil {
		return r, err
	}
	return r, nil
}

func (s *ledgerService) SendTip(ctx context.Context, conversationID, senderID uint64, amount int64) (*Receipt, error) {
	if amount <= 0 {
		return nil, apperr.Validation("tip amount must be positive")
	}
	conv, err := s.loadConversation(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	msg := &messagingModel.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Type:           messagingModel.TypeTip,
		Amount:         amount,
	}
	return s.transfer(ctx, OpTip, conv, msg, messagingService.Preview(msg, ""),
		model.KindTipSent, model.KindTipReceived, notificationModel.TypeTip)
}

func (s *ledgerService) SendGift(ctx context.Context, conversationID, senderID, giftID uint64) (*Receipt, error) {
	gift, err := s.Wallets.GetGift(ctx, giftID)
	if err != nil {
		return nil, apperr.FromStore("gift", err)
	}
	if !gift.Active || gift.Price <= 0 {
		return nil, apperr.Validation("gift %d is not available", giftID)
	}
	conv, err := s.loadConversation(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	id := gift.ID
	msg := &messagingModel.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Type:           messagingModel.TypeGift,
		Content:        gift.Name,
		Amount:         gift.Price,
		GiftID:         &id,
	}
	return s.transfer(ctx, OpGift, conv, msg, messagingService.Preview(msg, gift.Name),
		model.KindGiftSent, model.KindGiftReceived, notificationModel.TypeGift)
}

func (s *ledgerService) UnlockPayPerView(ctx context.Context, messageID, userID uint64) (*Receipt, error) {
	msg, err := s.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, apperr.FromStore("message", err)
	}
	if msg.Type != messagingModel.TypePayPerView {
		return nil, apperr.Validation("message %d is not pay-per-view", messageID)
	}
	conv, err := s.Messages.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, apperr.FromStore("conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperr.Permission("not a participant of this conversation")
	}

	// 发送者与已解锁用户：成功的空操作
	if msg.IsUnlockedFor(userID) {
		return &Receipt{Op: OpUnlock, Message: msg}, nil
	}
	if err := s.requireFunds(ctx, userID, msg.Amount); err != nil {
		s.Metrics.RecordLedgerOp(OpUnlock, "insufficient_balance", msg.Amount)
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	paid := repository.Entry{UserID: userID, Amount: msg.Amount, Kind: model.KindUnlockPaid, RefType: model.RefMessage, RefID: msg.ID}
	created, err := s.Wallets.UnlockAndDebit(ctx, msg.ID, paid)
	if err != nil {
		return nil, s.debitFailed(ctx, OpUnlock, "unlock", userID, msg.Amount, err)
	}
	if !created {
		// 并发解锁由唯一索引挡住，只有一笔扣款
		s.Metrics.RecordLedgerOp(OpUnlock, "noop", msg.Amount)
		msg.UnlockedBy = append(msg.UnlockedBy, userID)
		return &Receipt{Op: OpUnlock, Message: msg}, nil
	}
	msg.UnlockedBy = append(msg.UnlockedBy, userID)

	credited, err := s.credit(ctx, OpUnlock, userID, msg.SenderID, msg.Amount, model.KindUnlockEarned, model.RefMessage, msg.ID)
	if err != nil {
		return &Receipt{Op: OpUnlock, Changed: true, Gross: msg.Amount, Message: msg}, err
	}

	r := s.receipt(ctx, OpUnlock, userID, msg.Amount, credited)
	r.Message = msg
	s.Courier.Updated(ctx, msg, userID)
	s.Notifier.Notify(ctx, notificationModel.New(msg.SenderID, userID, notificationModel.TypeUnlock, msg.ID,
		map[string]interface{}{"conversationId": conv.ID, "amount": msg.Amount}))
	return r, nil
}

func (s *ledgerService) PurchaseContent(ctx context.Context, postID, userID uint64) (*Receipt, error) {
	post, err := s.Posts.GetByID(ctx, postID)
	if err != nil {
		return nil, apperr.FromStore("post", err)
	}
	if post.OwnerID == userID {
		return nil, apperr.Validation("cannot purchase your own post")
	}
	if post.UnlockPrice <= 0 {
		return nil, apperr.Validation("post %d is free", postID)
	}

	owned, err := s.Wallets.HasPurchase(ctx, userID, postID)
	if err != nil {
		return nil, apperr.Transient("load purchase", err)
	}
	if owned {
		return &Receipt{Op: OpPurchase, PostID: postID}, nil
	}
	if err := s.requireFunds(ctx, userID, post.UnlockPrice); err != nil {
		s.Metrics.RecordLedgerOp(OpPurchase, "insufficient_balance", post.UnlockPrice)
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	paid := repository.Entry{UserID: userID, Amount: post.UnlockPrice, Kind: model.KindPurchasePaid, RefType: model.RefPost, RefID: postID}
	created, err := s.Wallets.PurchaseAndDebit(ctx, &contentModel.Purchase{UserID: userID, PostID: postID, Amount: post.UnlockPrice}, paid)
	if err != nil {
		return nil, s.debitFailed(ctx, OpPurchase, "purchase", userID, post.UnlockPrice, err)
	}
	if !created {
		s.Metrics.RecordLedgerOp(OpPurchase, "noop", post.UnlockPrice)
		return &Receipt{Op: OpPurchase, PostID: postID}, nil
	}
	// 购买记录是可见性的依据，写入后立即失效缓存
	s.Purchases.InvalidatePurchase(ctx, userID, postID)

	credited, err := s.credit(ctx, OpPurchase, userID, post.OwnerID, post.UnlockPrice, model.KindPurchaseSold, model.RefPost, postID)
	if err != nil {
		return &Receipt{Op: OpPurchase, Changed: true, Gross: post.UnlockPrice, PostID: postID}, err
	}

	r := s.receipt(ctx, OpPurchase, userID, post.UnlockPrice, credited)
	r.PostID = postID
	s.Notifier.Notify(ctx, notificationModel.New(post.OwnerID, userID, notificationModel.TypePurchase, postID,
		map[string]interface{}{"amount": post.UnlockPrice}))
	return r, nil
}

func (s *ledgerService) Balance(ctx context.Context, userID uint64) (int64, error) {
	balance, err := s.Wallets.GetBalance(ctx, userID)
	if err != nil {
		return 0, apperr.Transient("load balance", err)
	}
	return balance, nil
}

func (s *ledgerService) History(ctx context.Context, userID uint64, page, limit int) ([]model.WalletTransaction, int64, error) {
	offset, size := (&utils.Pagination{Page: page, Limit: limit}).GetPageOffset()
	txs, total, err := s.Wallets.History(ctx, userID, offset, size)
	if err != nil {
		return nil, 0, apperr.Transient("load history", err)
	}
	return txs, total, nil
}

func (s *ledgerService) ListGifts(ctx context.Context) ([]model.Gift, error) {
	gifts, err := s.Wallets.ListGifts(ctx)
	if err != nil {
		return nil, apperr.Transient("list gifts", err)
	}
	return gifts, nil
}

func (s *ledgerService) CreateGift(ctx context.Context, name string, price int64) (*model.Gift, error) {
	if name == "" || price <= 0 {
		return nil, apperr.Validation("gift needs a name and a positive price")
	}
	gift := &model.Gift{Name: name, Price: price, Active: true}
	if err := s.Wallets.CreateGift(ctx, gift); err != nil {
		return nil, apperr.Transient("create gift", err)
	}
	return gift, nil
}

func (s *ledgerService) Grant(ctx context.Context, adminID, userID uint64, amount int64) (*Receipt, error) {
	if amount <= 0 {
		return nil, apperr.Validation("grant amount must be positive")
	}
	err := s.Wallets.Credit(context.WithoutCancel(ctx), repository.Entry{
		UserID:  userID,
		Amount:  amount,
		Kind:    model.KindGrant,
		RefType: model.RefGrant,
		RefID:   adminID,
	})
	if err != nil {
		s.Metrics.RecordLedgerOp(OpGrant, "credit_failed", amount)
		return nil, apperr.Transient("grant", err)
	}
	s.Metrics.RecordLedgerOp(OpGrant, "ok", amount)
	s.Logger.Info("balance granted", zap.Uint64("admin_id", adminID), zap.Uint64("user_id", userID), zap.Int64("amount", amount))

	balance, err := s.Wallets.GetBalance(ctx, userID)
	if err != nil {
		return nil, apperr.Transient("load balance", err)
	}
	return &Receipt{Op: OpGrant, Changed: true, Gross: amount, Credited: amount, Balance: balance}, nil
}
