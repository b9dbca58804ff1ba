package service

import (
	"context"
	"sync"
	"testing"
	"time"

	contentModel "creator_ledger/internal/domain/content/model"
	contentRepository "creator_ledger/internal/domain/content/repository"
	contentService "creator_ledger/internal/domain/content/service"
	messagingModel "creator_ledger/internal/domain/messaging/model"
	messagingRepository "creator_ledger/internal/domain/messaging/repository"
	messagingService "creator_ledger/internal/domain/messaging/service"
	notificationModel "creator_ledger/internal/domain/notification/model"
	"creator_ledger/internal/domain/wallet/model"
	"creator_ledger/internal/domain/wallet/repository"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/internal/realtime"
	"creator_ledger/internal/testutil"
	"creator_ledger/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*notificationModel.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *notificationModel.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	msgs     messagingRepository.MessagingRepository
	bus      *realtime.MemoryBus
	notifier *recordingNotifier
	relCache contentService.RelationshipCache
	svc      LedgerService
	conv     *messagingModel.Conversation
}

// newFixture 用户 1 关注了创作者 2，双方已有会话
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, func(_ *gorm.DB, w repository.WalletRepository) repository.WalletRepository { return w })
}

// drainingWallets 在写入业务记录并扣款之前清空付款方余额，模拟检查余额之后的并发消费
type drainingWallets struct {
	repository.WalletRepository
	db *gorm.DB
}

func (w *drainingWallets) drain(userID uint64) error {
	return w.db.Model(&model.Wallet{}).Where("user_id = ?", userID).Update("balance", 0).Error
}

func (w *drainingWallets) CreatePaidMessage(ctx context.Context, msg *messagingModel.Message, e repository.Entry) error {
	if err := w.drain(e.UserID); err != nil {
		return err
	}
	return w.WalletRepository.CreatePaidMessage(ctx, msg, e)
}

func (w *drainingWallets) UnlockAndDebit(ctx context.Context, messageID uint64, e repository.Entry) (bool, error) {
	if err := w.drain(e.UserID); err != nil {
		return false, err
	}
	return w.WalletRepository.UnlockAndDebit(ctx, messageID, e)
}

func (w *drainingWallets) PurchaseAndDebit(ctx context.Context, p *contentModel.Purchase, e repository.Entry) (bool, error) {
	if err := w.drain(e.UserID); err != nil {
		return false, err
	}
	return w.WalletRepository.PurchaseAndDebit(ctx, p, e)
}

func newDrainingFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, func(db *gorm.DB, w repository.WalletRepository) repository.WalletRepository {
		return &drainingWallets{WalletRepository: w, db: db}
	})
}

func newFixtureWith(t *testing.T, wrap func(*gorm.DB, repository.WalletRepository) repository.WalletRepository) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	testutil.CreateUsers(t, db, 1, 2, 3)
	testutil.MustCreate(t, db, &contentModel.Follow{FollowerID: 1, FolloweeID: 2})

	bus := realtime.NewMemoryBus(16)
	t.Cleanup(func() { _ = bus.Close() })

	msgs := messagingRepository.NewMessagingRepository(db)
	relations := contentRepository.NewRelationRepository(db)
	relCache := contentService.NewRelationshipCache(relations, cache.NewMemoryCache(), time.Minute, nil, nil)
	notifier := &recordingNotifier{}

	svc := NewLedgerService(Deps{
		Wallets:      wrap(db, repository.NewWalletRepository(db)),
		Messages:     msgs,
		Policy:       messagingService.NewPolicy(relations),
		Courier:      messagingService.NewCourier(msgs, realtime.NewEmitter(bus, nil, nil), notifier, nil),
		Posts:        contentRepository.NewPostRepository(db),
		Purchases:    relCache,
		Notifier:     notifier,
		SharePercent: 90,
	})

	conv, err := msgs.GetOrCreateConversation(context.Background(), 1, 2)
	require.NoError(t, err)
	return &fixture{db: db, msgs: msgs, bus: bus, notifier: notifier, relCache: relCache, svc: svc, conv: conv}
}

func TestShare(t *testing.T) {
	assert.Equal(t, int64(27), Share(30, 90))
	assert.Equal(t, int64(90), Share(100, 90))
	// 余数向下取整
	assert.Equal(t, int64(8), Share(9, 90))
	assert.Equal(t, int64(0), Share(1, 90))
	assert.Equal(t, int64(5), Share(5, 100))
}

func TestSendTip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, 1, 50)

	sub, err := f.bus.Subscribe(ctx, realtime.ConversationScope(f.conv.ID))
	require.NoError(t, err)
	defer sub.Close()

	r, err := f.svc.SendTip(ctx, f.conv.ID, 1, 30)
	require.NoError(t, err)
	assert.True(t, r.Changed)
	assert.Equal(t, int64(30), r.Gross)
	assert.Equal(t, int64(27), r.Credited)
	assert.Equal(t, int64(20), r.Balance)
	require.NotNil(t, r.Message)
	assert.Equal(t, messagingModel.TypeTip, r.Message.Type)

	assert.Equal(t, int64(20), testutil.Balance(t, f.db, 1))
	assert.Equal(t, int64(27), testutil.Balance(t, f.db, 2))

	conv, err := f.msgs.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "[tip] 30", conv.LastMessagePreview)
	assert.Equal(t, int64(1), conv.UnreadFor(2))
	assert.Equal(t, int64(0), conv.UnreadFor(1))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, realtime.OpInsert, ev.Op)
	case <-time.After(time.Second):
		t.Fatal("no conversation event")
	}
	assert.Equal(t, []string{notificationModel.TypeTip}, f.notifier.types())

	var txs []model.WalletTransaction
	require.NoError(t, f.db.Order("id").Find(&txs).Error)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-30), txs[0].Delta)
	assert.Equal(t, model.KindTipSent, txs[0].Kind)
	assert.Equal(t, uint64(2), txs[1].UserID)
	assert.Equal(t, int64(27), txs[1].Delta)
	assert.Equal(t, r.Message.ID, txs[1].RefID)
}

func TestSendTipValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, 1, 50)

	_, err := f.svc.SendTip(ctx, f.conv.ID, 1, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.SendTip(ctx, f.conv.ID, 3, 10)
	assert.ErrorIs(t, err, apperr.ErrPermission)
	_, err = f.svc.SendTip(ctx, 999, 1, 10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// 余额不足：不写消息，不改余额
	_, err = f.svc.SendTip(ctx, f.conv.ID, 1, 51)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	var count int64
	require.NoError(t, f.db.Model(&messagingModel.Message{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Equal(t, int64(50), testutil.Balance(t, f.db, 1))
	assert.Equal(t, int64(0), testutil.Balance(t, f.db, 2))
}

func TestSendGift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, 1, 150)

	rose, err := f.svc.CreateGift(ctx, "Rose", 100)
	require.NoError(t, err)
	retired := &model.Gift{Name: "Old", Price: 10, Active: true}
	testutil.MustCreate(t, f.db, retired)
	require.NoError(t, f.db.Model(retired).Update("active", false).Error)

	_, err = f.svc.SendGift(ctx, f.conv.ID, 1, retired.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.SendGift(ctx, f.conv.ID, 1, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	r, err := f.svc.SendGift(ctx, f.conv.ID, 1, rose.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), r.Credited)
	require.NotNil(t, r.Message.GiftID)
	assert.Equal(t, rose.ID, *r.Message.GiftID)
	assert.Equal(t, int64(50), testutil.Balance(t, f.db, 1))
	assert.Equal(t, int64(90), testutil.Balance(t, f.db, 2))

	conv, err := f.msgs.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "[gift] Rose", conv.LastMessagePreview)

	_, err = f.svc.SendGift(ctx, f.conv.ID, 1, rose.ID)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	gifts, err := f.svc.ListGifts(ctx)
	require.NoError(t, err)
	require.Len(t, gifts, 1)
	assert.Equal(t, "Rose", gifts[0].Name)
}

func TestUnlockPayPerView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, 1, 100)

	ppv := &messagingModel.Message{ConversationID: f.conv.ID, SenderID: 2, Type: messagingModel.TypePayPerView, Content: "secret", Amount: 40}
	text := &messagingModel.Message{ConversationID: f.conv.ID, SenderID: 2, Type: messagingModel.TypeText, Content: "hi"}
	require.NoError(t, f.msgs.CreateMessage(ctx, ppv))
	require.NoError(t, f.msgs.CreateMessage(ctx, text))

	_, err := f.svc.UnlockPayPerView(ctx, text.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.UnlockPayPerView(ctx, ppv.ID, 3)
	assert.ErrorIs(t, err, apperr.ErrPermission)

	// 发送者自己不需要解锁
	r, err := f.svc.UnlockPayPerView(ctx, ppv.ID, 2)
	require.NoError(t, err)
	assert.False(t, r.Changed)

	r, err = f.svc.UnlockPayPerView(ctx, ppv.ID, 1)
	require.NoError(t, err)
	assert.True(t, r.Changed)
	assert.Equal(t, "secret", r.Message.Redacted(1).Content)
	assert.Equal(t, int64(60), testutil.Balance(t, f.db, 1))
	assert.Equal(t, int64(36), testutil.Balance(t, f.db, 2))

	// 重复解锁只扣一次
	r, err = f.svc.UnlockPayPerView(ctx, ppv.ID, 1)
	require.NoError(t, err)
	assert.False(t, r.Changed)
	assert.Equal(t, int64(60), testutil.Balance(t, f.db, 1))

	reloaded, err := f.msgs.GetMessage(ctx, ppv.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsUnlockedFor(1))
	assert.Equal(t, []string{notificationModel.TypeUnlock}, f.notifier.types())
}

func TestUnlockPayPerViewConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, 1, 100)

	ppv := &messagingModel.Message{ConversationID: f.conv.ID, SenderID: 2, Type: messagingModel.TypePayPerView, Content: "secret", Amount: 40}
	require.NoError(t, f.msgs.CreateMessage(ctx, ppv))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UnlockPayPerView(ctx, ppv.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(60), testutil.Balance(t, f.db, 1))
	assert.Equal(t, int64(36), testutil.Balance(t, f.db, 2))
}

func TestPurchaseContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, 1, 100)
	paid := testutil.CreatePost(t, f.db, 10, 2, contentModel.VisibilityPublic, false, 30)
	free := testutil.CreatePost(t, f.db, 11, 2, contentModel.VisibilityPublic, false, 0)

	_, err := f.svc.PurchaseContent(ctx, free.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.PurchaseContent(ctx, paid.ID, 2)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.PurchaseContent(ctx, 999, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// 先读一次，让缓存记住"未购买"
	rel, err := f.relCache.Resolve(ctx, 1, []*contentModel.Post{paid})
	require.NoError(t, err)
	assert.False(t, rel[paid.ID].IsPurchased)

	r, err := f.svc.PurchaseContent(ctx, paid.ID, 1)
	require.NoError(t, err)
	assert.True(t, r.Changed)
	assert.Equal(t, paid.ID, r.PostID)
	assert.Equal(t, int64(70), testutil.Balance(t, f.db, 1))
	assert.Equal(t, int64(27), testutil.Balance(t, f.db, 2))

	rel, err = f.relCache.Resolve(ctx, 1, []*contentModel.Post{paid})
	require.NoError(t, err)
	assert.True(t, rel[paid.ID].IsPurchased)

	r, err = f.svc.PurchaseContent(ctx, paid.ID, 1)
	require.NoError(t, err)
	assert.False(t, r.Changed)
	assert.Equal(t, int64(70), testutil.Balance(t, f.db, 1))
	assert.Equal(t, []string{notificationModel.TypePurchase}, f.notifier.types())
}

func TestPurchaseInsufficient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := testutil.CreatePost(t, f.db, 10, 2, contentModel.VisibilityPublic, false, 30)

	_, err := f.svc.PurchaseContent(ctx, paid.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	var count int64
	require.NoError(t, f.db.Model(&contentModel.Purchase{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGrantAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Grant(ctx, 99, 3, -5)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	r, err := f.svc.Grant(ctx, 99, 3, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(200), r.Balance)
	_, err = f.svc.Grant(ctx, 99, 3, 15)
	require.NoError(t, err)

	balance, err := f.svc.Balance(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(215), balance)

	txs, total, err := f.svc.History(ctx, 3, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, txs, 2)
	assert.Equal(t, model.KindGrant, txs[0].Kind)

	// 没有钱包的用户余额为 0
	balance, err = f.svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestSendTipDebitLosesRace(t *testing.T) {
	f := newDrainingFixture(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, 1, 50)

	sub, err := f.bus.Subscribe(ctx, realtime.ConversationScope(f.conv.ID))
	require.NoError(t, err)
	defer sub.Close()

	r, err := f.svc.SendTip(ctx, f.conv.ID, 1, 30)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assert.Nil(t, r)

	// 扣款失败时打赏消息不落库，会话与流水都不变
	msgs, err := f.msgs.ListMessages(ctx, f.conv.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	conv, err := f.msgs.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Empty(t, conv.LastMessagePreview)
	assert.Zero(t, conv.UnreadFor(2))

	var txs int64
	require.NoError(t, f.db.Model(&model.WalletTransaction{}).Count(&txs).Error)
	assert.Zero(t, txs)
	assert.Equal(t, int64(0), testutil.Balance(t, f.db, 2))
	assert.Len(t, sub.Events(), 0)
	assert.Empty(t, f.notifier.types())
}

func TestUnlockPayPerViewDebitLosesRace(t *testing.T) {
	f := newDrainingFixture(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, 1, 40)

	ppv := &messagingModel.Message{ConversationID: f.conv.ID, SenderID: 2, Type: messagingModel.TypePayPerView, Content: "secret", Amount: 40}
	require.NoError(t, f.msgs.CreateMessage(ctx, ppv))

	r, err := f.svc.UnlockPayPerView(ctx, ppv.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assert.Nil(t, r)

	// 重试不能走"已解锁"分支拿到内容
	r, err = f.svc.UnlockPayPerView(ctx, ppv.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assert.Nil(t, r)

	reloaded, err := f.msgs.GetMessage(ctx, ppv.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsUnlockedFor(1))
	assert.Empty(t, reloaded.Redacted(1).Content)

	var unlocks int64
	require.NoError(t, f.db.Model(&messagingModel.MessageUnlock{}).Count(&unlocks).Error)
	assert.Zero(t, unlocks)
	assert.Equal(t, int64(0), testutil.Balance(t, f.db, 2))
	assert.Empty(t, f.notifier.types())
}

func TestPurchaseContentDebitLosesRace(t *testing.T) {
	f := newDrainingFixture(t)
	ctx := context.Background()
	testutil.Fund(t, f.db, 1, 30)
	paid := testutil.CreatePost(t, f.db, 10, 2, contentModel.VisibilityPublic, false, 30)

	r, err := f.svc.PurchaseContent(ctx, paid.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assert.Nil(t, r)

	r, err = f.svc.PurchaseContent(ctx, paid.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assert.Nil(t, r)

	rel, err := f.relCache.Resolve(ctx, 1, []*contentModel.Post{paid})
	require.NoError(t, err)
	assert.False(t, rel[paid.ID].IsPurchased)

	var purchases int64
	require.NoError(t, f.db.Model(&contentModel.Purchase{}).Count(&purchases).Error)
	assert.Zero(t, purchases)
	assert.Equal(t, int64(0), testutil.Balance(t, f.db, 2))
}
