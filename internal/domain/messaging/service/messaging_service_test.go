package service

import (
	"context"
	"errors"
	"testing"

	contentModel "creator_ledger/internal/domain/content/model"
	contentRepository "creator_ledger/internal/domain/content/repository"
	"creator_ledger/internal/domain/messaging/model"
	"creator_ledger/internal/domain/messaging/repository"
	userRepository "creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/internal/realtime"
	"creator_ledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// MockRelater 模拟关系查询
type MockRelater struct {
	mock.Mock
}

func (m *MockRelater) Related(ctx context.Context, a, b uint64) (bool, error) {
	args := m.Called(ctx, a, b)
	return args.Bool(0), args.Error(1)
}

func TestPolicy(t *testing.T) {
	ctx := context.Background()
	conv := &model.Conversation{ParticipantA: 1, ParticipantB: 2}

	t.Run("non participant", func(t *testing.T) {
		relater := new(MockRelater)
		err := NewPolicy(relater).CanMessage(ctx, conv, 3)
		assert.ErrorIs(t, err, apperr.ErrPermission)
		relater.AssertNotCalled(t, "Related", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("related", func(t *testing.T) {
		relater := new(MockRelater)
		relater.On("Related", ctx, uint64(2), uint64(1)).Return(true, nil)
		assert.NoError(t, NewPolicy(relater).CanMessage(ctx, conv, 2))
		relater.AssertExpectations(t)
	})

	t.Run("strangers", func(t *testing.T) {
		relater := new(MockRelater)
		relater.On("Related", ctx, uint64(1), uint64(2)).Return(false, nil)
		assert.ErrorIs(t, NewPolicy(relater).CanMessage(ctx, conv, 1), apperr.ErrPermission)
	})

	t.Run("store error", func(t *testing.T) {
		relater := new(MockRelater)
		relater.On("Related", ctx, uint64(1), uint64(2)).Return(false, errors.New("conn reset"))
		assert.ErrorIs(t, NewPolicy(relater).CanMessage(ctx, conv, 1), apperr.ErrTransient)
	})
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "[tip] 30", Preview(&model.Message{Type: model.TypeTip, Amount: 30}, ""))
	assert.Equal(t, "[gift] Rose", Preview(&model.Message{Type: model.TypeGift, Amount: 100}, "Rose"))
	assert.Equal(t, "[media]", Preview(&model.Message{Type: model.TypeMedia}, ""))
	assert.Equal(t, "[pay-per-view]", Preview(&model.Message{Type: model.TypePayPerView, Content: "secret"}, ""))
	assert.Equal(t, "hello", Preview(&model.Message{Type: model.TypeText, Content: "hello"}, ""))
}

type fixture struct {
	db   *gorm.DB
	repo repository.MessagingRepository
	bus  *realtime.MemoryBus
	svc  MessagingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	repo := repository.NewMessagingRepository(db)
	bus := realtime.NewMemoryBus(16)
	t.Cleanup(func() { _ = bus.Close() })

	courier := NewCourier(repo, realtime.NewEmitter(bus, nil, nil), nil, nil)
	policy := NewPolicy(contentRepository.NewRelationRepository(db))
	svc := NewMessagingService(repo, userRepository.NewUserRepository(db), policy, courier, nil)
	return &fixture{db: db, repo: repo, bus: bus, svc: svc}
}

func TestConversationFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateUsers(t, f.db, 1, 2, 3)

	_, err := f.svc.StartConversation(ctx, 2, 2)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.StartConversation(ctx, 2, 1)
	assert.ErrorIs(t, err, apperr.ErrPermission, "strangers cannot message")

	testutil.MustCreate(t, f.db, &contentModel.Follow{FollowerID: 1, FolloweeID: 2})

	conv, err := f.svc.StartConversation(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), conv.ParticipantA)
	again, err := f.svc.StartConversation(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	sub, err := f.bus.Subscribe(ctx, realtime.ConversationScope(conv.ID))
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.svc.Send(ctx, conv.ID, 3, SendInput{Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrPermission)
	_, err = f.svc.Send(ctx, conv.ID, 1, SendInput{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Send(ctx, conv.ID, 1, SendInput{Content: "hello there"})
	require.NoError(t, err)
	ppv, err := f.svc.Send(ctx, conv.ID, 1, SendInput{Content: "secret", Price: 25})
	require.NoError(t, err)
	assert.Equal(t, model.TypePayPerView, ppv.Type)

	views, total, err := f.svc.ListConversations(ctx, 2, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, int64(2), views[0].Unread)
	assert.Equal(t, uint64(1), views[0].OtherID)
	assert.Equal(t, "[pay-per-view]", views[0].LastMessagePreview)

	// 接收方看不到未解锁内容，发送方可以
	msgs, err := f.svc.ListMessages(ctx, conv.ID, 2, 0, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Empty(t, msgs[1].Content)
	msgs, err = f.svc.ListMessages(ctx, conv.ID, 1, 0, 50)
	require.NoError(t, err)
	assert.Equal(t, "secret", msgs[1].Content)

	ev := <-sub.Events()
	assert.Equal(t, realtime.OpInsert, ev.Op)
	ev = <-sub.Events()
	var pushed model.Message
	require.NoError(t, ev.Decode(&pushed))
	assert.Empty(t, pushed.Content, "pay-per-view events carry the redacted record")

	require.NoError(t, f.svc.MarkRead(ctx, conv.ID, 2))
	views, _, err = f.svc.ListConversations(ctx, 2, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), views[0].Unread)

	assert.ErrorIs(t, f.svc.MarkRead(ctx, conv.ID, 3), apperr.ErrPermission)
}
