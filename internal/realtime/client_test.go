package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	interactionModel "creator_ledger/internal/domain/interaction/model"
	messagingModel "creator_ledger/internal/domain/messaging/model"
	notificationModel "creator_ledger/internal/domain/notification/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher 返回固定基线并记录调用次数
type stubFetcher struct {
	mu       sync.Mutex
	comments []*interactionModel.Comment
	calls    int
	// beforeReturn 在返回基线前执行，用于模拟拉取期间到达的事件
	beforeReturn func()
}

func (f *stubFetcher) Thread(ctx context.Context, postID uint64) ([]*interactionModel.Comment, error) {
	f.mu.Lock()
	f.calls++
	hook := f.beforeReturn
	out := append([]*interactionModel.Comment(nil), f.comments...)
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *stubFetcher) Conversation(ctx context.Context, conversationID, viewerID uint64) ([]*messagingModel.Message, error) {
	return nil, nil
}

func (f *stubFetcher) Notifications(ctx context.Context, userID uint64) ([]*notificationModel.Notification, error) {
	return nil, nil
}

func (f *stubFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func collect() (func(Event, []*interactionModel.Comment), func() []Event) {
	var mu sync.Mutex
	var events []Event
	return func(ev Event, _ []*interactionModel.Comment) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}, func() []Event {
			mu.Lock()
			defer mu.Unlock()
			return append([]Event(nil), events...)
		}
}

func TestSubscribeToThreadMergesEvents(t *testing.T) {
	bus := NewMemoryBus(16)
	fetcher := &stubFetcher{comments: []*interactionModel.Comment{comment(1, 2, nil, "root")}}
	client := NewClient(bus, fetcher, 1, nil)

	onChange, events := collect()
	view, unsubscribe, err := client.SubscribeToThread(context.Background(), 42, onChange)
	require.NoError(t, err)
	defer unsubscribe()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, event(t, OpInsert, 2, ptr(1), 3, comment(2, 3, ptr(1), "reply"))))
	require.NoError(t, bus.Publish(ctx, event(t, OpInsert, 3, nil, 1, comment(3, 1, nil, "echo"))))
	require.NoError(t, bus.Publish(ctx, event(t, OpInsert, 4, nil, 3, comment(4, 3, nil, "other"))))

	assert.Eventually(t, func() bool { return len(events()) == 2 }, time.Second, 5*time.Millisecond)
	snap := view.Snapshot()
	require.Len(t, snap, 2)
	assert.Len(t, snap[0].Replies, 1)
	assert.False(t, view.Contains(3))
}

func TestEventsDuringBaselineFetchAreNotLost(t *testing.T) {
	bus := NewMemoryBus(16)
	fetcher := &stubFetcher{comments: []*interactionModel.Comment{comment(1, 2, nil, "root")}}
	// 拉取基线期间有新评论写入：基线里已有 id=5，同时事件也到达
	fetcher.beforeReturn = func() {
		_ = bus.Publish(context.Background(), event(t, OpInsert, 5, nil, 3, comment(5, 3, nil, "late")))
		_ = bus.Publish(context.Background(), event(t, OpInsert, 6, nil, 3, comment(6, 3, nil, "later")))
	}
	fetcher.comments = append(fetcher.comments, comment(5, 3, nil, "late"))

	view, unsubscribe, err := NewClient(bus, fetcher, 1, nil).SubscribeToThread(context.Background(), 42, nil)
	require.NoError(t, err)
	defer unsubscribe()

	assert.Eventually(t, func() bool { return view.Contains(6) }, time.Second, 5*time.Millisecond)
	assert.Len(t, view.Snapshot(), 3)
}

func TestUnsubscribeTearsDownAndResubscribeRefetches(t *testing.T) {
	bus := NewMemoryBus(16)
	fetcher := &stubFetcher{}
	client := NewClient(bus, fetcher, 1, nil)

	_, unsubscribe, err := client.SubscribeToThread(context.Background(), 42, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers(ThreadScope(42)))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, bus.Subscribers(ThreadScope(42)))

	_, unsubscribe, err = client.SubscribeToThread(context.Background(), 42, nil)
	require.NoError(t, err)
	defer unsubscribe()
	assert.Equal(t, 2, fetcher.Calls())
}

func TestChannelStateMachine(t *testing.T) {
	bus := NewMemoryBus(16)
	v := NewThreadView(1)
	ch := newChannel(ThreadScope(42), bus, v, func(ctx context.Context) error { return nil }, nil, nil)
	assert.Equal(t, StateIdle, ch.State())

	require.NoError(t, ch.Start(context.Background()))
	assert.Equal(t, StateReceiving, ch.State())
	assert.Error(t, ch.Start(context.Background()))

	ch.Stop()
	assert.Equal(t, StateTornDown, ch.State())
}

func TestStopDuringResyncClosesNewSubscription(t *testing.T) {
	bus := NewMemoryBus(16)
	scope := ThreadScope(42)
	var ch *Channel
	var calls atomic.Int32
	stopped := make(chan struct{})
	// 第二次拉基线发生在重新订阅期间，此时并发 Stop
	baseline := func(ctx context.Context) error {
		if calls.Add(1) == 2 {
			go func() {
				ch.Stop()
				close(stopped)
			}()
			for ch.State() != StateTornDown {
				time.Sleep(time.Millisecond)
			}
		}
		return nil
	}
	onChange, events := collectOps()
	ch = newChannel(scope, bus, NewThreadView(1), baseline, onChange, nil)
	require.NoError(t, ch.Start(context.Background()))

	ch.mu.Lock()
	first := ch.sub
	ch.mu.Unlock()
	require.NoError(t, first.Close())

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, StateTornDown, ch.State())
	assert.Equal(t, 0, bus.Subscribers(scope))
	assert.Empty(t, events())

	// 停止后重复 Stop 无副作用
	ch.Stop()
	assert.Equal(t, StateTornDown, ch.State())
}

func TestStopDuringStartClosesSubscription(t *testing.T) {
	bus := NewMemoryBus(16)
	scope := ThreadScope(42)
	var ch *Channel
	baseline := func(ctx context.Context) error {
		ch.Stop()
		return nil
	}
	ch = newChannel(scope, bus, NewThreadView(1), baseline, nil, nil)

	err := ch.Start(context.Background())
	assert.ErrorIs(t, err, errStopped)
	assert.Equal(t, StateTornDown, ch.State())
	assert.Equal(t, 0, bus.Subscribers(scope))
}

func collectOps() (func(Event), func() []Op) {
	var mu sync.Mutex
	var ops []Op
	return func(ev Event) {
			mu.Lock()
			ops = append(ops, ev.Op)
			mu.Unlock()
		}, func() []Op {
			mu.Lock()
			defer mu.Unlock()
			return append([]Op(nil), ops...)
		}
}

func TestSlowConsumerResyncs(t *testing.T) {
	bus := NewMemoryBus(1)
	fetcher := &stubFetcher{comments: []*interactionModel.Comment{comment(1, 2, nil, "root")}}

	block := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var ops []Op
	_, unsubscribe, err := NewClient(bus, fetcher, 1, nil).SubscribeToThread(context.Background(), 42,
		func(ev Event, _ []*interactionModel.Comment) {
			once.Do(func() { <-block })
			mu.Lock()
			ops = append(ops, ev.Op)
			mu.Unlock()
		})
	require.NoError(t, err)
	defer unsubscribe()

	ctx := context.Background()
	for i := uint64(2); i < 6; i++ {
		require.NoError(t, bus.Publish(ctx, event(t, OpInsert, i, nil, 3, comment(i, 3, nil, "x"))))
	}
	close(block)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, op := range ops {
			if op == OpResync {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, fetcher.Calls(), 2)
}

func TestRedisBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := NewRedisBus(client, 8, nil)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, ConversationScope(5))
	require.NoError(t, err)
	defer sub.Close()

	other, err := bus.Subscribe(ctx, ConversationScope(6))
	require.NoError(t, err)
	defer other.Close()

	ev, err := NewEvent(ConversationScope(5), OpInsert, 9, nil, 2, message(9, 2, messagingModel.TypeTip, "[tip] 30"))
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, ev))

	select {
	case got := <-sub.Events():
		assert.Equal(t, uint64(9), got.RecordID)
		var m messagingModel.Message
		require.NoError(t, got.Decode(&m))
		assert.Equal(t, "[tip] 30", m.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case <-other.Events():
		t.Fatal("event leaked to another scope")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("thread:42")
	require.NoError(t, err)
	assert.Equal(t, ThreadScope(42), s)
	assert.Equal(t, "thread:42", s.String())

	_, err = ParseScope("feed:1")
	assert.Error(t, err)
	_, err = ParseScope("thread")
	assert.Error(t, err)
}
