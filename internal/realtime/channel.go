package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State 订阅通道状态
type State int32

const (
	StateIdle State = iota
	StateSubscribed
	StateReceiving
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateReceiving:
		return "receiving"
	case StateTornDown:
		return "torn_down"
	}
	return "unknown"
}

// errStopped 建立订阅期间通道已被 Stop
var errStopped = errors.New("channel stopped")

// view 通道维护的本地状态
type view interface {
	Apply(ev Event) bool
}

// Channel 单个范围的订阅通道：先订阅，再拉基线，然后按序合并事件
// 订阅被总线踢掉时自动重新订阅并重新拉取基线
type Channel struct {
	scope    Scope
	bus      Subscriber
	view     view
	baseline func(ctx context.Context) error
	onChange func(Event)
	log      *zap.Logger

	state  atomic.Int32
	mu     sync.Mutex
	sub    Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

func newChannel(scope Scope, bus Subscriber, v view, baseline func(ctx context.Context) error, onChange func(Event), log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	return &Channel{
		scope:    scope,
		bus:      bus,
		view:     v,
		baseline: baseline,
		onChange: onChange,
		log:      log.With(zap.String("scope", scope.String())),
	}
}

// State 当前状态
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Start idle -> subscribed -> receiving
func (c *Channel) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateSubscribed)) {
		return fmt.Errorf("channel %s: cannot start from %s", c.scope, c.State())
	}

	sub, err := c.connect(ctx)
	if err != nil {
		c.state.Store(int32(StateTornDown))
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	if c.State() == StateTornDown {
		c.mu.Unlock()
		cancel()
		_ = sub.Close()
		return fmt.Errorf("channel %s: %w", c.scope, errStopped)
	}
	c.sub = sub
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.state.CompareAndSwap(int32(StateSubscribed), int32(StateReceiving))
	go c.loop(runCtx, sub)
	return nil
}

// connect 订阅生效后再拉基线，期间到达的事件留在订阅缓冲中
func (c *Channel) connect(ctx context.Context) (Subscription, error) {
	sub, err := c.bus.Subscribe(ctx, c.scope)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.scope, err)
	}
	if err := c.baseline(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("load baseline %s: %w", c.scope, err)
	}
	return sub, nil
}

func (c *Channel) loop(ctx context.Context, sub Subscription) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				next, err := c.resync(ctx)
				if errors.Is(err, errStopped) {
					return
				}
				if err != nil {
					c.log.Warn("resync failed, channel torn down", zap.Error(err))
					c.state.Store(int32(StateTornDown))
					return
				}
				sub = next
				continue
			}
			if c.view.Apply(ev) && c.onChange != nil {
				c.onChange(ev)
			}
		}
	}
}

// resync 订阅被关闭（消费过慢或连接断开）后重新订阅并刷新基线
func (c *Channel) resync(ctx context.Context) (Subscription, error) {
	if !c.state.CompareAndSwap(int32(StateReceiving), int32(StateSubscribed)) {
		return nil, errStopped
	}
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		sub, err := c.connect(ctx)
		if err == nil {
			// Stop 先切换状态再取 c.sub，这里在锁内复查，避免新订阅漏关
			c.mu.Lock()
			if c.State() == StateTornDown {
				c.mu.Unlock()
				_ = sub.Close()
				return nil, errStopped
			}
			c.sub = sub
			c.mu.Unlock()
			c.state.CompareAndSwap(int32(StateSubscribed), int32(StateReceiving))
			c.log.Info("channel resynced")
			if c.onChange != nil {
				c.onChange(Event{Scope: c.scope, Op: OpResync, At: time.Now().UTC()})
			}
			return sub, nil
		}
		c.log.Warn("resync attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("channel %s: resync gave up", c.scope)
}

// Stop 取消订阅并丢弃状态，重复调用无副作用
func (c *Channel) Stop() {
	prev := State(c.state.Swap(int32(StateTornDown)))
	if prev == StateTornDown || prev == StateIdle {
		return
	}
	c.mu.Lock()
	cancel, sub, done := c.cancel, c.sub, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		_ = sub.Close()
	}
	if done != nil {
		<-done
	}
}
