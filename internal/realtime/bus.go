package realtime

import (
	"context"
	"errors"
	"sync"
)

// ErrBusClosed 总线已关闭
var ErrBusClosed = errors.New("realtime: bus closed")

// Publisher 发布变更事件
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Subscription 一个已生效的订阅
// Events 在订阅关闭或消费过慢被踢出时关闭
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Subscriber 订阅变更事件，返回时订阅已经生效
type Subscriber interface {
	Subscribe(ctx context.Context, scope Scope) (Subscription, error)
}

// Bus 发布与订阅
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// subscription 各总线共用的本地投递端
// 缓冲区满时直接关闭，消费者据此重新订阅并拉取基线，避免静默丢事件
type subscription struct {
	ch      chan Event
	once    sync.Once
	mu      sync.Mutex
	closed  bool
	onClose func()
}

func newSubscription(size int, onClose func()) *subscription {
	if size <= 0 {
		size = 64
	}
	return &subscription{ch: make(chan Event, size), onClose: onClose}
}

func (s *subscription) Events() <-chan Event { return s.ch }

// deliver 非阻塞投递，返回 false 表示订阅已关闭
func (s *subscription) deliver(ev Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	select {
	case s.ch <- ev:
		s.mu.Unlock()
		return true
	default:
	}
	s.mu.Unlock()
	_ = s.Close()
	return false
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}
