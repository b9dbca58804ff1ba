package realtime

import (
	"context"
	"sync"
)

// MemoryBus 进程内总线，单实例部署与测试使用
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[Scope]map[*subscription]struct{}
	bufSize int
	closed  bool
}

func NewMemoryBus(bufSize int) *MemoryBus {
	return &MemoryBus{
		subs:    make(map[Scope]map[*subscription]struct{}),
		bufSize: bufSize,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	targets := make([]*subscription, 0, len(b.subs[ev.Scope]))
	for s := range b.subs[ev.Scope] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.deliver(ev)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, scope Scope) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	var sub *subscription
	sub = newSubscription(b.bufSize, func() { b.remove(scope, sub) })
	if b.subs[scope] == nil {
		b.subs[scope] = make(map[*subscription]struct{})
	}
	b.subs[scope][sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBus) remove(scope Scope, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[scope], sub)
	if len(b.subs[scope]) == 0 {
		delete(b.subs, scope)
	}
}

// Subscribers 当前订阅数
func (b *MemoryBus) Subscribers(scope Scope) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[scope])
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*subscription
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		_ = s.Close()
	}
	return nil
}
