package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "rt:"

// RedisBus 基于 Redis Pub/Sub 的总线，多实例部署时使用
type RedisBus struct {
	client  *redis.Client
	bufSize int
	log     *zap.Logger
}

func NewRedisBus(client *redis.Client, bufSize int, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBus{client: client, bufSize: bufSize, log: log}
}

func redisChannel(scope Scope) string {
	return redisChannelPrefix + scope.String()
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.client.Publish(ctx, redisChannel(ev.Scope), data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, scope Scope) (Subscription, error) {
	ps := b.client.Subscribe(ctx, redisChannel(scope))
	// 等待订阅确认，保证返回后发布的事件都能收到
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", scope, err)
	}

	sub := newSubscription(b.bufSize, func() { _ = ps.Close() })
	go func() {
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("drop malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if !sub.deliver(ev) {
				return
			}
		}
		_ = sub.Close()
	}()
	return sub, nil
}

// Close 连接由调用方管理
func (b *RedisBus) Close() error { return nil }
