package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const flushTimeout = 2 * time.Second

// NATSBus 基于 NATS 的总线
type NATSBus struct {
	conn    *nats.Conn
	bufSize int
	log     *zap.Logger
}

// NewNATSBus 连接 NATS
func NewNATSBus(url string, bufSize int, log *zap.Logger) (*NATSBus, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("creator-ledger"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{conn: nc, bufSize: bufSize, log: log}, nil
}

// natsSubject thread:42 -> rt.thread.42
func natsSubject(scope Scope) string {
	return fmt.Sprintf("rt.%s.%d", scope.Kind, scope.ID)
}

func (b *NATSBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.conn.Publish(natsSubject(ev.Scope), data)
}

func (b *NATSBus) Subscribe(ctx context.Context, scope Scope) (Subscription, error) {
	var ns atomic.Pointer[nats.Subscription]
	sub := newSubscription(b.bufSize, func() {
		if s := ns.Load(); s != nil {
			_ = s.Unsubscribe()
		}
	})

	natsSub, err := b.conn.Subscribe(natsSubject(scope), func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.log.Warn("drop malformed event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		sub.deliver(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", scope, err)
	}
	ns.Store(natsSub)
	// Flush 确认服务端已登记订阅
	if err := b.conn.FlushTimeout(flushTimeout); err != nil {
		_ = natsSub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription %s: %w", scope, err)
	}
	return sub, nil
}

func (b *NATSBus) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
