package service

import (
	"context"
	"fmt"
	"strconv"

	"creator_ledger/internal/domain/notification/model"
	"creator_ledger/internal/domain/notification/repository"
	"creator_ledger/internal/pkg/push"
	"creator_ledger/internal/pkg/worker"
	"creator_ledger/internal/realtime"
	"creator_ledger/pkg/metrics"

	"go.uber.org/zap"
)

// Sink 通知的一个投递目标
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *model.Notification) error
}

// delivery 一个通知在一个目标上的投递任务，各目标独立重试
type delivery struct {
	sink Sink
	n    *model.Notification
}

// Dispatcher 异步通知投递
// Notify 不阻塞调用方，投递失败由工作池重试，最终失败只记日志
type Dispatcher struct {
	pool    *worker.WorkerPool[delivery]
	sinks   []Sink
	metrics *metrics.MetricsCollector
	log     *zap.Logger
}

func NewDispatcher(sinks []Sink, opts worker.Options, m *metrics.MetricsCollector, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{sinks: sinks, metrics: m, log: log}
	d.pool = worker.NewWorkerPool[delivery]("notifications", d.handle, opts, log)
	d.pool.OnDeadLetter = func(job delivery, err error) {
		d.metrics.RecordNotification(job.sink.Name(), fmt.Errorf("dropped: %v", err))
	}
	return d
}

func (d *Dispatcher) handle(ctx context.Context, job delivery) error {
	err := job.sink.Deliver(ctx, job.n)
	if err == nil {
		d.metrics.RecordNotification(job.sink.Name(), nil)
	}
	return err
}

// Start 启动工作池
func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
}

// Stop 等待已入队的通知投递完毕
func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// Notify 自己触发的通知不投递
func (d *Dispatcher) Notify(_ context.Context, n *model.Notification) {
	if n == nil || n.RecipientID == 0 || n.RecipientID == n.ActorID {
		return
	}
	for _, s := range d.sinks {
		cp := *n
		d.pool.Submit(delivery{sink: s, n: &cp})
	}
}

// StoreSink 写入通知表并推送到接收者的通知流
type StoreSink struct {
	repo    repository.NotificationRepository
	emitter *realtime.Emitter
}

func NewStoreSink(repo repository.NotificationRepository, emitter *realtime.Emitter) *StoreSink {
	return &StoreSink{repo: repo, emitter: emitter}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, n *model.Notification) error {
	// 重试时 ID 已回填说明上次已写入
	if n.ID == 0 {
		if err := s.repo.Create(ctx, n); err != nil {
			return err
		}
	}
	s.emitter.Emit(ctx, realtime.NotificationScope(n.RecipientID), realtime.OpInsert, n.ID, nil, n.ActorID, n)
	return nil
}

// PushSink 移动端推送
type PushSink struct {
	push push.PushService
}

func NewPushSink(p push.PushService) *PushSink {
	return &PushSink{push: p}
}

func (s *PushSink) Name() string { return "push" }

func (s *PushSink) Deliver(_ context.Context, n *model.Notification) error {
	ext := map[string]string{
		"type":     n.Type,
		"entityId": strconv.FormatUint(n.EntityID, 10),
		"actorId":  strconv.FormatUint(n.ActorID, 10),
	}
	return s.push.PushToAccount(push.AccountOf(n.RecipientID), Title(n.Type), "", ext)
}

// Title 推送标题
func Title(typ string) string {
	switch typ {
	case model.TypeFollow:
		return "New follower"
	case model.TypeComment:
		return "New comment on your post"
	case model.TypeReply:
		return "New reply to your comment"
	case model.TypeTip:
		return "You received a tip"
	case model.TypeGift:
		return "You received a gift"
	case model.TypeUnlock:
		return "Your message was unlocked"
	case model.TypePurchase:
		return "Your post was purchased"
	case model.TypeMessage:
		return "New message"
	case model.TypeSubscribe:
		return "New subscriber"
	default:
		return "New notification"
	}
}
