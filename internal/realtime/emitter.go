package realtime

import (
	"context"

	"creator_ledger/pkg/metrics"

	"go.uber.org/zap"
)

// Emitter 服务层发布变更事件的入口
// 发布失败只记日志，不影响已经完成的账本操作；nil Emitter 为空操作
type Emitter struct {
	pub     Publisher
	metrics *metrics.MetricsCollector
	log     *zap.Logger
}

func NewEmitter(pub Publisher, m *metrics.MetricsCollector, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{pub: pub, metrics: m, log: log}
}

// Emit 发布一条事件
func (e *Emitter) Emit(ctx context.Context, scope Scope, op Op, recordID uint64, parentID *uint64, originUserID uint64, record interface{}) {
	if e == nil || e.pub == nil {
		return
	}
	ev, err := NewEvent(scope, op, recordID, parentID, originUserID, record)
	if err != nil {
		e.log.Error("build realtime event", zap.String("scope", scope.String()), zap.Error(err))
		return
	}
	if err := e.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Warn("publish realtime event",
			zap.String("scope", scope.String()),
			zap.String("op", string(op)),
			zap.Uint64("record_id", recordID),
			zap.Error(err),
		)
		return
	}
	e.metrics.RecordRealtimeEvent(string(scope.Kind), string(op))
}
