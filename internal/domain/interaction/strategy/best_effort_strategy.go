package strategy

import (
	"context"

	"creator_ledger/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BestEffortStrategy 先写记录，再尽力调整计数
// 计数失败只记录日志，不重试，由定期重算兜底
type BestEffortStrategy struct {
	db      *gorm.DB
	metrics *metrics.MetricsCollector
	log     *zap.Logger
}

func NewBestEffortStrategy(db *gorm.DB, m *metrics.MetricsCollector, log *zap.Logger) *BestEffortStrategy {
	if log == nil {
		log = zap.NewNop()
	}
	return &BestEffortStrategy{db: db, metrics: m, log: log}
}

func (s *BestEffortStrategy) Name() string { return "best_effort" }

func (s *BestEffortStrategy) Apply(ctx context.Context, m Mutation) (bool, error) {
	db := s.db.WithContext(ctx)
	changed, err := m.Write(db)
	if err != nil {
		return false, err
	}
	s.metrics.RecordInteraction(m.Action, changed)
	if !changed {
		return false, nil
	}

	for _, c := range m.Counters {
		if err := adjust(db, c); err != nil {
			s.metrics.RecordCounterAdjustFailure(m.Action)
			s.log.Warn("counter adjust failed",
				zap.String("action", m.Action),
				zap.String("table", c.Table),
				zap.String("column", c.Column),
				zap.Uint64("id", c.ID),
				zap.Int64("delta", c.Delta),
				zap.Error(err),
			)
		}
	}
	return true, nil
}
