package strategy

import (
	"context"

	"creator_ledger/pkg/metrics"

	"gorm.io/gorm"
)

// AtomicStrategy 记录写入与计数调整在同一事务内完成
type AtomicStrategy struct {
	db      *gorm.DB
	metrics *metrics.MetricsCollector
}

func NewAtomicStrategy(db *gorm.DB, m *metrics.MetricsCollector) *AtomicStrategy {
	return &AtomicStrategy{db: db, metrics: m}
}

func (s *AtomicStrategy) Name() string { return "atomic" }

func (s *AtomicStrategy) Apply(ctx context.Context, m Mutation) (bool, error) {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := m.Write(tx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, c := range m.Counters {
			if err := adjust(tx, c); err != nil {
				return err
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	s.metrics.RecordInteraction(m.Action, changed)
	return changed, nil
}
