package strategy

import (
	"context"
	"errors"

	"creator_ledger/internal/pkg/config"
	"creator_ledger/pkg/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTargetGone 计数目标行不存在，原子策略下整笔回滚
var ErrTargetGone = errors.New("counter target row missing")

// WriteFunc 写入或删除交互记录，返回记录状态是否真的发生变化
type WriteFunc func(tx *gorm.DB) (bool, error)

// Counter 一次状态变化需要调整的计数列
type Counter struct {
	Table  string
	Column string
	ID     uint64
	Delta  int64
}

// Mutation 一次交互账本操作
type Mutation struct {
	Action   string // 指标标签: like, unlike, follow ...
	Write    WriteFunc
	Counters []Counter
}

// InteractionStrategy 交互记录与计数的写入方式
type InteractionStrategy interface {
	Name() string
	// Apply 执行写入，状态变化时调整计数，返回是否变化
	Apply(ctx context.Context, m Mutation) (bool, error)
}

// InsertRecord 冲突即视为已存在
func InsertRecord(record interface{}) WriteFunc {
	return func(tx *gorm.DB) (bool, error) {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected > 0, nil
	}
}

// DeleteWhere 删除匹配的记录，没有匹配即视为不存在
func DeleteWhere(model interface{}, query string, args ...interface{}) WriteFunc {
	return func(tx *gorm.DB) (bool, error) {
		res := tx.Where(query, args...).Delete(model)
		if res.Error != nil {
			return false, res.Error
		}
		return res.RowsAffected > 0, nil
	}
}

// adjust 调整一个计数列，减少时不低于 0
func adjust(tx *gorm.DB, c Counter) error {
	var expr clause.Expr
	if c.Delta >= 0 {
		expr = gorm.Expr(c.Column+" + ?", c.Delta)
	} else {
		n := -c.Delta
		expr = gorm.Expr("CASE WHEN "+c.Column+" > ? THEN "+c.Column+" - ? ELSE 0 END", n, n)
	}
	res := tx.Table(c.Table).Where("id = ?", c.ID).UpdateColumn(c.Column, expr)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTargetGone
	}
	return nil
}

// Select 按配置选择策略
// 配置为 atomic 时先探测事务是否可用，不可用则退化为 best_effort
func Select(ctx context.Context, db *gorm.DB, name string, m *metrics.MetricsCollector, log *zap.Logger) InteractionStrategy {
	if log == nil {
		log = zap.NewNop()
	}
	if name == config.StrategyBestEffort {
		return NewBestEffortStrategy(db, m, log)
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Exec("SELECT 1").Error
	})
	if err != nil {
		log.Warn("atomic interaction strategy unavailable, falling back to best effort", zap.Error(err))
		return NewBestEffortStrategy(db, m, log)
	}
	return NewAtomicStrategy(db, m)
}
