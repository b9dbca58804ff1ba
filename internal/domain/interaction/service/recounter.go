package service

import (
	"context"
	"fmt"
	"time"

	"creator_ledger/internal/pkg/lock"
	"creator_ledger/pkg/metrics"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recountLockKey = "lock:interaction:recount"

// counterDef 计数列与其来源记录表
type counterDef struct {
	table  string // 计数所在表
	column string
	source string // 记录表
	fk     string // 记录表指向计数行的列
	filter string // 额外过滤条件
}

func (c counterDef) name() string { return c.table + "." + c.column }

// liveCount 相关子查询，引用外层表的 id
func (c counterDef) liveCount() string {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s s WHERE s.%s = %s.id", c.source, c.fk, c.table)
	if c.filter != "" {
		q += " AND " + c.filter
	}
	return q
}

var counterDefs = []counterDef{
	{table: "posts", column: "like_count", source: "post_likes", fk: "post_id"},
	{table: "posts", column: "save_count", source: "post_saves", fk: "post_id"},
	{table: "posts", column: "comment_count", source: "comments", fk: "post_id", filter: "s.parent_id IS NULL"},
	{table: "comments", column: "like_count", source: "comment_likes", fk: "comment_id"},
	{table: "users", column: "follower_count", source: "follows", fk: "followee_id"},
	{table: "users", column: "following_count", source: "follows", fk: "follower_id"},
}

// Recounter 用实际记录数覆盖漂移的计数
type Recounter struct {
	db      *sqlx.DB
	locker  lock.Locker
	lockTTL time.Duration
	metrics *metrics.MetricsCollector
	log     *zap.Logger
}

// sqlxDriver gorm 方言到 sqlx 绑定变量风格
func sqlxDriver(dialect string) string {
	switch dialect {
	case "sqlite":
		return "sqlite3"
	default:
		return "pgx"
	}
}

func NewRecounter(gdb *gorm.DB, locker lock.Locker, lockTTL time.Duration, m *metrics.MetricsCollector, log *zap.Logger) (*Recounter, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Recounter{
		db:      sqlx.NewDb(sqlDB, sqlxDriver(gdb.Dialector.Name())),
		locker:  locker,
		lockTTL: lockTTL,
		metrics: m,
		log:     log,
	}, nil
}

// driftRow 漂移的计数行
type driftRow struct {
	ID     uint64 `db:"id"`
	Stored int64  `db:"stored"`
	Live   int64  `db:"live"`
}

// RecountAll 全量重算，其他实例持有锁时跳过并返回 skipped=true
func (r *Recounter) RecountAll(ctx context.Context) (corrected int64, skipped bool, err error) {
	unlock, ok, err := r.locker.TryLock(ctx, recountLockKey, r.lockTTL)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, true, nil
	}
	defer unlock()

	for _, def := range counterDefs {
		n, err := r.recount(ctx, def, 0)
		if err != nil {
			return corrected, false, fmt.Errorf("recount %s: %w", def.name(), err)
		}
		corrected += n
	}
	return corrected, false, nil
}

// RecountPost 强制重算单个帖子及其评论的计数，不加锁
func (r *Recounter) RecountPost(ctx context.Context, postID uint64) (int64, error) {
	var corrected int64
	for _, def := range counterDefs {
		var n int64
		var err error
		switch def.table {
		case "posts":
			n, err = r.recount(ctx, def, postID)
		case "comments":
			n, err = r.recountPostComments(ctx, def, postID)
		default:
			continue
		}
		if err != nil {
			return corrected, fmt.Errorf("recount %s: %w", def.name(), err)
		}
		corrected += n
	}
	return corrected, nil
}

// recount 找出漂移的行并逐行覆盖，id 非 0 时只检查该行
func (r *Recounter) recount(ctx context.Context, def counterDef, id uint64) (int64, error) {
	query := fmt.Sprintf("SELECT %[1]s.id AS id, %[1]s.%[2]s AS stored, (%[3]s) AS live FROM %[1]s WHERE %[1]s.%[2]s <> (%[3]s)",
		def.table, def.column, def.liveCount())
	args := []interface{}{}
	if id != 0 {
		query += fmt.Sprintf(" AND %s.id = ?", def.table)
		args = append(args, id)
	}
	return r.fix(ctx, def, query, args)
}

func (r *Recounter) recountPostComments(ctx context.Context, def counterDef, postID uint64) (int64, error) {
	query := fmt.Sprintf("SELECT %[1]s.id AS id, %[1]s.%[2]s AS stored, (%[3]s) AS live FROM %[1]s WHERE %[1]s.post_id = ? AND %[1]s.%[2]s <> (%[3]s)",
		def.table, def.column, def.liveCount())
	return r.fix(ctx, def, query, []interface{}{postID})
}

func (r *Recounter) fix(ctx context.Context, def counterDef, query string, args []interface{}) (int64, error) {
	var rows []driftRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	update := r.db.Rebind(fmt.Sprintf("UPDATE %[1]s SET %[2]s = (%[3]s) WHERE id = ?", def.table, def.column, def.liveCount()))
	var corrected int64
	for _, row := range rows {
		if _, err := r.db.ExecContext(ctx, update, row.ID); err != nil {
			return corrected, err
		}
		corrected++
		r.log.Info("counter corrected",
			zap.String("counter", def.name()),
			zap.Uint64("id", row.ID),
			zap.Int64("stored", row.Stored),
			zap.Int64("live", row.Live),
		)
	}
	r.metrics.RecordRecount(def.name(), corrected)
	return corrected, nil
}

// Run 按间隔执行全量重算，ctx 取消后退出
func (r *Recounter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			corrected, skipped, err := r.RecountAll(ctx)
			switch {
			case err != nil:
				r.log.Error("recount failed", zap.Error(err))
			case skipped:
				r.log.Debug("recount skipped, lock held elsewhere")
			case corrected > 0:
				r.log.Info("recount finished", zap.Int64("corrected", corrected))
			}
		}
	}
}
