package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker 跨实例互斥锁，拿不到锁时 ok=false 且不报错
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Lua 脚本：只有持有者才能释放
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

type redisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker 基于 SET NX PX 的锁，过期自动释放
func NewRedisLocker(rdb *redis.Client) Locker {
	return &redisLocker{rdb: rdb}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	unlock := func() {
		_ = releaseScript.Run(context.Background(), l.rdb, []string{key}, token).Err()
	}
	return unlock, true, nil
}

type memoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryHold
	nowFn func() time.Time
}

type memoryHold struct {
	token    string
	deadline time.Time
}

// NewMemoryLocker 单进程锁，未配置 Redis 时使用
func NewMemoryLocker() Locker {
	return &memoryLocker{held: make(map[string]memoryHold), nowFn: time.Now}
}

func (l *memoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if h, ok := l.held[key]; ok && now.Before(h.deadline) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.held[key] = memoryHold{token: token, deadline: now.Add(ttl)}

	unlock := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if h, ok := l.held[key]; ok && h.token == token {
			delete(l.held, key)
		}
	}
	return unlock, true, nil
}
