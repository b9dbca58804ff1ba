package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"creator_ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter 按键（用户ID或IP）限流
type KeyedRateLimiter struct {
	limiters map[string]*entry
	mu       sync.Mutex
	r        rate.Limit
	b        int
	idle     time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedRateLimiter 创建限流器
// r: 每秒允许的请求数 (QPS)
// b: 桶的大小 (Burst)
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		r:        r,
		b:        b,
		idle:     10 * time.Minute,
	}
}

// Allow 判断指定键是否放行，顺带清理长时间未访问的键
func (l *KeyedRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, exists := l.limiters[key]
	if !exists {
		if len(l.limiters) > 10000 {
			for k, v := range l.limiters {
				if now.Sub(v.lastSeen) > l.idle {
					delete(l.limiters, k)
				}
			}
		}
		e = &entry{limiter: rate.NewLimiter(l.r, l.b)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// RateLimitMiddleware 限流中间件，登录用户按用户ID，否则按IP
func RateLimitMiddleware(l *KeyedRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if uid, ok := CurrentUserID(c); ok {
			key = "user:" + strconv.FormatUint(uid, 10)
		}
		if !l.Allow(key) {
			response.Error(c, http.StatusTooManyRequests, response.ErrTooManyRequests, "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
