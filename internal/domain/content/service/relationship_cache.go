package service

import (
	"context"
	"fmt"
	"time"

	"creator_ledger/internal/domain/content/entitlement"
	"creator_ledger/internal/domain/content/model"
	"creator_ledger/internal/domain/content/repository"
	"creator_ledger/pkg/cache"
	"creator_ledger/pkg/metrics"

	"go.uber.org/zap"
)

// 缓存键前缀
const (
	relFollowPrefix   = "rel:follow"
	relSubPrefix      = "rel:sub"
	relPurchasePrefix = "rel:purchase"
)

// RelationshipCache 查看者关系标记的缓存
// 先批量读缓存，未命中的部分每种关系只查一次库
type RelationshipCache interface {
	// Resolve 返回每个帖子ID对应的关系标记
	Resolve(ctx context.Context, viewerID uint64, posts []*model.Post) (map[uint64]entitlement.Relations, error)
	InvalidateFollow(ctx context.Context, followerID, creatorID uint64)
	InvalidateSubscription(ctx context.Context, subscriberID, creatorID uint64)
	InvalidatePurchase(ctx context.Context, userID, postID uint64)
}

type relationshipCache struct {
	repo    repository.RelationRepository
	cache   cache.CacheService
	ttl     time.Duration
	metrics *metrics.MetricsCollector
	log     *zap.Logger
}

func NewRelationshipCache(repo repository.RelationRepository, c cache.CacheService, ttl time.Duration, m *metrics.MetricsCollector, log *zap.Logger) RelationshipCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &relationshipCache{repo: repo, cache: c, ttl: ttl, metrics: m, log: log}
}

func relKey(prefix string, viewerID, targetID uint64) string {
	return fmt.Sprintf("%s:%d:%d", prefix, viewerID, targetID)
}

// lookup 一种关系的待查目标
type lookup struct {
	prefix  string
	targets []uint64
	load    func(ctx context.Context, viewerID uint64, ids []uint64) (map[uint64]bool, error)
	result  map[uint64]bool
}

func (c *relationshipCache) Resolve(ctx context.Context, viewerID uint64, posts []*model.Post) (map[uint64]entitlement.Relations, error) {
	out := make(map[uint64]entitlement.Relations, len(posts))
	if len(posts) == 0 {
		return out, nil
	}
	// 匿名访问没有任何关系
	if viewerID == 0 {
		for _, p := range posts {
			out[p.ID] = entitlement.Relations{}
		}
		return out, nil
	}

	creatorSeen := map[uint64]bool{}
	var creators, paidPosts []uint64
	for _, p := range posts {
		if p.OwnerID != viewerID && !creatorSeen[p.OwnerID] {
			creatorSeen[p.OwnerID] = true
			creators = append(creators, p.OwnerID)
		}
		if p.UnlockPrice > 0 && p.OwnerID != viewerID {
			paidPosts = append(paidPosts, p.ID)
		}
	}

	lookups := []*lookup{
		{prefix: relFollowPrefix, targets: creators, load: c.repo.FollowedAmong},
		{prefix: relSubPrefix, targets: creators, load: c.repo.SubscribedAmong},
		{prefix: relPurchasePrefix, targets: paidPosts, load: c.repo.PurchasedAmong},
	}
	for _, l := range lookups {
		res, err := c.resolveOne(ctx, viewerID, l)
		if err != nil {
			return nil, err
		}
		l.result = res
	}

	following, subscribed, purchased := lookups[0].result, lookups[1].result, lookups[2].result
	for _, p := range posts {
		out[p.ID] = entitlement.Relations{
			IsFollowing:  following[p.OwnerID],
			IsSubscribed: subscribed[p.OwnerID],
			IsPurchased:  purchased[p.ID],
		}
	}
	return out, nil
}

// resolveOne 批量读缓存，未命中的目标一次查库后回填
func (c *relationshipCache) resolveOne(ctx context.Context, viewerID uint64, l *lookup) (map[uint64]bool, error) {
	result := make(map[uint64]bool, len(l.targets))
	if len(l.targets) == 0 {
		return result, nil
	}

	keys := make([]string, len(l.targets))
	for i, id := range l.targets {
		keys[i] = relKey(l.prefix, viewerID, id)
	}

	misses := l.targets
	var cached []*bool
	if err := c.cache.GetMultiple(ctx, keys, &cached); err != nil {
		// 缓存不可用时直接查库
		c.log.Warn("relationship cache read failed", zap.String("prefix", l.prefix), zap.Error(err))
	} else if len(cached) == len(keys) {
		misses = nil
		for i, v := range cached {
			if v == nil {
				misses = append(misses, l.targets[i])
				continue
			}
			result[l.targets[i]] = *v
		}
	}
	c.metrics.RecordCacheLookup("relationship", l.prefix, len(l.targets)-len(misses), len(misses))

	if len(misses) == 0 {
		return result, nil
	}

	loaded, err := l.load(ctx, viewerID, misses)
	if err != nil {
		return nil, err
	}
	fill := make(map[string]interface{}, len(misses))
	for _, id := range misses {
		result[id] = loaded[id]
		fill[relKey(l.prefix, viewerID, id)] = loaded[id]
	}
	if err := c.cache.SetMultiple(ctx, fill, c.ttl); err != nil {
		c.log.Warn("relationship cache fill failed", zap.String("prefix", l.prefix), zap.Error(err))
	}
	return result, nil
}

func (c *relationshipCache) invalidate(ctx context.Context, key string) {
	if err := c.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
		c.log.Warn("relationship cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *relationshipCache) InvalidateFollow(ctx context.Context, followerID, creatorID uint64) {
	c.invalidate(ctx, relKey(relFollowPrefix, followerID, creatorID))
}

func (c *relationshipCache) InvalidateSubscription(ctx context.Context, subscriberID, creatorID uint64) {
	c.invalidate(ctx, relKey(relSubPrefix, subscriberID, creatorID))
}

func (c *relationshipCache) InvalidatePurchase(ctx context.Context, userID, postID uint64) {
	c.invalidate(ctx, relKey(relPurchasePrefix, userID, postID))
}
