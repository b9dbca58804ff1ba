package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"creator_ledger/internal/domain/content/model"
	"creator_ledger/internal/domain/content/repository"
	userRepository "creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/internal/testutil"
	"creator_ledger/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// countingRelations 统计每种关系的查库次数
type countingRelations struct {
	repository.RelationRepository
	follows, subs, purchases int32
}

func (c *countingRelations) FollowedAmong(ctx context.Context, viewerID uint64, ids []uint64) (map[uint64]bool, error) {
	atomic.AddInt32(&c.follows, 1)
	return c.RelationRepository.FollowedAmong(ctx, viewerID, ids)
}

func (c *countingRelations) SubscribedAmong(ctx context.Context, viewerID uint64, ids []uint64) (map[uint64]bool, error) {
	atomic.AddInt32(&c.subs, 1)
	return c.RelationRepository.SubscribedAmong(ctx, viewerID, ids)
}

func (c *countingRelations) PurchasedAmong(ctx context.Context, viewerID uint64, ids []uint64) (map[uint64]bool, error) {
	atomic.AddInt32(&c.purchases, 1)
	return c.RelationRepository.PurchasedAmong(ctx, viewerID, ids)
}

type fixture struct {
	db        *gorm.DB
	relations *countingRelations
	relCache  RelationshipCache
	svc       ContentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	relations := &countingRelations{RelationRepository: repository.NewRelationRepository(db)}
	relCache := NewRelationshipCache(relations, cache.NewMemoryCache(), time.Minute, nil, nil)
	svc := NewContentService(repository.NewPostRepository(db), relations, userRepository.NewUserRepository(db), relCache, nil, nil)
	return &fixture{db: db, relations: relations, relCache: relCache, svc: svc}
}

func TestFollowersOnlyPostDeniedToStranger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateUsers(t, f.db, 1, 9)
	testutil.CreatePost(t, f.db, 100, 9, model.VisibilityFollowers, false, 0)

	view, err := f.svc.GetPost(ctx, 100, 1)
	require.NoError(t, err)
	assert.False(t, view.CanView)
	assert.Empty(t, view.Content)
	assert.Empty(t, view.MediaURL)

	// 关注后失效缓存即可见
	testutil.MustCreate(t, f.db, &model.Follow{FollowerID: 1, FolloweeID: 9})
	f.relCache.InvalidateFollow(ctx, 1, 9)

	view, err = f.svc.GetPost(ctx, 100, 1)
	require.NoError(t, err)
	assert.True(t, view.CanView)
	assert.Equal(t, "post body", view.Content)

	// 作者本人
	view, err = f.svc.GetPost(ctx, 100, 9)
	require.NoError(t, err)
	assert.True(t, view.CanView)
}

func TestFeedBatchesRelationshipQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateUsers(t, f.db, 1, 7, 8, 9)
	testutil.CreatePost(t, f.db, 1, 7, model.VisibilityPublic, false, 0)
	testutil.CreatePost(t, f.db, 2, 8, model.VisibilityFollowers, false, 0)
	testutil.CreatePost(t, f.db, 3, 9, model.VisibilitySubscribers, false, 0)
	testutil.CreatePost(t, f.db, 4, 9, model.VisibilityPublic, false, 200)
	testutil.CreatePost(t, f.db, 5, 7, model.VisibilityPublic, false, 50)
	testutil.CreatePost(t, f.db, 6, 1, model.VisibilitySubscribers, true, 999)

	expires := time.Now().Add(time.Hour)
	testutil.MustCreate(t, f.db,
		&model.Follow{FollowerID: 1, FolloweeID: 8},
		&model.Subscription{SubscriberID: 1, CreatorID: 9, IsActive: true, ExpiresAt: &expires},
		&model.Purchase{UserID: 1, PostID: 4, Amount: 200},
	)

	views, total, err := f.svc.Feed(ctx, 1, 0, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	canView := map[uint64]bool{}
	for _, v := range views {
		canView[v.ID] = v.CanView
	}
	assert.Equal(t, map[uint64]bool{1: true, 2: true, 3: true, 4: true, 5: false, 6: true}, canView)

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.relations.follows))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.relations.subs))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.relations.purchases))

	// 再次读取全部命中缓存
	_, _, err = f.svc.Feed(ctx, 1, 0, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.relations.follows))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.relations.subs))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.relations.purchases))
}

func TestCreateAndUpdatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateUsers(t, f.db, 1, 9)

	_, err := f.svc.CreatePost(ctx, 9, CreatePostInput{Visibility: "friends", Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.CreatePost(ctx, 9, CreatePostInput{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.CreatePost(ctx, 9, CreatePostInput{Content: "x", UnlockPrice: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	post, err := f.svc.CreatePost(ctx, 9, CreatePostInput{Content: "hello", UnlockPrice: 100, IsNSFW: true})
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityPublic, post.Visibility)

	newContent := "edited"
	_, err = f.svc.UpdatePost(ctx, post.ID, 1, UpdatePostInput{Content: &newContent})
	assert.ErrorIs(t, err, apperr.ErrPermission)

	followers := model.VisibilityFollowers
	view, err := f.svc.UpdatePost(ctx, post.ID, 9, UpdatePostInput{Content: &newContent, Visibility: &followers})
	require.NoError(t, err)
	assert.Equal(t, "edited", view.Content)
	assert.Equal(t, model.VisibilityFollowers, view.Visibility)
	assert.Equal(t, int64(100), view.UnlockPrice)
	assert.True(t, view.IsNSFW)

	_, err = f.svc.GetPost(ctx, 404, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSubscriptionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateUsers(t, f.db, 1, 9)
	testutil.CreatePost(t, f.db, 100, 9, model.VisibilitySubscribers, false, 0)

	_, err := f.svc.Subscribe(ctx, 1, 1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Subscribe(ctx, 1, 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, ok, err := f.svc.CanViewPost(ctx, 100, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	changed, err := f.svc.Subscribe(ctx, 1, 9)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.svc.Subscribe(ctx, 1, 9)
	require.NoError(t, err)
	assert.False(t, changed)

	_, ok, err = f.svc.CanViewPost(ctx, 100, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// 到期后失效，记录保留
	n, err := f.svc.LapseExpired(ctx, time.Now().Add(31*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	subs, err := f.svc.ListSubscriptions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.False(t, subs[0].IsActive)

	_, ok, err = f.svc.CanViewPost(ctx, 100, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// 重新订阅会激活原记录
	changed, err = f.svc.Subscribe(ctx, 1, 9)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.svc.CancelSubscription(ctx, 1, 9)
	require.NoError(t, err)
	assert.True(t, changed)
}
