package service

import (
	"context"
	"testing"
	"time"

	contentModel "creator_ledger/internal/domain/content/model"
	"creator_ledger/internal/domain/interaction/model"
	userModel "creator_ledger/internal/domain/user/model"
	"creator_ledger/internal/pkg/lock"
	"creator_ledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedDrift(t *testing.T, db *gorm.DB) {
	t.Helper()
	testutil.CreateUsers(t, db, 1, 2, 3)
	testutil.CreatePost(t, db, 42, 1, contentModel.VisibilityPublic, false, 0)
	testutil.CreatePost(t, db, 43, 1, contentModel.VisibilityPublic, false, 0)

	parent := uint64(0)
	root := &model.Comment{PostID: 42, UserID: 2, Content: "root"}
	testutil.MustCreate(t, db,
		&model.PostLike{UserID: 2, PostID: 42},
		&model.PostLike{UserID: 3, PostID: 42},
		&model.PostSave{UserID: 2, PostID: 42},
		&model.PostLike{UserID: 2, PostID: 43},
		&contentModel.Follow{FollowerID: 2, FolloweeID: 1},
		root,
	)
	parent = root.ID
	testutil.MustCreate(t, db,
		&model.Comment{PostID: 42, UserID: 3, Content: "reply", ParentID: &parent},
		&model.CommentLike{UserID: 3, CommentID: root.ID},
	)

	// 人为制造漂移：多计、少计
	require.NoError(t, db.Model(&contentModel.Post{}).Where("id = ?", 42).
		Updates(map[string]interface{}{"like_count": 7, "save_count": 0, "comment_count": 3}).Error)
	require.NoError(t, db.Model(&contentModel.Post{}).Where("id = ?", 43).Update("like_count", 0).Error)
	require.NoError(t, db.Model(&userModel.User{}).Where("id = ?", 1).Update("follower_count", 5).Error)
}

func TestRecountAllCorrectsDrift(t *testing.T) {
	db := testutil.NewTestDB(t)
	seedDrift(t, db)

	r, err := NewRecounter(db, lock.NewMemoryLocker(), time.Minute, nil, nil)
	require.NoError(t, err)

	corrected, skipped, err := r.RecountAll(context.Background())
	require.NoError(t, err)
	assert.False(t, skipped)
	// posts 42 的三个计数、post 43、评论点赞、两个用户计数
	assert.Equal(t, int64(7), corrected)

	var p42, p43 contentModel.Post
	require.NoError(t, db.First(&p42, 42).Error)
	require.NoError(t, db.First(&p43, 43).Error)
	assert.Equal(t, int64(2), p42.LikeCount)
	assert.Equal(t, int64(1), p42.SaveCount)
	assert.Equal(t, int64(1), p42.CommentCount)
	assert.Equal(t, int64(1), p43.LikeCount)

	var u1, u2 userModel.User
	require.NoError(t, db.First(&u1, 1).Error)
	require.NoError(t, db.First(&u2, 2).Error)
	assert.Equal(t, int64(1), u1.FollowerCount)
	assert.Equal(t, int64(1), u2.FollowingCount)

	// 没有漂移时不再修改
	corrected, _, err = r.RecountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), corrected)
}

func TestRecountSkipsWhenLocked(t *testing.T) {
	db := testutil.NewTestDB(t)
	locker := lock.NewMemoryLocker()
	unlock, ok, err := locker.TryLock(context.Background(), recountLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	r, err := NewRecounter(db, locker, time.Minute, nil, nil)
	require.NoError(t, err)
	_, skipped, err := r.RecountAll(context.Background())
	require.NoError(t, err)
	assert.True(t, skipped)
}

func TestRecountPostOnlyTouchesThatPost(t *testing.T) {
	db := testutil.NewTestDB(t)
	seedDrift(t, db)

	r, err := NewRecounter(db, nil, 0, nil, nil)
	require.NoError(t, err)

	corrected, err := r.RecountPost(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(4), corrected)

	var p42, p43 contentModel.Post
	require.NoError(t, db.First(&p42, 42).Error)
	require.NoError(t, db.First(&p43, 43).Error)
	assert.Equal(t, int64(2), p42.LikeCount)
	assert.Equal(t, int64(1), p42.CommentCount)
	assert.Equal(t, int64(0), p43.LikeCount, "other posts untouched")

	var root model.Comment
	require.NoError(t, db.Where("post_id = ? AND parent_id IS NULL", 42).First(&root).Error)
	assert.Equal(t, int64(1), root.LikeCount)
}

func TestForcedRecountMatchesLiveRecords(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	testutil.CreateUsers(t, f.db, 1, 2, 3, 4)
	testutil.CreatePost(t, f.db, 42, 1, contentModel.VisibilityPublic, false, 0)

	for _, u := range []uint64{2, 3, 4} {
		_, err := f.svc.ToggleLike(ctx, u, 42)
		require.NoError(t, err)
	}
	_, err := f.svc.ToggleLike(ctx, 3, 42)
	require.NoError(t, err)

	r, err := NewRecounter(f.db, nil, 0, nil, nil)
	require.NoError(t, err)
	corrected, err := r.RecountPost(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), corrected)

	var rows int64
	require.NoError(t, f.db.Model(&model.PostLike{}).Where("post_id = ?", 42).Count(&rows).Error)
	assert.Equal(t, rows, f.post(t, 42).LikeCount)
}
