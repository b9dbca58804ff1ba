package repository

import (
	"context"

	contentModel "creator_ledger/internal/domain/content/model"
	"creator_ledger/internal/domain/interaction/model"

	"gorm.io/gorm"
)

// InteractionRepository 交互记录的读取
// 写入统一经过 strategy，这里只提供状态查询与评论树读取
type InteractionRepository interface {
	HasLike(ctx context.Context, userID, postID uint64) (bool, error)
	HasSave(ctx context.Context, userID, postID uint64) (bool, error)
	HasFollow(ctx context.Context, followerID, followeeID uint64) (bool, error)
	HasCommentLike(ctx context.Context, userID, commentID uint64) (bool, error)

	GetComment(ctx context.Context, id uint64) (*model.Comment, error)
	// ListComments 按时间顺序返回帖子下全部评论 (含回复)
	ListComments(ctx context.Context, postID uint64) ([]*model.Comment, error)
	ListSaved(ctx context.Context, userID uint64, offset, limit int) ([]uint64, int64, error)
}

type interactionRepository struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) exists(ctx context.Context, m interface{}, query string, args ...interface{}) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(m).Where(query, args...).Limit(1).Count(&n).Error
	return n > 0, err
}

func (r *interactionRepository) HasLike(ctx context.Context, userID, postID uint64) (bool, error) {
	return r.exists(ctx, &model.PostLike{}, "user_id = ? AND post_id = ?", userID, postID)
}

func (r *interactionRepository) HasSave(ctx context.Context, userID, postID uint64) (bool, error) {
	return r.exists(ctx, &model.PostSave{}, "user_id = ? AND post_id = ?", userID, postID)
}

func (r *interactionRepository) HasFollow(ctx context.Context, followerID, followeeID uint64) (bool, error) {
	return r.exists(ctx, &contentModel.Follow{}, "follower_id = ? AND followee_id = ?", followerID, followeeID)
}

func (r *interactionRepository) HasCommentLike(ctx context.Context, userID, commentID uint64) (bool, error) {
	return r.exists(ctx, &model.CommentLike{}, "user_id = ? AND comment_id = ?", userID, commentID)
}

func (r *interactionRepository) GetComment(ctx context.Context, id uint64) (*model.Comment, error) {
	var c model.Comment
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *interactionRepository) ListComments(ctx context.Context, postID uint64) ([]*model.Comment, error) {
	var comments []*model.Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	return comments, err
}

func (r *interactionRepository) ListSaved(ctx context.Context, userID uint64, offset, limit int) ([]uint64, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&model.PostSave{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var ids []uint64
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Pluck("post_id", &ids).Error
	return ids, total, err
}

// CommentTree 把平铺的评论组装成一级评论加回复
// 父评论不在列表中的回复被丢弃
func CommentTree(flat []*model.Comment) []*model.Comment {
	roots := make([]*model.Comment, 0, len(flat))
	byID := make(map[uint64]*model.Comment, len(flat))
	for _, c := range flat {
		if !c.IsReply() {
			c.Replies = nil
			roots = append(roots, c)
			byID[c.ID] = c
		}
	}
	for _, c := range flat {
		if c.IsReply() {
			if parent, ok := byID[*c.ParentID]; ok {
				parent.Replies = append(parent.Replies, c)
			}
		}
	}
	return roots
}
