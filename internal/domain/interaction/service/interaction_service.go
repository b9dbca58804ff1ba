package service

import (
	"context"
	"errors"
	"strings"

	contentModel "creator_ledger/internal/domain/content/model"
	"creator_ledger/internal/domain/interaction/model"
	"creator_ledger/internal/domain/interaction/repository"
	"creator_ledger/internal/domain/interaction/strategy"
	notificationModel "creator_ledger/internal/domain/notification/model"
	notificationService "creator_ledger/internal/domain/notification/service"
	userRepository "creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/internal/realtime"
	"creator_ledger/pkg/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostAccess 帖子存在性与可见性判断
type PostAccess interface {
	CanViewPost(ctx context.Context, postID, viewerID uint64) (*contentModel.Post, bool, error)
}

// FollowInvalidator 关注关系变化后失效缓存
type FollowInvalidator interface {
	InvalidateFollow(ctx context.Context, followerID, creatorID uint64)
}

// CommentInput 评论输入，ParentID 指向被回复的评论
type CommentInput struct {
	Content  string  `validate:"required,max=2000"`
	ParentID *uint64 `validate:"omitempty"`
}

// InteractionService 交互账本
// 每个操作返回记录状态是否真的发生变化；Toggle 返回操作后的状态
type InteractionService interface {
	Like(ctx context.Context, userID, postID uint64) (bool, error)
	Unlike(ctx context.Context, userID, postID uint64) (bool, error)
	ToggleLike(ctx context.Context, userID, postID uint64) (bool, error)

	Save(ctx context.Context, userID, postID uint64) (bool, error)
	Unsave(ctx context.Context, userID, postID uint64) (bool, error)
	ToggleSave(ctx context.Context, userID, postID uint64) (bool, error)

	Follow(ctx context.Context, followerID, followeeID uint64) (bool, error)
	Unfollow(ctx context.Context, followerID, followeeID uint64) (bool, error)
	ToggleFollow(ctx context.Context, followerID, followeeID uint64) (bool, error)

	LikeComment(ctx context.Context, userID, commentID uint64) (bool, error)
	UnlikeComment(ctx context.Context, userID, commentID uint64) (bool, error)
	ToggleCommentLike(ctx context.Context, userID, commentID uint64) (bool, error)

	AddComment(ctx context.Context, userID, postID uint64, input CommentInput) (*model.Comment, error)
	DeleteComment(ctx context.Context, userID, commentID uint64) (bool, error)
	// ListComments 一级评论按时间正序，回复挂在父评论下
	ListComments(ctx context.Context, viewerID, postID uint64) ([]*model.Comment, error)

	PostState(ctx context.Context, userID, postID uint64) (liked, saved bool, err error)
	SavedPosts(ctx context.Context, userID uint64, page, limit int) ([]uint64, int64, error)
}

type interactionService struct {
	strategy strategy.InteractionStrategy
	repo     repository.InteractionRepository
	posts    PostAccess
	users    userRepository.UserRepository
	follows  FollowInvalidator
	emitter  *realtime.Emitter
	notifier notificationService.Notifier
	log      *zap.Logger
}

func NewInteractionService(
	s strategy.InteractionStrategy,
	repo repository.InteractionRepository,
	posts PostAccess,
	users userRepository.UserRepository,
	follows FollowInvalidator,
	emitter *realtime.Emitter,
	notifier notificationService.Notifier,
	log *zap.Logger,
) InteractionService {
	if notifier == nil {
		notifier = notificationService.NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &interactionService{
		strategy: s,
		repo:     repo,
		posts:    posts,
		users:    users,
		follows:  follows,
		emitter:  emitter,
		notifier: notifier,
		log:      log,
	}
}

// apply 执行账本写入，脱离请求取消
func (s *interactionService) apply(ctx context.Context, m strategy.Mutation, target string) (bool, error) {
	changed, err := s.strategy.Apply(context.WithoutCancel(ctx), m)
	if err != nil {
		if errors.Is(err, strategy.ErrTargetGone) {
			return false, apperr.NotFound(target)
		}
		s.log.Error("interaction write failed", zap.String("action", m.Action), zap.Error(err))
		return false, apperr.Transient(m.Action, err)
	}
	return changed, nil
}

// requireVisible 帖子存在且当前用户可见
func (s *interactionService) requireVisible(ctx context.Context, postID, userID uint64) (*contentModel.Post, error) {
	post, ok, err := s.posts.CanViewPost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Permission("post is not visible to you")
	}
	return post, nil
}

func postCounter(postID uint64, column string, delta int64) strategy.Counter {
	return strategy.Counter{Table: "posts", Column: column, ID: postID, Delta: delta}
}

func (s *interactionService) Like(ctx context.Context, userID, postID uint64) (bool, error) {
	if _, err := s.requireVisible(ctx, postID, userID); err != nil {
		return false, err
	}
	return s.apply(ctx, strategy.Mutation{
		Action:   "like",
		Write:    strategy.InsertRecord(&model.PostLike{UserID: userID, PostID: postID}),
		Counters: []strategy.Counter{postCounter(postID, "like_count", 1)},
	}, "post")
}

// Unlike 取消点赞不要求可见，帖子变为不可见后仍可撤销
func (s *interactionService) Unlike(ctx context.Context, userID, postID uint64) (bool, error) {
	return s.apply(ctx, strategy.Mutation{
		Action:   "unlike",
		Write:    strategy.DeleteWhere(&model.PostLike{}, "user_id = ? AND post_id = ?", userID, postID),
		Counters: []strategy.Counter{postCounter(postID, "like_count", -1)},
	}, "post")
}

func (s *interactionService) ToggleLike(ctx context.Context, userID, postID uint64) (bool, error) {
	liked, err := s.repo.HasLike(ctx, userID, postID)
	if err != nil {
		return false, apperr.Transient("load like", err)
	}
	if liked {
		_, err = s.Unlike(ctx, userID, postID)
		return false, err
	}
	_, err = s.Like(ctx, userID, postID)
	return true, err
}

func (s *interactionService) Save(ctx context.Context, userID, postID uint64) (bool, error) {
	if _, err := s.requireVisible(ctx, postID, userID); err != nil {
		return false, err
	}
	return s.apply(ctx, strategy.Mutation{
		Action:   "save",
		Write:    strategy.InsertRecord(&model.PostSave{UserID: userID, PostID: postID}),
		Counters: []strategy.Counter{postCounter(postID, "save_count", 1)},
	}, "post")
}

func (s *interactionService) Unsave(ctx context.Context, userID, postID uint64) (bool, error) {
	return s.apply(ctx, strategy.Mutation{
		Action:   "unsave",
		Write:    strategy.DeleteWhere(&model.PostSave{}, "user_id = ? AND post_id = ?", userID, postID),
		Counters: []strategy.Counter{postCounter(postID, "save_count", -1)},
	}, "post")
}

func (s *interactionService) ToggleSave(ctx context.Context, userID, postID uint64) (bool, error) {
	saved, err := s.repo.HasSave(ctx, userID, postID)
	if err != nil {
		return false, apperr.Transient("load save", err)
	}
	if saved {
		_, err = s.Unsave(ctx, userID, postID)
		return false, err
	}
	_, err = s.Save(ctx, userID, postID)
	return true, err
}

func followCounters(followerID, followeeID uint64, delta int64) []strategy.Counter {
	return []strategy.Counter{
		{Table: "users", Column: "follower_count", ID: followeeID, Delta: delta},
		{Table: "users", Column: "following_count", ID: followerID, Delta: delta},
	}
}

func (s *interactionService) Follow(ctx context.Context, followerID, followeeID uint64) (bool, error) {
	if followerID == followeeID {
		return false, apperr.Validation("cannot follow yourself")
	}
	if _, err := s.users.GetByID(ctx, followeeID); err != nil {
		return false, apperr.FromStore("user", err)
	}

	changed, err := s.apply(ctx, strategy.Mutation{
		Action:   "follow",
		Write:    strategy.InsertRecord(&contentModel.Follow{FollowerID: followerID, FolloweeID: followeeID}),
		Counters: followCounters(followerID, followeeID, 1),
	}, "user")
	if err != nil || !changed {
		return changed, err
	}
	s.follows.InvalidateFollow(ctx, followerID, followeeID)
	s.notifier.Notify(ctx, notificationModel.New(followeeID, followerID, notificationModel.TypeFollow, followerID, nil))
	return true, nil
}

func (s *interactionService) Unfollow(ctx context.Context, followerID, followeeID uint64) (bool, error) {
	if followerID == followeeID {
		return false, apperr.Validation("cannot follow yourself")
	}
	changed, err := s.apply(ctx, strategy.Mutation{
		Action:   "unfollow",
		Write:    strategy.DeleteWhere(&contentModel.Follow{}, "follower_id = ? AND followee_id = ?", followerID, followeeID),
		Counters: followCounters(followerID, followeeID, -1),
	}, "user")
	if err == nil && changed {
		s.follows.InvalidateFollow(ctx, followerID, followeeID)
	}
	return changed, err
}

func (s *interactionService) ToggleFollow(ctx context.Context, followerID, followeeID uint64) (bool, error) {
	following, err := s.repo.HasFollow(ctx, followerID, followeeID)
	if err != nil {
		return false, apperr.Transient("load follow", err)
	}
	if following {
		_, err = s.Unfollow(ctx, followerID, followeeID)
		return false, err
	}
	_, err = s.Follow(ctx, followerID, followeeID)
	return true, err
}

// loadVisibleComment 评论存在且所属帖子可见
func (s *interactionService) loadVisibleComment(ctx context.Context, userID, commentID uint64) (*model.Comment, error) {
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return nil, apperr.FromStore("comment", err)
	}
	if _, err := s.requireVisible(ctx, comment.PostID, userID); err != nil {
		return nil, err
	}
	return comment, nil
}

func commentLikeCounter(commentID uint64, delta int64) []strategy.Counter {
	return []strategy.Counter{{Table: "comments", Column: "like_count", ID: commentID, Delta: delta}}
}

func (s *interactionService) LikeComment(ctx context.Context, userID, commentID uint64) (bool, error) {
	comment, err := s.loadVisibleComment(ctx, userID, commentID)
	if err != nil {
		return false, err
	}
	changed, err := s.apply(ctx, strategy.Mutation{
		Action:   "comment_like",
		Write:    strategy.InsertRecord(&model.CommentLike{UserID: userID, CommentID: commentID}),
		Counters: commentLikeCounter(commentID, 1),
	}, "comment")
	if err == nil && changed {
		s.emitCommentUpdate(ctx, comment.PostID, commentID, userID)
	}
	return changed, err
}

func (s *interactionService) UnlikeComment(ctx context.Context, userID, commentID uint64) (bool, error) {
	changed, err := s.apply(ctx, strategy.Mutation{
		Action:   "comment_unlike",
		Write:    strategy.DeleteWhere(&model.CommentLike{}, "user_id = ? AND comment_id = ?", userID, commentID),
		Counters: commentLikeCounter(commentID, -1),
	}, "comment")
	if err == nil && changed {
		if comment, gerr := s.repo.GetComment(ctx, commentID); gerr == nil {
			s.emitCommentUpdate(ctx, comment.PostID, commentID, userID)
		}
	}
	return changed, err
}

func (s *interactionService) ToggleCommentLike(ctx context.Context, userID, commentID uint64) (bool, error) {
	liked, err := s.repo.HasCommentLike(ctx, userID, commentID)
	if err != nil {
		return false, apperr.Transient("load comment like", err)
	}
	if liked {
		_, err = s.UnlikeComment(ctx, userID, commentID)
		return false, err
	}
	_, err = s.LikeComment(ctx, userID, commentID)
	return true, err
}

// emitCommentUpdate 计数变化后推送完整评论
func (s *interactionService) emitCommentUpdate(ctx context.Context, postID, commentID, origin uint64) {
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		s.log.Warn("reload comment for event", zap.Uint64("comment_id", commentID), zap.Error(err))
		return
	}
	s.emitter.Emit(ctx, realtime.ThreadScope(postID), realtime.OpUpdate, comment.ID, comment.ParentID, origin, comment)
}

func (s *interactionService) AddComment(ctx context.Context, userID, postID uint64, input CommentInput) (*model.Comment, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, apperr.Validation("comment content is empty")
	}
	if err := apperr.ValidateStruct(input); err != nil {
		return nil, err
	}
	post, err := s.requireVisible(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	// 只有一层回复：回复的回复挂到一级评论下
	var root *model.Comment
	if input.ParentID != nil {
		parent, err := s.repo.GetComment(ctx, *input.ParentID)
		if err != nil {
			return nil, apperr.FromStore("parent comment", err)
		}
		if parent.PostID != postID {
			return nil, apperr.Validation("parent comment belongs to another post")
		}
		root = parent
		if parent.IsReply() {
			if root, err = s.repo.GetComment(ctx, *parent.ParentID); err != nil {
				return nil, apperr.FromStore("parent comment", err)
			}
		}
	}

	comment := &model.Comment{PostID: postID, UserID: userID, Content: input.Content}
	var counters []strategy.Counter
	if root != nil {
		rootID := root.ID
		comment.ParentID = &rootID
	} else {
		counters = []strategy.Counter{postCounter(postID, "comment_count", 1)}
	}

	if _, err := s.apply(ctx, strategy.Mutation{
		Action:   "comment",
		Write:    strategy.InsertRecord(comment),
		Counters: counters,
	}, "post"); err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, realtime.ThreadScope(postID), realtime.OpInsert, comment.ID, comment.ParentID, userID, comment)
	s.notifyComment(ctx, post, root, comment)
	return comment, nil
}

func (s *interactionService) notifyComment(ctx context.Context, post *contentModel.Post, root, comment *model.Comment) {
	payload := map[string]interface{}{"postId": post.ID, "preview": utils.Truncate(comment.Content, 80)}
	if root != nil {
		if root.UserID != comment.UserID {
			s.notifier.Notify(ctx, notificationModel.New(root.UserID, comment.UserID, notificationModel.TypeReply, comment.ID, payload))
		}
		return
	}
	if post.OwnerID != comment.UserID {
		s.notifier.Notify(ctx, notificationModel.New(post.OwnerID, comment.UserID, notificationModel.TypeComment, comment.ID, payload))
	}
}

// DeleteComment 先删回复，再删评论本身，一级评论只减一次帖子评论数
// 评论作者或帖子作者可以删除
func (s *interactionService) DeleteComment(ctx context.Context, userID, commentID uint64) (bool, error) {
	comment, err := s.repo.GetComment(ctx, commentID)
	if err != nil {
		return false, apperr.FromStore("comment", err)
	}
	if comment.UserID != userID {
		post, _, err := s.posts.CanViewPost(ctx, comment.PostID, userID)
		if err != nil {
			return false, err
		}
		if post.OwnerID != userID {
			return false, apperr.Permission("only the author or the post owner can delete this comment")
		}
	}

	var removed []*model.Comment
	var counters []strategy.Counter
	if !comment.IsReply() {
		counters = []strategy.Counter{postCounter(comment.PostID, "comment_count", -1)}
	}
	changed, err := s.apply(ctx, strategy.Mutation{
		Action: "delete_comment",
		Write: func(tx *gorm.DB) (bool, error) {
			var replies []*model.Comment
			if !comment.IsReply() {
				if err := tx.Where("parent_id = ?", comment.ID).Find(&replies).Error; err != nil {
					return false, err
				}
			}
			ids := make([]uint64, 0, len(replies)+1)
			for _, r := range replies {
				ids = append(ids, r.ID)
			}
			ids = append(ids, comment.ID)

			if err := tx.Where("comment_id IN ?", ids).Delete(&model.CommentLike{}).Error; err != nil {
				return false, err
			}
			if len(replies) > 0 {
				if err := tx.Where("parent_id = ?", comment.ID).Delete(&model.Comment{}).Error; err != nil {
					return false, err
				}
			}
			res := tx.Where("id = ?", comment.ID).Delete(&model.Comment{})
			if res.Error != nil {
				return false, res.Error
			}
			removed = replies
			return res.RowsAffected > 0, nil
		},
		Counters: counters,
	}, "post")
	if err != nil || !changed {
		return changed, err
	}

	scope := realtime.ThreadScope(comment.PostID)
	for _, r := range removed {
		s.emitter.Emit(ctx, scope, realtime.OpDelete, r.ID, r.ParentID, userID, nil)
	}
	s.emitter.Emit(ctx, scope, realtime.OpDelete, comment.ID, comment.ParentID, userID, nil)
	return true, nil
}

func (s *interactionService) ListComments(ctx context.Context, viewerID, postID uint64) ([]*model.Comment, error) {
	if _, err := s.requireVisible(ctx, postID, viewerID); err != nil {
		return nil, err
	}
	flat, err := s.repo.ListComments(ctx, postID)
	if err != nil {
		return nil, apperr.Transient("list comments", err)
	}
	return repository.CommentTree(flat), nil
}

func (s *interactionService) PostState(ctx context.Context, userID, postID uint64) (bool, bool, error) {
	liked, err := s.repo.HasLike(ctx, userID, postID)
	if err != nil {
		return false, false, apperr.Transient("load like", err)
	}
	saved, err := s.repo.HasSave(ctx, userID, postID)
	if err != nil {
		return false, false, apperr.Transient("load save", err)
	}
	return liked, saved, nil
}

func (s *interactionService) SavedPosts(ctx context.Context, userID uint64, page, limit int) ([]uint64, int64, error) {
	offset, size := (&utils.Pagination{Page: page, Limit: limit}).GetPageOffset()
	ids, total, err := s.repo.ListSaved(ctx, userID, offset, size)
	if err != nil {
		return nil, 0, apperr.Transient("list saved posts", err)
	}
	return ids, total, nil
}
