package service

import (
	"context"
	"strings"
	"time"

	"creator_ledger/internal/domain/content/entitlement"
	"creator_ledger/internal/domain/content/model"
	"creator_ledger/internal/domain/content/repository"
	notificationModel "creator_ledger/internal/domain/notification/model"
	notificationService "creator_ledger/internal/domain/notification/service"
	userRepository "creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/pkg/utils"

	"go.uber.org/zap"
)

// CreatePostInput 发帖参数，UnlockPrice 与 IsNSFW 之后不可修改
type CreatePostInput struct {
	Content     string `validate:"max=10000"`
	MediaURL    string `validate:"omitempty,max=500"`
	Visibility  string `validate:"omitempty,oneof=public followers subscribers"`
	IsNSFW      bool
	UnlockPrice int64 `validate:"gte=0"`
}

// UpdatePostInput 可编辑字段，nil 表示不修改
type UpdatePostInput struct {
	Content    *string `validate:"omitempty,max=10000"`
	MediaURL   *string `validate:"omitempty,max=500"`
	Visibility *string `validate:"omitempty,oneof=public followers subscribers"`
}

// ContentService 帖子、订阅与可见性
type ContentService interface {
	CreatePost(ctx context.Context, ownerID uint64, input CreatePostInput) (*model.Post, error)
	UpdatePost(ctx context.Context, postID, editorID uint64, input UpdatePostInput) (*model.PostView, error)
	GetPost(ctx context.Context, postID, viewerID uint64) (*model.PostView, error)
	// Feed ownerID 为 0 时返回全站帖子
	Feed(ctx context.Context, viewerID, ownerID uint64, page, limit int) ([]*model.PostView, int64, error)
	// ResolveVisibility 组合关系缓存与可见性判断
	ResolveVisibility(ctx context.Context, post *model.Post, viewerID uint64) (bool, error)
	// CanViewPost 加载帖子并判断可见性，帖子不存在返回 NotFound
	CanViewPost(ctx context.Context, postID, viewerID uint64) (*model.Post, bool, error)

	Subscribe(ctx context.Context, subscriberID, creatorID uint64) (bool, error)
	CancelSubscription(ctx context.Context, subscriberID, creatorID uint64) (bool, error)
	ListSubscriptions(ctx context.Context, subscriberID uint64) ([]model.Subscription, error)
	// LapseExpired 到期订阅置为失效
	LapseExpired(ctx context.Context, now time.Time) (int, error)
}

type contentService struct {
	posts     repository.PostRepository
	relations repository.RelationRepository
	users     userRepository.UserRepository
	relCache  RelationshipCache
	notifier  notificationService.Notifier
	subPeriod time.Duration
	log       *zap.Logger
}

func NewContentService(
	posts repository.PostRepository,
	relations repository.RelationRepository,
	users userRepository.UserRepository,
	relCache RelationshipCache,
	notifier notificationService.Notifier,
	log *zap.Logger,
) ContentService {
	if notifier == nil {
		notifier = notificationService.NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &contentService{
		posts:     posts,
		relations: relations,
		users:     users,
		relCache:  relCache,
		notifier:  notifier,
		subPeriod: 30 * 24 * time.Hour,
		log:       log,
	}
}

func (s *contentService) CreatePost(ctx context.Context, ownerID uint64, input CreatePostInput) (*model.Post, error) {
	if err := apperr.ValidateStruct(input); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Content) == "" && input.MediaURL == "" {
		return nil, apperr.Validation("post needs content or media")
	}
	if input.Visibility == "" {
		input.Visibility = model.VisibilityPublic
	}

	post := &model.Post{
		OwnerID:     ownerID,
		Content:     input.Content,
		MediaURL:    input.MediaURL,
		Visibility:  input.Visibility,
		IsNSFW:      input.IsNSFW,
		UnlockPrice: input.UnlockPrice,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, apperr.Transient("create post", err)
	}
	return post, nil
}

func (s *contentService) UpdatePost(ctx context.Context, postID, editorID uint64, input UpdatePostInput) (*model.PostView, error) {
	if err := apperr.ValidateStruct(input); err != nil {
		return nil, err
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, apperr.FromStore("post", err)
	}
	if post.OwnerID != editorID {
		return nil, apperr.Permission("only the owner can edit this post")
	}

	fields := map[string]interface{}{}
	if input.Content != nil {
		fields["content"] = *input.Content
	}
	if input.MediaURL != nil {
		fields["media_url"] = *input.MediaURL
	}
	if input.Visibility != nil {
		fields["visibility"] = *input.Visibility
	}
	if err := s.posts.UpdateEditable(ctx, postID, fields); err != nil {
		return nil, apperr.FromStore("post", err)
	}
	return s.GetPost(ctx, postID, editorID)
}

func (s *contentService) GetPost(ctx context.Context, postID, viewerID uint64) (*model.PostView, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, apperr.FromStore("post", err)
	}
	views, err := s.buildViews(ctx, viewerID, []*model.Post{post})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func (s *contentService) Feed(ctx context.Context, viewerID, ownerID uint64, page, limit int) ([]*model.PostView, int64, error) {
	p := utils.Pagination{Page: page, Limit: limit}
	offset, size := p.GetPageOffset()

	posts, total, err := s.posts.List(ctx, ownerID, offset, size)
	if err != nil {
		return nil, 0, apperr.Transient("list posts", err)
	}
	views, err := s.buildViews(ctx, viewerID, posts)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// buildViews 整页帖子一次批量解析关系，不可见的帖子抹掉正文
func (s *contentService) buildViews(ctx context.Context, viewerID uint64, posts []*model.Post) ([]*model.PostView, error) {
	rels, err := s.relCache.Resolve(ctx, viewerID, posts)
	if err != nil {
		return nil, apperr.Transient("resolve relationships", err)
	}
	views := make([]*model.PostView, len(posts))
	for i, p := range posts {
		rel := rels[p.ID]
		v := &model.PostView{
			Post:        p,
			CanView:     entitlement.Resolve(p, viewerID, rel),
			IsPurchased: rel.IsPurchased,
		}
		v.Redact()
		views[i] = v
	}
	return views, nil
}

func (s *contentService) ResolveVisibility(ctx context.Context, post *model.Post, viewerID uint64) (bool, error) {
	rels, err := s.relCache.Resolve(ctx, viewerID, []*model.Post{post})
	if err != nil {
		return false, apperr.Transient("resolve relationships", err)
	}
	return entitlement.Resolve(post, viewerID, rels[post.ID]), nil
}

func (s *contentService) CanViewPost(ctx context.Context, postID, viewerID uint64) (*model.Post, bool, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, false, apperr.FromStore("post", err)
	}
	ok, err := s.ResolveVisibility(ctx, post, viewerID)
	if err != nil {
		return nil, false, err
	}
	return post, ok, nil
}

func (s *contentService) Subscribe(ctx context.Context, subscriberID, creatorID uint64) (bool, error) {
	if subscriberID == creatorID {
		return false, apperr.Validation("cannot subscribe to yourself")
	}
	if _, err := s.users.GetByID(ctx, creatorID); err != nil {
		return false, apperr.FromStore("creator", err)
	}

	expiresAt := time.Now().Add(s.subPeriod)
	changed, err := s.relations.UpsertSubscription(ctx, subscriberID, creatorID, &expiresAt)
	if err != nil {
		return false, apperr.Transient("subscribe", err)
	}
	if changed {
		s.relCache.InvalidateSubscription(ctx, subscriberID, creatorID)
		s.notifier.Notify(ctx, notificationModel.New(creatorID, subscriberID, notificationModel.TypeSubscribe, subscriberID, nil))
	}
	return changed, nil
}

func (s *contentService) CancelSubscription(ctx context.Context, subscriberID, creatorID uint64) (bool, error) {
	changed, err := s.relations.DeactivateSubscription(ctx, subscriberID, creatorID)
	if err != nil {
		return false, apperr.Transient("cancel subscription", err)
	}
	if changed {
		s.relCache.InvalidateSubscription(ctx, subscriberID, creatorID)
	}
	return changed, nil
}

func (s *contentService) ListSubscriptions(ctx context.Context, subscriberID uint64) ([]model.Subscription, error) {
	subs, err := s.relations.ListSubscriptions(ctx, subscriberID)
	if err != nil {
		return nil, apperr.Transient("list subscriptions", err)
	}
	return subs, nil
}

func (s *contentService) LapseExpired(ctx context.Context, now time.Time) (int, error) {
	lapsed, err := s.relations.LapseExpired(ctx, now)
	if err != nil {
		return 0, apperr.Transient("lapse subscriptions", err)
	}
	for _, sub := range lapsed {
		s.relCache.InvalidateSubscription(ctx, sub.SubscriberID, sub.CreatorID)
	}
	if len(lapsed) > 0 {
		s.log.Info("subscriptions lapsed", zap.Int("count", len(lapsed)))
	}
	return len(lapsed), nil
}
