package repository

import (
	"context"
	"time"

	"creator_ledger/internal/domain/content/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RelationRepository 关注、订阅、购买关系的读取与订阅维护
// 关注和购买记录由账本写入，这里只读
type RelationRepository interface {
	// FollowedAmong 返回 viewer 关注了的作者ID集合，一次查询
	FollowedAmong(ctx context.Context, viewerID uint64, creatorIDs []uint64) (map[uint64]bool, error)
	// SubscribedAmong 返回 viewer 有效订阅的作者ID集合，一次查询
	SubscribedAmong(ctx context.Context, viewerID uint64, creatorIDs []uint64) (map[uint64]bool, error)
	// PurchasedAmong 返回 viewer 已购买的帖子ID集合，一次查询
	PurchasedAmong(ctx context.Context, viewerID uint64, postIDs []uint64) (map[uint64]bool, error)

	// Related 两人之间任一方向的关注或有效订阅
	Related(ctx context.Context, a, b uint64) (bool, error)

	GetSubscription(ctx context.Context, subscriberID, creatorID uint64) (*model.Subscription, error)
	// UpsertSubscription 创建或重新激活订阅，返回状态是否改变
	UpsertSubscription(ctx context.Context, subscriberID, creatorID uint64, expiresAt *time.Time) (bool, error)
	// DeactivateSubscription 置为失效，不删除
	DeactivateSubscription(ctx context.Context, subscriberID, creatorID uint64) (bool, error)
	// LapseExpired 把到期的订阅置为失效，返回受影响的订阅
	LapseExpired(ctx context.Context, now time.Time) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, subscriberID uint64) ([]model.Subscription, error)
}

type relationRepository struct {
	db *gorm.DB
}

func NewRelationRepository(db *gorm.DB) RelationRepository {
	return &relationRepository{db: db}
}

func toSet(ids []uint64) map[uint64]bool {
	set := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (r *relationRepository) FollowedAmong(ctx context.Context, viewerID uint64, creatorIDs []uint64) (map[uint64]bool, error) {
	if viewerID == 0 || len(creatorIDs) == 0 {
		return map[uint64]bool{}, nil
	}
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&model.Follow{}).
		Where("follower_id = ? AND followee_id IN ?", viewerID, creatorIDs).
		Pluck("followee_id", &ids).Error
	return toSet(ids), err
}

func (r *relationRepository) SubscribedAmong(ctx context.Context, viewerID uint64, creatorIDs []uint64) (map[uint64]bool, error) {
	if viewerID == 0 || len(creatorIDs) == 0 {
		return map[uint64]bool{}, nil
	}
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("subscriber_id = ? AND creator_id IN ? AND is_active = ?", viewerID, creatorIDs, true).
		Pluck("creator_id", &ids).Error
	return toSet(ids), err
}

func (r *relationRepository) PurchasedAmong(ctx context.Context, viewerID uint64, postIDs []uint64) (map[uint64]bool, error) {
	if viewerID == 0 || len(postIDs) == 0 {
		return map[uint64]bool{}, nil
	}
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&model.Purchase{}).
		Where("user_id = ? AND post_id IN ?", viewerID, postIDs).
		Pluck("post_id", &ids).Error
	return toSet(ids), err
}

func (r *relationRepository) Related(ctx context.Context, a, b uint64) (bool, error) {
	db := r.db.WithContext(ctx)

	var follows int64
	if err := db.Model(&model.Follow{}).
		Where("(follower_id = ? AND followee_id = ?) OR (follower_id = ? AND followee_id = ?)", a, b, b, a).
		Count(&follows).Error; err != nil {
		return false, err
	}
	if follows > 0 {
		return true, nil
	}

	var subs int64
	err := db.Model(&model.Subscription{}).
		Where("is_active = ? AND ((subscriber_id = ? AND creator_id = ?) OR (subscriber_id = ? AND creator_id = ?))", true, a, b, b, a).
		Count(&subs).Error
	return subs > 0, err
}

func (r *relationRepository) GetSubscription(ctx context.Context, subscriberID, creatorID uint64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ? AND creator_id = ?", subscriberID, creatorID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *relationRepository) UpsertSubscription(ctx context.Context, subscriberID, creatorID uint64, expiresAt *time.Time) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := &model.Subscription{SubscriberID: subscriberID, CreatorID: creatorID, IsActive: true, ExpiresAt: expiresAt}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(sub)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			changed = true
			return nil
		}

		// 已存在：重新激活并刷新到期时间
		result = tx.Model(&model.Subscription{}).
			Where("subscriber_id = ? AND creator_id = ? AND is_active = ?", subscriberID, creatorID, false).
			Updates(map[string]interface{}{"is_active": true, "expires_at": expiresAt})
		if result.Error != nil {
			return result.Error
		}
		changed = result.RowsAffected > 0
		if !changed {
			return tx.Model(&model.Subscription{}).
				Where("subscriber_id = ? AND creator_id = ?", subscriberID, creatorID).
				Update("expires_at", expiresAt).Error
		}
		return nil
	})
	return changed, err
}

func (r *relationRepository) DeactivateSubscription(ctx context.Context, subscriberID, creatorID uint64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("subscriber_id = ? AND creator_id = ? AND is_active = ?", subscriberID, creatorID, true).
		Update("is_active", false)
	return result.RowsAffected > 0, result.Error
}

func (r *relationRepository) LapseExpired(ctx context.Context, now time.Time) ([]model.Subscription, error) {
	var lapsed []model.Subscription
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
			Find(&lapsed).Error; err != nil {
			return err
		}
		if len(lapsed) == 0 {
			return nil
		}
		ids := make([]uint64, len(lapsed))
		for i, s := range lapsed {
			ids[i] = s.ID
		}
		return tx.Model(&model.Subscription{}).
			Where("id IN ? AND is_active = ?", ids, true).
			Update("is_active", false).Error
	})
	return lapsed, err
}

func (r *relationRepository) ListSubscriptions(ctx context.Context, subscriberID uint64) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Order("id DESC").
		Find(&subs).Error
	return subs, err
}
