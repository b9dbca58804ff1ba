package model

import (
	"time"

	"creator_ledger/pkg/model"
)

// 可见性
const (
	VisibilityPublic      = "public"
	VisibilityFollowers   = "followers"
	VisibilitySubscribers = "subscribers"
)

// Post 帖子
// UnlockPrice 与 IsNSFW 创建后不可修改；计数字段只由交互账本写入
type Post struct {
	model.BaseModel
	OwnerID      uint64 `gorm:"index;not null" json:"ownerId"`
	Content      string `gorm:"type:text" json:"content"`
	MediaURL     string `gorm:"type:varchar(500)" json:"mediaUrl"`
	Visibility   string `gorm:"type:varchar(20);not null;default:'public'" json:"visibility"`
	IsNSFW       bool   `gorm:"not null;default:false" json:"isNsfw"`
	UnlockPrice  int64  `gorm:"not null;default:0" json:"unlockPrice"` // 0 表示免费
	LikeCount    int64  `gorm:"not null;default:0" json:"likeCount"`
	SaveCount    int64  `gorm:"not null;default:0" json:"saveCount"`
	CommentCount int64  `gorm:"not null;default:0" json:"commentCount"` // 仅统计一级评论
}

// PostView 带查看者视角的帖子，CanView 为派生值，不持久化
type PostView struct {
	*Post
	CanView     bool `json:"canView"`
	IsPurchased bool `json:"isPurchased"`
}

// Redact 不可见时抹掉正文和媒体
func (v *PostView) Redact() {
	if v.CanView {
		return
	}
	redacted := *v.Post
	redacted.Content = ""
	redacted.MediaURL = ""
	v.Post = &redacted
}

// Follow 关注关系
type Follow struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	FollowerID uint64    `gorm:"not null;uniqueIndex:idx_follows_pair" json:"followerId"`
	FolloweeID uint64    `gorm:"not null;uniqueIndex:idx_follows_pair;index" json:"followeeId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Subscription 订阅关系，过期只置 IsActive=false，不删除
type Subscription struct {
	model.BaseModel
	SubscriberID uint64     `gorm:"not null;uniqueIndex:idx_subscriptions_pair" json:"subscriberId"`
	CreatorID    uint64     `gorm:"not null;uniqueIndex:idx_subscriptions_pair;index" json:"creatorId"`
	IsActive     bool       `gorm:"not null;default:true" json:"isActive"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// Purchase 付费内容购买记录
type Purchase struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_purchases_pair" json:"userId"`
	PostID    uint64    `gorm:"not null;uniqueIndex:idx_purchases_pair;index" json:"postId"`
	Amount    int64     `gorm:"not null" json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}
