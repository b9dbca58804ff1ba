package model

import (
	"time"

	"creator_ledger/pkg/model"
)

// PostLike 点赞记录，存在即为已点赞
type PostLike struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_post_likes_pair" json:"userId"`
	PostID    uint64    `gorm:"not null;uniqueIndex:idx_post_likes_pair;index" json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostSave 收藏记录
type PostSave struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_post_saves_pair" json:"userId"`
	PostID    uint64    `gorm:"not null;uniqueIndex:idx_post_saves_pair;index" json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment 评论，只有一层回复：回复的 ParentID 指向一级评论
type Comment struct {
	model.BaseModel
	PostID    uint64     `gorm:"not null;index" json:"postId"`
	UserID    uint64     `gorm:"not null" json:"userId"`
	ParentID  *uint64    `gorm:"index" json:"parentId"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	LikeCount int64      `gorm:"not null;default:0" json:"likeCount"`
	Replies   []*Comment `gorm:"-" json:"replies,omitempty"`
}

// IsReply 是否为回复
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// CommentLike 评论点赞
type CommentLike struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_comment_likes_pair" json:"userId"`
	CommentID uint64    `gorm:"not null;uniqueIndex:idx_comment_likes_pair;index" json:"commentId"`
	CreatedAt time.Time `json:"createdAt"`
}
