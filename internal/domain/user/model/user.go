package model

import (
	"creator_ledger/pkg/model"
)

// 角色常量
const (
	RoleUser  = 1
	RoleAdmin = 2
)

// User 用户资料
// ID 与会话服务签发的数字用户ID一致；关注计数只由交互账本写入
type User struct {
	model.BaseModel
	Username       string `gorm:"type:varchar(64);uniqueIndex" json:"username"`
	DisplayName    string `gorm:"type:varchar(100)" json:"displayName"`
	AvatarURL      string `gorm:"type:varchar(500)" json:"avatarUrl"`
	Bio            string `gorm:"type:varchar(500)" json:"bio"`
	Role           int    `gorm:"default:1" json:"role"`
	FollowerCount  int64  `gorm:"not null;default:0" json:"followerCount"`
	FollowingCount int64  `gorm:"not null;default:0" json:"followingCount"`
}
