package model

import (
	"time"
)

// BaseModel 基础模型，替代 gorm.Model，使用自增数字主键
// 交互记录 (点赞/收藏/关注) 以存在性为真值，因此不带软删除字段
type BaseModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
