package repository

import (
	"context"

	"creator_ledger/internal/domain/content/model"

	"gorm.io/gorm"
)

// PostRepository 帖子存储
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id uint64) (*model.Post, error)
	// List 按时间倒序分页，ownerID 为 0 时不过滤作者
	List(ctx context.Context, ownerID uint64, offset, limit int) ([]*model.Post, int64, error)
	// UpdateEditable 只允许修改正文、媒体与可见性
	UpdateEditable(ctx context.Context, id uint64, fields map[string]interface{}) error
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id uint64) (*model.Post, error) {
	var post model.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, ownerID uint64, offset, limit int) ([]*model.Post, int64, error) {
	var posts []*model.Post
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Post{})
	if ownerID != 0 {
		query = query.Where("owner_id = ?", ownerID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&posts).Error; err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

var editableColumns = map[string]bool{"content": true, "media_url": true, "visibility": true}

func (r *postRepository) UpdateEditable(ctx context.Context, id uint64, fields map[string]interface{}) error {
	for col := range fields {
		if !editableColumns[col] {
			delete(fields, col)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Model(&model.Post{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
