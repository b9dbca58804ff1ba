package service

import (
	"context"
	"fmt"
	"strings"

	"creator_ledger/internal/domain/user/model"
	"creator_ledger/internal/domain/user/repository"
	"creator_ledger/internal/pkg/apperr"
	"creator_ledger/pkg/utils"
)

// ProfileInput 资料更新参数
type ProfileInput struct {
	Username    string `validate:"omitempty,min=3,max=64,excludesall= "`
	DisplayName string `validate:"omitempty,max=100"`
	AvatarURL   string `validate:"omitempty,max=500"`
	Bio         string `validate:"omitempty,max=500"`
}

// UserService 用户服务接口
type UserService interface {
	// EnsureProfile 会话用户第一次访问时建立资料
	EnsureProfile(ctx context.Context, id uint64, username string) (*model.User, error)
	GetUsers(ctx context.Context, page, limit int) ([]model.User, int64, error)
	GetUser(ctx context.Context, id uint64) (*model.User, error)
	UpdateProfile(ctx context.Context, id uint64, input ProfileInput) (*model.User, error)
}

// userService 实现
type userService struct {
	repo repository.UserRepository
}

// NewUserService 创建用户服务
func NewUserService(repo repository.UserRepository) UserService {
	return &userService{repo: repo}
}

func (s *userService) EnsureProfile(ctx context.Context, id uint64, username string) (*model.User, error) {
	if id == 0 {
		return nil, apperr.Validation("user id is required")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = fmt.Sprintf("user_%d", id) // 默认用户名
	}
	if err := apperr.ValidateStruct(ProfileInput{Username: username}); err != nil {
		return nil, err
	}

	user := &model.User{Username: username, Role: model.RoleUser}
	user.ID = id
	if err := s.repo.Ensure(ctx, user); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Validation("username %q is taken", username)
		}
		return nil, apperr.Transient("ensure profile", err)
	}
	return s.GetUser(ctx, id)
}

// GetUsers 获取用户列表（分页）
func (s *userService) GetUsers(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	p := utils.Pagination{Page: page, Limit: limit}
	offset, size := p.GetPageOffset()
	users, total, err := s.repo.GetList(ctx, offset, size)
	if err != nil {
		return nil, 0, apperr.Transient("list users", err)
	}
	return users, total, nil
}

// GetUser 获取单个用户
func (s *userService) GetUser(ctx context.Context, id uint64) (*model.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("user", err)
	}
	return user, nil
}

// UpdateProfile 更新资料
func (s *userService) UpdateProfile(ctx context.Context, id uint64, input ProfileInput) (*model.User, error) {
	if err := apperr.ValidateStruct(input); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if input.Username != "" {
		fields["username"] = input.Username
	}
	if input.DisplayName != "" {
		fields["display_name"] = input.DisplayName
	}
	if input.AvatarURL != "" {
		fields["avatar_url"] = input.AvatarURL
	}
	if input.Bio != "" {
		fields["bio"] = input.Bio
	}
	if len(fields) == 0 {
		return s.GetUser(ctx, id)
	}

	if err := s.repo.UpdateProfile(ctx, id, fields); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Validation("username %q is taken", input.Username)
		}
		return nil, apperr.FromStore("user", err)
	}
	return s.GetUser(ctx, id)
}
