package service

import (
	"context"

	"github.com/nice20235/slippers/internal/datamodels/user"
)

// UserService 只做鉴权消费端需要的查询，注册登录由外部身份服务负责
type UserService struct {
	repo user.Repository
}

func NewUserService(repo user.Repository) *UserService {
	return &UserService{repo: repo}
}

// GetByID 按主键查用户
func (s *UserService) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return s.repo.GetByID(ctx, id)
}

// IsAdmin 用户是否为管理员，查不到按非管理员处理
func (s *UserService) IsAdmin(ctx context.Context, id int64) (bool, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}
