package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/nice20235/slippers/internal/datamodels/slipper"
)

type slipperRepo struct {
	db *gorm.DB
}

// NewSlipperRepository 创建商品仓储
func NewSlipperRepository(db *gorm.DB) slipper.Repository {
	return &slipperRepo{db: db}
}

func (r *slipperRepo) GetByID(ctx context.Context, id int64) (*slipper.Slipper, error) {
	var s slipper.Slipper
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *slipperRepo) ListOnline(ctx context.Context) ([]*slipper.Slipper, error) {
	var list []*slipper.Slipper
	if err := r.db.WithContext(ctx).
		Where("status = ?", 1).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *slipperRepo) Create(ctx context.Context, s *slipper.Slipper) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *slipperRepo) Update(ctx context.Context, s *slipper.Slipper) error {
	return r.db.WithContext(ctx).Save(s).Error
}
