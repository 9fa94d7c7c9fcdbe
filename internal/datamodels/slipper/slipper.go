package slipper

import (
	"context"
	"time"
)

// Slipper 商品模型，Stock 只允许下单预留/退款回补两条路径修改
type Slipper struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"size:128;not null"`
	Size        string    `gorm:"size:16"`
	Description string    `gorm:"size:512"`
	Price       int64     `gorm:"not null"` // 单位：tiyin
	Stock       int64     `gorm:"not null"`
	Status      int       `gorm:"index"` // 0:下架 1:在售
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository 商品仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Slipper, error)
	ListOnline(ctx context.Context) ([]*Slipper, error)
	Create(ctx context.Context, s *Slipper) error
	Update(ctx context.Context, s *Slipper) error
}
