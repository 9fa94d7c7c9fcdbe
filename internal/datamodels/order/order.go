package order

import (
	"context"
	"time"
)

// Status 订单状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
)

// Order 订单模型。TotalAmount 创建后不可变，并且恒等于明细 TotalPrice 之和。
type Order struct {
	ID     int64  `gorm:"primaryKey"`
	Code   string `gorm:"size:36;uniqueIndex;not null"` // 对外暴露的订单号
	UserID int64  `gorm:"not null;uniqueIndex:idx_orders_user_idem,priority:1"`
	// IdempotencyKey 客户端提交的幂等键，同一用户重复提交返回原订单；NULL 不参与唯一约束
	IdempotencyKey *string `gorm:"size:64;uniqueIndex:idx_orders_user_idem,priority:2"`
	TotalAmount    int64   `gorm:"not null"` // 单位：tiyin
	Status         Status  `gorm:"size:16;index;not null"`
	PaymentID      *int64  `gorm:"index"`
	CreatedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

// OrderItem 订单明细，单价为下单时的快照
type OrderItem struct {
	ID         int64 `gorm:"primaryKey"`
	OrderID    int64 `gorm:"index;not null"`
	SlipperID  int64 `gorm:"index;not null"`
	Quantity   int64 `gorm:"not null"`
	UnitPrice  int64 `gorm:"not null"`
	TotalPrice int64 `gorm:"not null"`
	CreatedAt  time.Time
}

// Repository 订单仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByCode(ctx context.Context, code string) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, userID int64, key string) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}
