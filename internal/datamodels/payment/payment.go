package payment

import (
	"context"
	"errors"
	"time"
)

// Status 支付状态
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Terminal 是否终态（到达后回调不再推进）
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Payment 支付记录。ShopTransactionID 全局唯一，是回调去重的锚点。
type Payment struct {
	ID      int64  `gorm:"primaryKey"`
	OrderID *int64 `gorm:"index"`
	// ShopTransactionID 我方生成的网关交易号（订单号 + 尝试次数后缀）
	ShopTransactionID string `gorm:"size:64;uniqueIndex;not null"`
	// OctoPaymentUUID 网关侧支付会话标识
	OctoPaymentUUID string `gorm:"size:64;index"`
	Amount          int64  `gorm:"not null"`
	Currency        string `gorm:"size:8;not null"`
	Status          Status `gorm:"size:16;index;not null"`
	// Raw 网关最近一次应答/回调原文，审计用
	Raw       string `gorm:"type:text"`
	PaidAt    *time.Time
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

var (
	// ErrNotFound 支付记录不存在
	ErrNotFound = errors.New("payment not found")
	// ErrInvalidSignature 回调签名校验失败
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownTransaction 回调里的交易号本地没有记录，绝不凭回调造一条
	ErrUnknownTransaction = errors.New("unknown gateway transaction")
	// ErrInconsistentState 支付与订单状态冲突，留给人工对账
	ErrInconsistentState = errors.New("payment/order state inconsistent")
)

// Repository 支付仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByShopTransactionID(ctx context.Context, shopTxID string) (*Payment, error)
	GetPaidByOrderID(ctx context.Context, orderID int64) (*Payment, error)
	CountByOrderID(ctx context.Context, orderID int64) (int64, error)
	Create(ctx context.Context, p *Payment) error
}
