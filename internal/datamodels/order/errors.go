package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 订单不存在
	ErrNotFound = errors.New("order not found")
	// ErrInsufficientStock 库存不足，整单回滚
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderNotPending 只有 PENDING 订单才能标记支付
	ErrOrderNotPending = errors.New("order is not pending")
	// ErrOrderNotPaid 只有 PAID 订单才能退款
	ErrOrderNotPaid = errors.New("order is not paid")
)

// InsufficientStockError 指明哪件商品库存不够
type InsufficientStockError struct {
	SlipperID int64
	Name      string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for slipper %d (%s): requested %d, available %d",
		e.SlipperID, e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidTransitionError 非法状态迁移，带上当前态和目标态
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}
