package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nice20235/slippers/internal/datamodels/order"
	"github.com/nice20235/slippers/internal/datamodels/slipper"
	"github.com/nice20235/slippers/internal/notify"
)

// OrderService 订单状态机：PENDING -> PAID -> REFUNDED，库存预留和订单创建在同一事务里
type OrderService struct {
	db       *gorm.DB
	orders   order.Repository
	notifier notify.Notifier
	log      *zap.Logger
}

// NewOrderService 创建订单服务
func NewOrderService(db *gorm.DB, orders order.Repository, notifier notify.Notifier) *OrderService {
	return &OrderService{
		db:       db,
		orders:   orders,
		notifier: notifier,
		log:      zap.L().Named("order"),
	}
}

// GetByID 查询订单
func (s *OrderService) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListByUser 查询用户订单
func (s *OrderService) ListByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// CreateOrder 下单。单价取商品表的当前价（绝不信客户端价格），
// 库存扣减、订单和明细写入在一个事务里完成，任何一件库存不足则整单失败。
// idemKey 非空时同一用户重复提交直接返回已有订单，库存只扣一次。
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, items []CartItem, idemKey string) (*order.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order must have at least one item", ErrValidation)
	}
	for _, it := range items {
		if it.SlipperID <= 0 || it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: slipper id and quantity must be positive", ErrValidation)
		}
	}

	if idemKey != "" {
		existing, err := s.orders.GetByIdempotencyKey(ctx, userID, idemKey)
		if err == nil {
			s.log.Info("idempotency key replay, returning existing order",
				zap.Int64("user_id", userID), zap.Int64("order_id", existing.ID))
			return existing, nil
		}
		if !errors.Is(err, order.ErrNotFound) {
			return nil, err
		}
	}

	var o *order.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) 条件扣减每件商品的库存，中途失败整体回滚
		if err := reserveStock(tx, items); err != nil {
			return err
		}

		// 2) 用权威单价算明细和总额
		var (
			total      int64
			orderItems []order.OrderItem
		)
		for _, it := range items {
			var sl slipper.Slipper
			if err := tx.First(&sl, it.SlipperID).Error; err != nil {
				return err
			}
			if sl.Status != 1 {
				return fmt.Errorf("%w: slipper %d is not available", ErrValidation, sl.ID)
			}
			line := sl.Price * it.Quantity
			total += line
			orderItems = append(orderItems, order.OrderItem{
				SlipperID:  sl.ID,
				Quantity:   it.Quantity,
				UnitPrice:  sl.Price,
				TotalPrice: line,
			})
		}

		// 3) 写订单 + 明细
		newOrder := &order.Order{
			Code:        uuid.NewString(),
			UserID:      userID,
			TotalAmount: total,
			Status:      order.StatusPending,
			Items:       orderItems,
		}
		if idemKey != "" {
			k := idemKey
			newOrder.IdempotencyKey = &k
		}
		if err := tx.Create(newOrder).Error; err != nil {
			return err
		}
		o = newOrder
		return nil
	})
	if err != nil {
		// 幂等键撞了唯一索引说明并发重试先到了一步，返回先到的那单
		if idemKey != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.orders.GetByIdempotencyKey(ctx, userID, idemKey)
		}
		return nil, err
	}

	GetMonitor().RecordOrderCreated()
	for _, it := range items {
		s.notifier.StockChanged(ctx, it.SlipperID)
	}
	s.notifier.OrderStatusChanged(ctx, o.ID, o.Code, o.Status)
	s.log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.String("code", o.Code),
		zap.Int64("total", o.TotalAmount))
	return o, nil
}

// MarkPaidTx 在调用方事务内把订单 PENDING -> PAID 并挂上支付记录。
// 条件更新影响 0 行说明当前不是 PENDING。回调对账器是唯一的调用方。
func (s *OrderService) MarkPaidTx(tx *gorm.DB, orderID, paymentID int64) error {
	res := tx.Model(&order.Order{}).
		Where("id = ? AND status = ?", orderID, order.StatusPending).
		Updates(map[string]interface{}{
			"status":     order.StatusPaid,
			"payment_id": paymentID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		cur, err := s.currentStatus(tx, orderID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %v", order.ErrOrderNotPending,
			&order.InvalidTransitionError{From: cur, To: order.StatusPaid})
	}
	return nil
}

// MarkRefundedTx 在调用方事务内把订单 PAID -> REFUNDED。退款流程是唯一的调用方。
func (s *OrderService) MarkRefundedTx(tx *gorm.DB, orderID int64) error {
	res := tx.Model(&order.Order{}).
		Where("id = ? AND status = ?", orderID, order.StatusPaid).
		Update("status", order.StatusRefunded)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		cur, err := s.currentStatus(tx, orderID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %v", order.ErrOrderNotPaid,
			&order.InvalidTransitionError{From: cur, To: order.StatusRefunded})
	}
	return nil
}

func (s *OrderService) currentStatus(tx *gorm.DB, orderID int64) (order.Status, error) {
	var o order.Order
	if err := tx.Select("status").First(&o, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", order.ErrNotFound
		}
		return "", err
	}
	return o.Status, nil
}

// CancelExpired 把超过 ttl 仍然 PENDING 的订单取消并回补库存。
// 逐单一个事务，条件更新保证已经转走的订单是 no-op，可以随便重放。
func (s *OrderService) CancelExpired(ctx context.Context, ttl time.Duration) (int, error) {
	before := time.Now().Add(-ttl)
	expired, err := s.orders.ListExpiredPending(ctx, before, 100)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, o := range expired {
		flipped := false
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&order.Order{}).
				Where("id = ? AND status = ?", o.ID, order.StatusPending).
				Update("status", order.StatusCancelled)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// 扫描和取消之间订单已经被支付/取消，跳过
				return nil
			}
			flipped = true
			return releaseStock(tx, itemsFromOrder(o))
		})
		if err != nil {
			s.log.Error("failed to cancel expired order", zap.Int64("order_id", o.ID), zap.Error(err))
			return cancelled, err
		}
		if !flipped {
			continue
		}
		cancelled++
		GetMonitor().RecordOrderCancelled()
		for _, it := range o.Items {
			s.notifier.StockChanged(ctx, it.SlipperID)
		}
		s.notifier.OrderStatusChanged(ctx, o.ID, o.Code, order.StatusCancelled)
		s.log.Info("expired pending order cancelled", zap.Int64("order_id", o.ID), zap.String("code", o.Code))
	}
	return cancelled, nil
}
