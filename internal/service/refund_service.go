package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nice20235/slippers/internal/datamodels/order"
	"github.com/nice20235/slippers/internal/datamodels/payment"
	"github.com/nice20235/slippers/internal/datamodels/refund"
	"github.com/nice20235/slippers/internal/notify"
)

// RefundService 两段式退款：用户申请 -> 管理员审批 -> 管理员执行。
// 执行时先把申请占到 processing 再打网关，保证一笔申请只会退一次钱；
// 网关失败退回 approved 可重试，钱退出去之后落库失败则停在 processing 留给人工对账。
type RefundService struct {
	db       *gorm.DB
	orders   order.Repository
	payments payment.Repository
	refunds  refund.Repository
	orderSvc *OrderService
	paySvc   *PaymentService
	notifier notify.Notifier
	log      *zap.Logger
}

// NewRefundService 创建退款服务
func NewRefundService(db *gorm.DB, orders order.Repository, payments payment.Repository,
	refunds refund.Repository, orderSvc *OrderService, paySvc *PaymentService, notifier notify.Notifier) *RefundService {
	return &RefundService{
		db:       db,
		orders:   orders,
		payments: payments,
		refunds:  refunds,
		orderSvc: orderSvc,
		paySvc:   paySvc,
		notifier: notifier,
		log:      zap.L().Named("refund"),
	}
}

// refundable 某笔支付还可退的余额
func (s *RefundService) refundable(ctx context.Context, p *payment.Payment) (int64, error) {
	done, err := s.refunds.SumCompletedByPaymentID(ctx, p.ID)
	if err != nil {
		return 0, err
	}
	return p.Amount - done, nil
}

// RequestRefund 用户对已支付订单发起退款申请。amount 为 0 表示全额。
func (s *RefundService) RequestRefund(ctx context.Context, userID, orderID, amount int64, reason string) (*refund.Request, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrNotFound
	}
	if o.Status != order.StatusPaid && o.Status != order.StatusRefunded {
		return nil, fmt.Errorf("%w: order %d is %s", order.ErrOrderNotPaid, o.ID, o.Status)
	}
	p, err := s.payments.GetPaidByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	left, err := s.refundable(ctx, p)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		amount = left
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative refund amount", ErrValidation)
	}
	if amount > left || left <= 0 {
		return nil, fmt.Errorf("%w: requested %d, refundable %d", refund.ErrAmountExceedsPaid, amount, left)
	}

	req := &refund.Request{
		OrderID:   o.ID,
		PaymentID: p.ID,
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		Status:    refund.RequestStatusRequested,
	}
	if err := s.refunds.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	s.log.Info("refund requested",
		zap.Int64("request_id", req.ID),
		zap.Int64("order_id", o.ID),
		zap.Int64("amount", amount))
	return req, nil
}

// Decide 管理员审批。approve 为 false 即驳回。每个申请只能审批一次。
func (s *RefundService) Decide(ctx context.Context, adminID, requestID int64, approve bool, note string) (*refund.Request, error) {
	req, err := s.refunds.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	target := refund.RequestStatusRejected
	if approve {
		target = refund.RequestStatusApproved
	}
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&refund.Request{}).
		Where("id = ? AND status = ?", requestID, refund.RequestStatusRequested).
		Updates(map[string]interface{}{
			"status":     target,
			"admin_id":   adminID,
			"note":       note,
			"decided_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: request %d is %s", refund.ErrAlreadyDecided, requestID, req.Status)
	}
	req.Status = target
	req.AdminID = &adminID
	req.Note = note
	req.DecidedAt = &now
	s.log.Info("refund request decided",
		zap.Int64("request_id", requestID),
		zap.Int64("admin_id", adminID),
		zap.String("status", string(target)))
	return req, nil
}

// Process 执行一条已批准的退款申请：先把申请条件更新到 processing 占住，
// 再打网关，成功后在一个事务里落退款流水、置申请 processed，
// 退满则翻转支付与订单状态并回补库存。失败则把申请退回 approved。
func (s *RefundService) Process(ctx context.Context, adminID, requestID int64) (*refund.Refund, error) {
	req, err := s.refunds.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case refund.RequestStatusApproved:
	case refund.RequestStatusProcessing, refund.RequestStatusProcessed:
		return nil, fmt.Errorf("%w: request %d", refund.ErrAlreadyProcessed, requestID)
	default:
		return nil, fmt.Errorf("%w: request %d is %s", refund.ErrRequestNotApproved, requestID, req.Status)
	}

	p, err := s.payments.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	// 审批和执行之间可能有别的退款落账，执行前再核一次余额
	left, err := s.refundable(ctx, p)
	if err != nil {
		return nil, err
	}
	if req.Amount > left {
		return nil, fmt.Errorf("%w: requested %d, refundable %d", refund.ErrAmountExceedsPaid, req.Amount, left)
	}

	// 打网关是覆水难收的动作，先抢占 approved -> processing，
	// 抢不到说明有并发执行在跑，这笔钱不能再退一次
	res := s.db.WithContext(ctx).Model(&refund.Request{}).
		Where("id = ? AND status = ?", requestID, refund.RequestStatusApproved).
		Update("status", refund.RequestStatusProcessing)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: request %d", refund.ErrAlreadyProcessed, requestID)
	}

	result, err := s.paySvc.RequestRefund(ctx, p, req.Amount)
	if err != nil {
		// 网关没退成，申请退回 approved，管理员可以再试
		s.db.WithContext(ctx).Model(&refund.Request{}).
			Where("id = ? AND status = ?", requestID, refund.RequestStatusProcessing).
			Update("status", refund.RequestStatusApproved)
		s.log.Error("gateway refund failed",
			zap.Int64("request_id", requestID),
			zap.Error(err))
		return nil, err
	}

	r := &refund.Refund{
		PaymentID:    p.ID,
		OrderID:      p.OrderID,
		RequestID:    req.ID,
		RequestedBy:  req.UserID,
		ProcessedBy:  adminID,
		Amount:       req.Amount,
		Currency:     p.Currency,
		ShopRefundID: result.ShopRefundID,
		Raw:          string(result.Raw),
		Status:       refund.StatusCompleted,
	}
	fullyRefunded := req.Amount == left

	var restock []CartItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		now := time.Now()
		res := tx.Model(&refund.Request{}).
			Where("id = ? AND status = ?", req.ID, refund.RequestStatusProcessing).
			Updates(map[string]interface{}{
				"status":       refund.RequestStatusProcessed,
				"processed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: request %d", refund.ErrAlreadyProcessed, req.ID)
		}
		if !fullyRefunded {
			return nil
		}
		// 全额退完：支付翻 refunded，订单翻 REFUNDED，库存回补
		if err := tx.Model(&payment.Payment{}).
			Where("id = ? AND status = ?", p.ID, payment.StatusPaid).
			Update("status", payment.StatusRefunded).Error; err != nil {
			return err
		}
		if p.OrderID == nil {
			return nil
		}
		if err := s.orderSvc.MarkRefundedTx(tx, *p.OrderID); err != nil {
			return err
		}
		var o order.Order
		if err := tx.Preload("Items").First(&o, *p.OrderID).Error; err != nil {
			return err
		}
		restock = itemsFromOrder(&o)
		return releaseStock(tx, restock)
	})
	if err != nil {
		return nil, err
	}

	GetMonitor().RecordRefundProcessed(req.Amount)
	for _, it := range restock {
		s.notifier.StockChanged(ctx, it.SlipperID)
	}
	if fullyRefunded && p.OrderID != nil {
		if o, oErr := s.orderSvc.GetByID(ctx, *p.OrderID); oErr == nil {
			s.notifier.OrderStatusChanged(ctx, o.ID, o.Code, o.Status)
		}
	}
	s.log.Info("refund processed",
		zap.Int64("request_id", req.ID),
		zap.Int64("refund_id", r.ID),
		zap.Int64("amount", req.Amount),
		zap.Bool("fully_refunded", fullyRefunded))
	return r, nil
}

// ListRequests 按状态列退款申请，status 为空表示不过滤
func (s *RefundService) ListRequests(ctx context.Context, status refund.RequestStatus, limit int) ([]*refund.Request, error) {
	return s.refunds.ListRequests(ctx, status, limit)
}
