package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nice20235/slippers/internal/datamodels/order"
	"github.com/nice20235/slippers/internal/datamodels/payment"
	"github.com/nice20235/slippers/internal/gateway/octo"
	"github.com/nice20235/slippers/internal/notify"
)

// errConcurrentDelivery 同一事件的并发投递抢先提交了终态
var errConcurrentDelivery = errors.New("concurrent webhook delivery")

// 网关回调里的 status 取值
const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

// Notification 网关回调报文
type Notification struct {
	ShopTransactionID string `json:"shop_transaction_id"`
	PaymentUUID       string `json:"octo_payment_UUID"`
	Status            string `json:"status"`
	TotalSum          int64  `json:"total_sum"`
	SettledAt         string `json:"settled_at"`
	Signature         string `json:"signature"`
}

// signedFields 参与签名的字段（signature 本身除外）
func (n *Notification) signedFields() map[string]string {
	return map[string]string{
		"shop_transaction_id": n.ShopTransactionID,
		"octo_payment_UUID":   n.PaymentUUID,
		"status":              n.Status,
		"total_sum":           strconv.FormatInt(n.TotalSum, 10),
		"settled_at":          n.SettledAt,
	}
}

// WebhookService 回调对账器：同一个网关事件不管送多少次、什么顺序到，
// 最多只产生一次状态迁移。
type WebhookService struct {
	db       *gorm.DB
	payments payment.Repository
	orderSvc *OrderService
	notifier notify.Notifier
	secret   string
	log      *zap.Logger
}

// NewWebhookService 创建回调对账服务
func NewWebhookService(db *gorm.DB, payments payment.Repository, orderSvc *OrderService, notifier notify.Notifier, secret string) *WebhookService {
	return &WebhookService{
		db:       db,
		payments: payments,
		orderSvc: orderSvc,
		notifier: notifier,
		secret:   secret,
		log:      zap.L().Named("webhook"),
	}
}

// outcomeStatus 把回调 status 映射成本地支付终态
func outcomeStatus(outcome string) (payment.Status, bool) {
	switch outcome {
	case outcomeSucceeded:
		return payment.StatusPaid, true
	case outcomeFailed:
		return payment.StatusFailed, true
	case outcomeCancelled:
		return payment.StatusCancelled, true
	}
	return "", false
}

// HandleNotification 处理一条回调。返回 nil 表示可以向网关回固定 ACK
// （包括幂等 no-op），返回错误表示拒收，网关会重投。
func (s *WebhookService) HandleNotification(ctx context.Context, n *Notification) error {
	GetMonitor().RecordWebhookReceived()

	// 1) 验签，失败闭环拒绝，不产生任何状态变化
	if !octo.VerifySignature(n.signedFields(), s.secret, n.Signature) {
		GetMonitor().RecordWebhookInvalidSignature()
		s.log.Warn("webhook signature mismatch", zap.String("shop_tx_id", n.ShopTransactionID))
		return payment.ErrInvalidSignature
	}

	target, ok := outcomeStatus(n.Status)
	if !ok {
		return fmt.Errorf("%w: unknown outcome %q", ErrValidation, n.Status)
	}

	// 2) 按 shop_transaction_id 找本地支付，找不到绝不补一条
	p, err := s.payments.GetByShopTransactionID(ctx, n.ShopTransactionID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			GetMonitor().RecordWebhookUnknownTx()
			s.log.Warn("webhook for unknown transaction", zap.String("shop_tx_id", n.ShopTransactionID))
			return payment.ErrUnknownTransaction
		}
		return err
	}

	// 3) 幂等闸门：终态且和回调一致，直接成功返回，不再碰订单和库存
	if p.Status.Terminal() {
		if p.Status == target || (p.Status == payment.StatusRefunded && target == payment.StatusPaid) {
			GetMonitor().RecordWebhookDuplicate()
			s.log.Info("duplicate webhook, no-op", zap.String("shop_tx_id", n.ShopTransactionID))
			return nil
		}
		// 同一交易号后来的相反结论：首个终态优先，记下来给人工对账
		s.log.Warn("conflicting webhook outcome ignored",
			zap.String("shop_tx_id", n.ShopTransactionID),
			zap.String("recorded", string(p.Status)),
			zap.String("reported", string(target)))
		return nil
	}

	raw, _ := json.Marshal(n)

	if target == payment.StatusPaid {
		return s.applyPaid(ctx, p, n, raw)
	}
	return s.applyFailed(ctx, p, target, raw)
}

// applyPaid 支付成功：支付记录和订单在一个事务里一起推进。
// 订单那边推不动（比如已经 REFUNDED）就整体失败，抛 InconsistentState 给人工。
func (s *WebhookService) applyPaid(ctx context.Context, p *payment.Payment, n *Notification, raw []byte) error {
	if p.OrderID == nil {
		return fmt.Errorf("%w: payment %d has no order", payment.ErrInconsistentState, p.ID)
	}
	orderID := *p.OrderID
	settledAt := ParseSettledAt(n.SettledAt)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":  payment.StatusPaid,
			"paid_at": settledAt,
			"raw":     string(raw),
		}
		if n.PaymentUUID != "" {
			updates["octo_payment_uuid"] = n.PaymentUUID
		}
		res := tx.Model(&payment.Payment{}).
			Where("id = ? AND status IN ?", p.ID, []payment.Status{payment.StatusCreated, payment.StatusPending}).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 并发投递抢先落了终态，外层重新走幂等闸门
			return errConcurrentDelivery
		}
		if err := s.orderSvc.MarkPaidTx(tx, orderID, p.ID); err != nil {
			if errors.Is(err, order.ErrOrderNotPending) {
				return fmt.Errorf("%w: %v", payment.ErrInconsistentState, err)
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errConcurrentDelivery) {
		return s.HandleNotification(ctx, n)
	}
	if err != nil {
		return err
	}

	GetMonitor().RecordWebhookApplied()
	o, oErr := s.orderSvc.GetByID(ctx, orderID)
	if oErr == nil {
		s.notifier.OrderStatusChanged(ctx, o.ID, o.Code, o.Status)
	}
	s.log.Info("payment settled",
		zap.Int64("payment_id", p.ID),
		zap.Int64("order_id", orderID),
		zap.String("shop_tx_id", n.ShopTransactionID))
	return nil
}

// applyFailed 支付失败/取消：只动支付记录，订单保持 PENDING，库存不放，
// 用户可以重试支付；过期后由清理任务回补库存。
func (s *WebhookService) applyFailed(ctx context.Context, p *payment.Payment, target payment.Status, raw []byte) error {
	res := s.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("id = ? AND status IN ?", p.ID, []payment.Status{payment.StatusCreated, payment.StatusPending}).
		Updates(map[string]interface{}{
			"status": target,
			"raw":    string(raw),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 已被并发投递推进，算作幂等 no-op
		GetMonitor().RecordWebhookDuplicate()
		return nil
	}
	GetMonitor().RecordWebhookApplied()
	s.log.Info("payment marked as "+string(target),
		zap.Int64("payment_id", p.ID),
		zap.String("shop_tx_id", p.ShopTransactionID))
	return nil
}
