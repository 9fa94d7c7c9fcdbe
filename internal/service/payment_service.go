package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nice20235/slippers/internal/config"
	"github.com/nice20235/slippers/internal/datamodels/order"
	"github.com/nice20235/slippers/internal/datamodels/payment"
	"github.com/nice20235/slippers/internal/gateway/octo"
)

// Gateway 支付网关客户端。octo.Client 是生产实现，测试用假实现。
type Gateway interface {
	CreatePayment(ctx context.Context, req octo.CreatePaymentRequest) (*octo.PrepareResult, error)
	Refund(ctx context.Context, paymentUUID string, amount int64) (*octo.RefundResult, error)
}

// PaymentService 支付网关适配器：先落地 CREATED 记录再出站调用，
// 崩在调用和应答之间也能留下可对账的痕迹。
type PaymentService struct {
	db       *gorm.DB
	orders   order.Repository
	payments payment.Repository
	gateway  Gateway
	cfg      *config.OctoConfig
	log      *zap.Logger
}

// NewPaymentService 创建支付服务
func NewPaymentService(db *gorm.DB, orders order.Repository, payments payment.Repository, gateway Gateway, cfg *config.OctoConfig) *PaymentService {
	return &PaymentService{
		db:       db,
		orders:   orders,
		payments: payments,
		gateway:  gateway,
		cfg:      cfg,
		log:      zap.L().Named("payment"),
	}
}

// shopTransactionID 订单号 + 尝试次数后缀，裁到网关允许的最大长度。
// 后缀必须保住，截断只砍订单号尾部。
func shopTransactionID(code string, attempt int64, maxLen int) string {
	suffix := "-" + strconv.FormatInt(attempt, 10)
	if maxLen <= 0 || len(code)+len(suffix) <= maxLen {
		return code + suffix
	}
	keep := maxLen - len(suffix)
	if keep < 1 {
		keep = 1
	}
	return code[:keep] + suffix
}

// CreatePaymentSession 为 PENDING 订单创建托管支付会话，返回支付页 URL。
// 网关失败时本地 Payment 置 FAILED 留痕，订单保持 PENDING，不自动回滚。
func (s *PaymentService) CreatePaymentSession(ctx context.Context, orderID int64, ud *octo.UserData) (string, *payment.Payment, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return "", nil, err
	}
	if o.Status != order.StatusPending {
		return "", nil, fmt.Errorf("%w: order %d is %s", order.ErrOrderNotPending, o.ID, o.Status)
	}

	attempt, err := s.payments.CountByOrderID(ctx, o.ID)
	if err != nil {
		return "", nil, err
	}

	p := &payment.Payment{
		OrderID:           &o.ID,
		ShopTransactionID: shopTransactionID(o.Code, attempt+1, s.cfg.MaxTransactionIDLen),
		Amount:            o.TotalAmount,
		Currency:          s.cfg.Currency,
		Status:            payment.StatusCreated,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return "", nil, err
	}

	res, err := s.gateway.CreatePayment(ctx, octo.CreatePaymentRequest{
		ShopTransactionID: p.ShopTransactionID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Description:       fmt.Sprintf("Order %s", o.Code),
		UserData:          ud,
	})
	if err != nil {
		GetMonitor().RecordGatewayError()
		// 留在 FAILED 等人工复核；订单仍可发起下一次支付
		s.markFailed(ctx, p, err)
		return "", p, err
	}

	if err := s.db.WithContext(ctx).Model(p).Updates(map[string]interface{}{
		"octo_payment_uuid": res.PaymentUUID,
		"status":            payment.StatusPending,
		"raw":               string(res.Raw),
	}).Error; err != nil {
		return "", nil, err
	}
	s.log.Info("payment session created",
		zap.Int64("order_id", o.ID),
		zap.String("shop_tx_id", p.ShopTransactionID),
		zap.String("payment_uuid", res.PaymentUUID))
	return res.PayURL, p, nil
}

func (s *PaymentService) markFailed(ctx context.Context, p *payment.Payment, cause error) {
	err := s.db.WithContext(ctx).Model(p).Updates(map[string]interface{}{
		"status": payment.StatusFailed,
		"raw":    cause.Error(),
	}).Error
	if err != nil {
		s.log.Error("failed to mark payment failed",
			zap.Int64("payment_id", p.ID), zap.Error(err))
		return
	}
	s.log.Warn("payment attempt failed",
		zap.Int64("payment_id", p.ID),
		zap.String("shop_tx_id", p.ShopTransactionID),
		zap.Error(cause))
}

// RequestRefund 调网关退款，成功返回网关退款应答；失败只报错不动本地状态
func (s *PaymentService) RequestRefund(ctx context.Context, p *payment.Payment, amount int64) (*octo.RefundResult, error) {
	if p.OctoPaymentUUID == "" {
		return nil, fmt.Errorf("%w: payment %d has no gateway uuid", octo.ErrRefundFailed, p.ID)
	}
	res, err := s.gateway.Refund(ctx, p.OctoPaymentUUID, amount)
	if err != nil {
		GetMonitor().RecordGatewayError()
		return nil, err
	}
	return res, nil
}

// 统一的时间布局，网关侧结算时间戳用这个格式
const gatewayTimeLayout = "2006-01-02 15:04:05"

// ParseSettledAt 解析网关结算时间，空串或解析失败退回当前时间
func ParseSettledAt(v string) time.Time {
	if v == "" {
		return time.Now()
	}
	t, err := time.Parse(gatewayTimeLayout, v)
	if err != nil {
		return time.Now()
	}
	return t
}
