package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/nice20235/slippers/internal/config"
	"github.com/nice20235/slippers/internal/datamodels/order"
	"github.com/nice20235/slippers/internal/datamodels/slipper"
	"github.com/nice20235/slippers/internal/gateway/octo"
	"github.com/nice20235/slippers/internal/repository/mysql"
)

// 测试用内存库，每个测试独立一份
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         glogger.Default.LogMode(glogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, mysql.AutoMigrate(db))
	return db
}

func seedSlipper(t *testing.T, db *gorm.DB, price, stock int64) *slipper.Slipper {
	t.Helper()
	s := &slipper.Slipper{
		Name:   "home slipper " + uuid.NewString()[:8],
		Size:   "42",
		Price:  price,
		Stock:  stock,
		Status: 1,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

func slipperStock(t *testing.T, db *gorm.DB, id int64) int64 {
	t.Helper()
	var s slipper.Slipper
	require.NoError(t, db.First(&s, id).Error)
	return s.Stock
}

// fakeNotifier 记录发出的事件，业务逻辑不关心投递结果
type fakeNotifier struct {
	mu          sync.Mutex
	stockEvents []int64
	orderEvents []order.Status
}

func (f *fakeNotifier) StockChanged(ctx context.Context, slipperID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stockEvents = append(f.stockEvents, slipperID)
}

func (f *fakeNotifier) OrderStatusChanged(ctx context.Context, orderID int64, code string, status order.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderEvents = append(f.orderEvents, status)
}

// fakeGateway 可编程的网关假实现
type fakeGateway struct {
	mu           sync.Mutex
	prepareCalls int
	refundCalls  int
	prepareErr   error
	refundErr    error
	lastPrepare  octo.CreatePaymentRequest
	lastRefund   int64
	// onRefund 在退款请求到达网关时触发，用来在在途窗口里插入动作
	onRefund func()
}

func (f *fakeGateway) CreatePayment(ctx context.Context, req octo.CreatePaymentRequest) (*octo.PrepareResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepareCalls++
	f.lastPrepare = req
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}
	return &octo.PrepareResult{
		PayURL:      "https://pay.octo.test/" + req.ShopTransactionID,
		PaymentUUID: "uuid-" + req.ShopTransactionID,
		Raw:         json.RawMessage(`{"error":0}`),
	}, nil
}

func (f *fakeGateway) Refund(ctx context.Context, paymentUUID string, amount int64) (*octo.RefundResult, error) {
	if f.onRefund != nil {
		f.onRefund()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	f.lastRefund = amount
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &octo.RefundResult{
		ShopRefundID: uuid.NewString(),
		Raw:          json.RawMessage(`{"error":0}`),
	}, nil
}

func testOctoConfig() *config.OctoConfig {
	return &config.OctoConfig{
		BaseURL:             "https://gateway.test",
		ShopID:              1,
		Secret:              "test-secret",
		Currency:            "UZS",
		Language:            "uz",
		TimeoutSeconds:      5,
		MaxTransactionIDLen: 64,
	}
}

// fixture 一套完整接好的服务，网关和通知都是假实现
type fixture struct {
	db       *gorm.DB
	notifier *fakeNotifier
	gateway  *fakeGateway
	orderSvc *OrderService
	paySvc   *PaymentService
	hookSvc  *WebhookService
	rfdSvc   *RefundService
	secret   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	notifier := &fakeNotifier{}
	gateway := &fakeGateway{}
	cfg := testOctoConfig()

	orderRepo := mysql.NewOrderRepository(db)
	paymentRepo := mysql.NewPaymentRepository(db)
	refundRepo := mysql.NewRefundRepository(db)

	orderSvc := NewOrderService(db, orderRepo, notifier)
	paySvc := NewPaymentService(db, orderRepo, paymentRepo, gateway, cfg)
	hookSvc := NewWebhookService(db, paymentRepo, orderSvc, notifier, cfg.Secret)
	rfdSvc := NewRefundService(db, orderRepo, paymentRepo, refundRepo, orderSvc, paySvc, notifier)

	return &fixture{
		db:       db,
		notifier: notifier,
		gateway:  gateway,
		orderSvc: orderSvc,
		paySvc:   paySvc,
		hookSvc:  hookSvc,
		rfdSvc:   rfdSvc,
		secret:   cfg.Secret,
	}
}

// signedNotification 按网关签名规则补上 signature
func (f *fixture) signedNotification(n *Notification) *Notification {
	n.Signature = octo.Sign(n.signedFields(), f.secret)
	return n
}
