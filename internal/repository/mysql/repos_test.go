package mysql

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/nice20235/slippers/internal/datamodels/order"
	"github.com/nice20235/slippers/internal/datamodels/payment"
	"github.com/nice20235/slippers/internal/datamodels/refund"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         glogger.Default.LogMode(glogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestOrderIdempotencyKeyUniquePerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	key := "k-1"
	first := &order.Order{Code: uuid.NewString(), UserID: 1, TotalAmount: 100,
		Status: order.StatusPending, IdempotencyKey: &key}
	require.NoError(t, db.Create(first).Error)

	// 同用户同键撞唯一索引
	dup := &order.Order{Code: uuid.NewString(), UserID: 1, TotalAmount: 100,
		Status: order.StatusPending, IdempotencyKey: &key}
	err := db.Create(dup).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// 不同用户同键没问题
	other := &order.Order{Code: uuid.NewString(), UserID: 2, TotalAmount: 100,
		Status: order.StatusPending, IdempotencyKey: &key}
	require.NoError(t, db.Create(other).Error)

	// 不带键的订单随便建多少个
	for i := 0; i < 3; i++ {
		o := &order.Order{Code: uuid.NewString(), UserID: 1, TotalAmount: 50, Status: order.StatusPending}
		require.NoError(t, db.Create(o).Error)
	}

	got, err := repo.GetByIdempotencyKey(ctx, 1, key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = repo.GetByIdempotencyKey(ctx, 3, key)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepoLoadsItems(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	o := &order.Order{
		Code: uuid.NewString(), UserID: 5, TotalAmount: 300, Status: order.StatusPending,
		Items: []order.OrderItem{
			{SlipperID: 1, Quantity: 2, UnitPrice: 100, TotalPrice: 200},
			{SlipperID: 2, Quantity: 1, UnitPrice: 100, TotalPrice: 100},
		},
	}
	require.NoError(t, db.Create(o).Error)

	got, err := repo.GetByCode(ctx, o.Code)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)

	list, err := repo.ListByUser(ctx, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Items, 2)
}

func TestListExpiredPendingFiltersByStatusAndAge(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	old := &order.Order{Code: uuid.NewString(), UserID: 1, Status: order.StatusPending}
	require.NoError(t, db.Create(old).Error)
	require.NoError(t, db.Model(old).UpdateColumn("created_at", time.Now().Add(-time.Hour)).Error)

	paid := &order.Order{Code: uuid.NewString(), UserID: 1, Status: order.StatusPaid}
	require.NoError(t, db.Create(paid).Error)
	require.NoError(t, db.Model(paid).UpdateColumn("created_at", time.Now().Add(-time.Hour)).Error)

	fresh := &order.Order{Code: uuid.NewString(), UserID: 1, Status: order.StatusPending}
	require.NoError(t, db.Create(fresh).Error)

	list, err := repo.ListExpiredPending(ctx, time.Now().Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, old.ID, list[0].ID)
}

func TestPaymentRepoLookups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewPaymentRepository(db)

	orderID := int64(7)
	p1 := &payment.Payment{OrderID: &orderID, ShopTransactionID: "tx-1", Amount: 100,
		Currency: "UZS", Status: payment.StatusFailed}
	require.NoError(t, repo.Create(ctx, p1))
	p2 := &payment.Payment{OrderID: &orderID, ShopTransactionID: "tx-2", Amount: 100,
		Currency: "UZS", Status: payment.StatusPaid}
	require.NoError(t, repo.Create(ctx, p2))

	got, err := repo.GetByShopTransactionID(ctx, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, p2.ID, got.ID)

	_, err = repo.GetByShopTransactionID(ctx, "tx-404")
	assert.ErrorIs(t, err, payment.ErrNotFound)

	paid, err := repo.GetPaidByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, p2.ID, paid.ID)

	n, err := repo.CountByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// shop_transaction_id 唯一
	dup := &payment.Payment{ShopTransactionID: "tx-1", Amount: 1, Currency: "UZS", Status: payment.StatusCreated}
	assert.ErrorIs(t, repo.Create(ctx, dup), gorm.ErrDuplicatedKey)
}

func TestRefundRepoSumCompleted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRefundRepository(db)

	// 没有退款时合计为 0
	sum, err := repo.SumCompletedByPaymentID(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, sum)

	refunds := []*refund.Refund{
		{PaymentID: 1, RequestID: 1, RequestedBy: 1, ProcessedBy: 9, Amount: 300,
			Currency: "UZS", ShopRefundID: uuid.NewString(), Status: refund.StatusCompleted},
		{PaymentID: 1, RequestID: 2, RequestedBy: 1, ProcessedBy: 9, Amount: 200,
			Currency: "UZS", ShopRefundID: uuid.NewString(), Status: refund.StatusCompleted},
		// 非 completed 的历史脏数据不计入合计
		{PaymentID: 1, RequestID: 3, RequestedBy: 1, ProcessedBy: 9, Amount: 999,
			Currency: "UZS", ShopRefundID: uuid.NewString(), Status: refund.Status("failed")},
		{PaymentID: 2, RequestID: 4, RequestedBy: 1, ProcessedBy: 9, Amount: 50,
			Currency: "UZS", ShopRefundID: uuid.NewString(), Status: refund.StatusCompleted},
	}
	for _, r := range refunds {
		require.NoError(t, db.Create(r).Error)
	}

	sum, err = repo.SumCompletedByPaymentID(ctx, 1)
	require.NoError(t, err)
	// 只算 completed，只算本支付
	assert.Equal(t, int64(500), sum)

	list, err := repo.ListRefundsByPaymentID(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
