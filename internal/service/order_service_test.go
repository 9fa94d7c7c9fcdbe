package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nice20235/slippers/internal/datamodels/order"
)

func TestCreateOrderComputesTotalsAndReservesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1 := seedSlipper(t, f.db, 1000, 10)
	s2 := seedSlipper(t, f.db, 500, 10)

	o, err := f.orderSvc.CreateOrder(ctx, 1, []CartItem{
		{SlipperID: s1.ID, Quantity: 2},
		{SlipperID: s2.ID, Quantity: 1},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, int64(2500), o.TotalAmount)
	assert.NotEmpty(t, o.Code)
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(1000), o.Items[0].UnitPrice)
	assert.Equal(t, int64(2000), o.Items[0].TotalPrice)

	// 库存已预留
	assert.Equal(t, int64(8), slipperStock(t, f.db, s1.ID))
	assert.Equal(t, int64(9), slipperStock(t, f.db, s2.ID))
}

func TestCreateOrderInsufficientStockIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1 := seedSlipper(t, f.db, 1000, 10)
	s2 := seedSlipper(t, f.db, 500, 1)

	_, err := f.orderSvc.CreateOrder(ctx, 1, []CartItem{
		{SlipperID: s1.ID, Quantity: 2},
		{SlipperID: s2.ID, Quantity: 5},
	}, "")
	require.ErrorIs(t, err, order.ErrInsufficientStock)

	var ise *order.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, s2.ID, ise.SlipperID)
	assert.Equal(t, int64(5), ise.Requested)
	assert.Equal(t, int64(1), ise.Available)

	// 第一件的扣减必须回滚
	assert.Equal(t, int64(10), slipperStock(t, f.db, s1.ID))
	assert.Equal(t, int64(1), slipperStock(t, f.db, s2.ID))

	var count int64
	require.NoError(t, f.db.Model(&order.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateOrderRejectsEmptyAndInvalidItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orderSvc.CreateOrder(ctx, 1, nil, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orderSvc.CreateOrder(ctx, 1, []CartItem{{SlipperID: 1, Quantity: 0}}, "")
	assert.ErrorIs(t, err, ErrValidation)

	// 不存在的商品
	_, err = f.orderSvc.CreateOrder(ctx, 1, []CartItem{{SlipperID: 9999, Quantity: 1}}, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateOrderIdempotencyKeyReturnsSameOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := seedSlipper(t, f.db, 1000, 5)
	items := []CartItem{{SlipperID: s.ID, Quantity: 2}}

	first, err := f.orderSvc.CreateOrder(ctx, 7, items, "retry-key-1")
	require.NoError(t, err)
	second, err := f.orderSvc.CreateOrder(ctx, 7, items, "retry-key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// 库存只扣了一次
	assert.Equal(t, int64(3), slipperStock(t, f.db, s.ID))

	// 不同用户用同一个键，各算各的
	other, err := f.orderSvc.CreateOrder(ctx, 8, items, "retry-key-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestMarkPaidTxRequiresPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := seedSlipper(t, f.db, 1000, 5)
	o, err := f.orderSvc.CreateOrder(ctx, 1, []CartItem{{SlipperID: s.ID, Quantity: 1}}, "")
	require.NoError(t, err)

	require.NoError(t, f.orderSvc.MarkPaidTx(f.db, o.ID, 11))

	got, err := f.orderSvc.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, int64(11), *got.PaymentID)

	// 已经 PAID，再标记要报非 PENDING
	err = f.orderSvc.MarkPaidTx(f.db, o.ID, 12)
	assert.ErrorIs(t, err, order.ErrOrderNotPending)
}

func TestMarkRefundedTxRequiresPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := seedSlipper(t, f.db, 1000, 5)
	o, err := f.orderSvc.CreateOrder(ctx, 1, []CartItem{{SlipperID: s.ID, Quantity: 1}}, "")
	require.NoError(t, err)

	err = f.orderSvc.MarkRefundedTx(f.db, o.ID)
	assert.ErrorIs(t, err, order.ErrOrderNotPaid)

	require.NoError(t, f.orderSvc.MarkPaidTx(f.db, o.ID, 1))
	require.NoError(t, f.orderSvc.MarkRefundedTx(f.db, o.ID))

	got, err := f.orderSvc.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, got.Status)
}

func TestCancelExpiredRestocksAndIsRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := seedSlipper(t, f.db, 1000, 5)
	o, err := f.orderSvc.CreateOrder(ctx, 1, []CartItem{{SlipperID: s.ID, Quantity: 3}}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), slipperStock(t, f.db, s.ID))

	// 负 ttl 让刚建的订单立即算过期
	n, err := f.orderSvc.CancelExpired(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(5), slipperStock(t, f.db, s.ID))

	got, err := f.orderSvc.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	// 重放不会二次回补
	n, err = f.orderSvc.CancelExpired(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(5), slipperStock(t, f.db, s.ID))
}

func TestCancelExpiredSkipsPaidOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := seedSlipper(t, f.db, 1000, 5)
	o, err := f.orderSvc.CreateOrder(ctx, 1, []CartItem{{SlipperID: s.ID, Quantity: 2}}, "")
	require.NoError(t, err)
	require.NoError(t, f.orderSvc.MarkPaidTx(f.db, o.ID, 1))

	n, err := f.orderSvc.CancelExpired(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(3), slipperStock(t, f.db, s.ID))
}

func TestSequentialOrdersDrainStockExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := seedSlipper(t, f.db, 1000, 3)

	ok := 0
	for i := 0; i < 5; i++ {
		_, err := f.orderSvc.CreateOrder(ctx, int64(i+1), []CartItem{{SlipperID: s.ID, Quantity: 1}}, "")
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, order.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, int64(0), slipperStock(t, f.db, s.ID))
}

func TestConcurrentCheckoutsLastUnitExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 内存 sqlite 并发写事务会直接报 busy，把连接池压到 1 让两个
	// goroutine 在条件更新上排队，等价于生产库的行级锁行为
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := seedSlipper(t, f.db, 1000, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.orderSvc.CreateOrder(ctx, int64(i+1), []CartItem{{SlipperID: s.ID, Quantity: 1}}, "")
		}(i)
	}
	close(start)
	wg.Wait()

	ok, insufficient := 0, 0
	for _, e := range errs {
		switch {
		case e == nil:
			ok++
		case errors.Is(e, order.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected checkout error: %v", e)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(0), slipperStock(t, f.db, s.ID))
}
