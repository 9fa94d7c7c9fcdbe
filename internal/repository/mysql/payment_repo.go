package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nice20235/slippers/internal/datamodels/payment"
)

type paymentRepo struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓储
func NewPaymentRepository(db *gorm.DB) payment.Repository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) GetByShopTransactionID(ctx context.Context, shopTxID string) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).
		Where("shop_transaction_id = ?", shopTxID).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) GetPaidByOrderID(ctx context.Context, orderID int64) (*payment.Payment, error) {
	var p payment.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, payment.StatusPaid).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) CountByOrderID(ctx context.Context, orderID int64) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&payment.Payment{}).
		Where("order_id = ?", orderID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *paymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}
