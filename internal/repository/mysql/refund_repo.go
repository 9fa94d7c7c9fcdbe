package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nice20235/slippers/internal/datamodels/refund"
)

type refundRepo struct {
	db *gorm.DB
}

// NewRefundRepository 创建退款仓储
func NewRefundRepository(db *gorm.DB) refund.Repository {
	return &refundRepo{db: db}
}

func (r *refundRepo) CreateRequest(ctx context.Context, req *refund.Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *refundRepo) GetRequestByID(ctx context.Context, id int64) (*refund.Request, error) {
	var req refund.Request
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, refund.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *refundRepo) ListRequests(ctx context.Context, status refund.RequestStatus, limit int) ([]*refund.Request, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Model(&refund.Request{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var list []*refund.Request
	if err := query.Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *refundRepo) SumCompletedByPaymentID(ctx context.Context, paymentID int64) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&refund.Refund{}).
		Where("payment_id = ? AND status = ?", paymentID, refund.StatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *refundRepo) ListRefundsByPaymentID(ctx context.Context, paymentID int64) ([]*refund.Refund, error) {
	var list []*refund.Refund
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
