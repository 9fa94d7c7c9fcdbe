package refund

import (
	"context"
	"errors"
	"time"
)

// RequestStatus 退款申请状态：requested -> approved -> processing -> processed，
// rejected 为终态分支。processing 表示正在打网关，用来挡住并发重复执行。
type RequestStatus string

const (
	RequestStatusRequested  RequestStatus = "requested"
	RequestStatusApproved   RequestStatus = "approved"
	RequestStatusRejected   RequestStatus = "rejected"
	RequestStatusProcessing RequestStatus = "processing"
	RequestStatusProcessed  RequestStatus = "processed"
)

// Status 退款执行状态。退款流水只在网关退成之后才写，所以生下来就是 completed。
type Status string

const (
	StatusCompleted Status = "completed"
)

// Request 用户发起的退款申请，需管理员审批后执行
type Request struct {
	ID        int64  `gorm:"primaryKey"`
	OrderID   int64  `gorm:"index;not null"`
	PaymentID int64  `gorm:"index;not null"`
	UserID    int64  `gorm:"index;not null"`
	AdminID   *int64 `gorm:"index"`
	Amount    int64  `gorm:"not null"` // 单位：tiyin
	Reason    string `gorm:"size:255"`
	Note      string `gorm:"size:255"` // 审批备注
	Status    RequestStatus `gorm:"size:16;index;not null"`
	DecidedAt   *time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Refund 审批通过后的实际退款。同一支付上 completed 退款之和不允许超过支付金额。
type Refund struct {
	ID        int64  `gorm:"primaryKey"`
	PaymentID int64  `gorm:"index;not null"`
	OrderID   *int64 `gorm:"index"` // 保留订单引用，订单数据变动也能追溯
	RequestID int64  `gorm:"index;not null"`
	RequestedBy int64 `gorm:"not null"`
	ProcessedBy int64 `gorm:"not null"`
	Amount      int64 `gorm:"not null"`
	Currency    string `gorm:"size:8;not null"`
	// ShopRefundID 我方生成的网关退款号
	ShopRefundID string `gorm:"size:36;uniqueIndex;not null"`
	// Raw 网关退款应答原文
	Raw       string `gorm:"type:text"`
	Status    Status `gorm:"size:16;index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrRequestNotFound 退款申请不存在
	ErrRequestNotFound = errors.New("refund request not found")
	// ErrAmountExceedsPaid 申请金额超过支付金额减去已完成退款
	ErrAmountExceedsPaid = errors.New("refund amount exceeds refundable balance")
	// ErrAlreadyDecided 申请已被审批过，不能再次审批
	ErrAlreadyDecided = errors.New("refund request already decided")
	// ErrRequestNotApproved 只有 approved 的申请才能执行
	ErrRequestNotApproved = errors.New("refund request is not approved")
	// ErrAlreadyProcessed 申请已被并发执行过
	ErrAlreadyProcessed = errors.New("refund request already processed")
)

// Repository 退款仓储接口
type Repository interface {
	CreateRequest(ctx context.Context, r *Request) error
	GetRequestByID(ctx context.Context, id int64) (*Request, error)
	ListRequests(ctx context.Context, status RequestStatus, limit int) ([]*Request, error)
	// SumCompletedByPaymentID 某支付上已完成退款的金额合计
	SumCompletedByPaymentID(ctx context.Context, paymentID int64) (int64, error)
	ListRefundsByPaymentID(ctx context.Context, paymentID int64) ([]*Refund, error)
}
