package service

import (
	"sync"
	"time"
)

// Monitor 监控服务，用于统计订单、回调和退款指标
type Monitor struct {
	mu sync.RWMutex

	// 订单统计
	OrdersCreated   int64
	OrdersCancelled int64

	// 网关统计
	GatewayErrors int64

	// 回调统计
	WebhooksReceived         int64
	WebhooksApplied          int64
	WebhookDuplicates        int64
	WebhookInvalidSignatures int64
	WebhookUnknownTx         int64

	// 退款统计
	RefundsProcessed int64
	RefundedAmount   int64

	// 时间统计
	LastOrderTime        time.Time
	LastGatewayError     time.Time
	LastWebhookTime      time.Time
	LastRefundTime       time.Time
}

var globalMonitor = &Monitor{}

// GetMonitor 获取全局监控实例
func GetMonitor() *Monitor {
	return globalMonitor
}

// RecordOrderCreated 记录下单成功
func (m *Monitor) RecordOrderCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrdersCreated++
	m.LastOrderTime = time.Now()
}

// RecordOrderCancelled 记录过期订单被清理
func (m *Monitor) RecordOrderCancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrdersCancelled++
}

// RecordGatewayError 记录网关调用失败
func (m *Monitor) RecordGatewayError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GatewayErrors++
	m.LastGatewayError = time.Now()
}

// RecordWebhookReceived 记录收到回调
func (m *Monitor) RecordWebhookReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhooksReceived++
	m.LastWebhookTime = time.Now()
}

// RecordWebhookApplied 记录回调产生了状态迁移
func (m *Monitor) RecordWebhookApplied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhooksApplied++
}

// RecordWebhookDuplicate 记录重复投递
func (m *Monitor) RecordWebhookDuplicate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookDuplicates++
}

// RecordWebhookInvalidSignature 记录验签失败
func (m *Monitor) RecordWebhookInvalidSignature() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookInvalidSignatures++
}

// RecordWebhookUnknownTx 记录未知交易号回调
func (m *Monitor) RecordWebhookUnknownTx() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhookUnknownTx++
}

// RecordRefundProcessed 记录退款执行成功
func (m *Monitor) RecordRefundProcessed(amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefundsProcessed++
	m.RefundedAmount += amount
	m.LastRefundTime = time.Now()
}

// GetStats 获取统计信息
func (m *Monitor) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	applyRate := float64(0)
	if m.WebhooksReceived > 0 {
		applyRate = float64(m.WebhooksApplied) / float64(m.WebhooksReceived) * 100
	}

	return map[string]interface{}{
		"orders": map[string]interface{}{
			"created":   m.OrdersCreated,
			"cancelled": m.OrdersCancelled,
		},
		"gateway": map[string]interface{}{
			"errors": m.GatewayErrors,
		},
		"webhooks": map[string]interface{}{
			"received":           m.WebhooksReceived,
			"applied":            m.WebhooksApplied,
			"apply_rate":         applyRate,
			"duplicates":         m.WebhookDuplicates,
			"invalid_signatures": m.WebhookInvalidSignatures,
			"unknown_tx":         m.WebhookUnknownTx,
		},
		"refunds": map[string]interface{}{
			"processed":     m.RefundsProcessed,
			"amount_total":  m.RefundedAmount,
		},
		"last_events": map[string]interface{}{
			"order":         m.LastOrderTime,
			"gateway_error": m.LastGatewayError,
			"webhook":       m.LastWebhookTime,
			"refund":        m.LastRefundTime,
		},
	}
}

// Reset 重置统计（用于测试或定期清理）
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrdersCreated = 0
	m.OrdersCancelled = 0
	m.GatewayErrors = 0
	m.WebhooksReceived = 0
	m.WebhooksApplied = 0
	m.WebhookDuplicates = 0
	m.WebhookInvalidSignatures = 0
	m.WebhookUnknownTx = 0
	m.RefundsProcessed = 0
	m.RefundedAmount = 0
}
