package octo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nice20235/slippers/internal/config"
)

var (
	// ErrUnavailable 网络错误 / 非 2xx / 响应不可解析，可重试
	ErrUnavailable = errors.New("octo gateway unavailable")
	// ErrRejected 网关返回了结构化错误
	ErrRejected = errors.New("octo gateway rejected request")
	// ErrRefundFailed 退款调用失败，本地退款状态不动，由调用方重试或升级
	ErrRefundFailed = errors.New("octo refund failed")
)

// APIError 网关应答里的业务错误（error != 0）
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("octo error %d: %s", e.Code, e.Message)
}

// UserData 可选的用户信息块，全空则不上送
type UserData struct {
	Name  string `json:"user_name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Empty 三个字段都为空
func (u *UserData) Empty() bool {
	return u == nil || (u.Name == "" && u.Phone == "" && u.Email == "")
}

// CreatePaymentRequest 创建支付会话的入参
type CreatePaymentRequest struct {
	ShopTransactionID string
	Amount            int64 // tiyin
	Currency          string
	Description       string
	UserData          *UserData
}

// PrepareResult prepare_payment 成功应答
type PrepareResult struct {
	PayURL      string
	PaymentUUID string
	Raw         json.RawMessage
}

// RefundResult refund 成功应答
type RefundResult struct {
	ShopRefundID string
	Raw          json.RawMessage
}

// Client OCTO 网关 HTTP 客户端
type Client struct {
	cfg  *config.OctoConfig
	http *http.Client
	log  *zap.Logger
}

// NewClient 创建网关客户端，出站请求带超时
func NewClient(cfg *config.OctoConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout()},
		log:  zap.L().Named("octo"),
	}
}

// apiResponse 网关通用应答外壳。error==0 表示成功，支付字段可能在顶层也可能在 data 里。
type apiResponse struct {
	Error      int                    `json:"error"`
	ErrMessage string                 `json:"errMessage"`
	PayURL     string                 `json:"octo_pay_url"`
	UUID       string                 `json:"octo_payment_UUID"`
	Data       map[string]interface{} `json:"data"`
}

func (r *apiResponse) payURL() string {
	if r.PayURL != "" {
		return r.PayURL
	}
	if v, ok := r.Data["octo_pay_url"].(string); ok {
		return v
	}
	return ""
}

func (r *apiResponse) paymentUUID() string {
	if r.UUID != "" {
		return r.UUID
	}
	for _, k := range []string{"octo_payment_UUID", "octo_payment_uuid", "payment_uuid"} {
		if v, ok := r.Data[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}) (*apiResponse, json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// 超时不代表网关侧失败，后续靠回调或人工查单对账
		c.log.Warn("octo request failed", zap.String("path", path), zap.Error(err))
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid json response", ErrUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("octo non-2xx response", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, raw, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, raw, fmt.Errorf("%w: invalid json response", ErrUnavailable)
	}
	return &out, raw, nil
}

// CreatePayment 调用 prepare_payment，拿托管支付页 URL。
// user_data 全空时整块省略。
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PrepareResult, error) {
	payload := map[string]interface{}{
		"octo_shop_id":        c.cfg.ShopID,
		"octo_secret":         c.cfg.Secret,
		"shop_transaction_id": req.ShopTransactionID,
		"auto_capture":        c.cfg.AutoCapture,
		"init_time":           time.Now().Format("2006-01-02 15:04:05"),
		"test":                c.cfg.Test,
		"total_sum":           req.Amount,
		"currency":            req.Currency,
		"description":         req.Description,
		"return_url":          c.cfg.ReturnURL,
		"notify_url":          c.cfg.NotifyURL,
		"language":            c.cfg.Language,
	}
	if !req.UserData.Empty() {
		payload["user_data"] = req.UserData
	}

	out, raw, err := c.post(ctx, "/prepare_payment", payload)
	if err != nil {
		return nil, err
	}
	if out.Error != 0 {
		return nil, fmt.Errorf("%w: %w", ErrRejected, &APIError{Code: out.Error, Message: out.ErrMessage})
	}
	res := &PrepareResult{
		PayURL:      out.payURL(),
		PaymentUUID: out.paymentUUID(),
		Raw:         raw,
	}
	if res.PayURL == "" {
		return nil, fmt.Errorf("%w: missing octo_pay_url", ErrUnavailable)
	}
	return res, nil
}

// Refund 按网关支付 UUID 发起退款
func (c *Client) Refund(ctx context.Context, paymentUUID string, amount int64) (*RefundResult, error) {
	shopRefundID := uuid.NewString()
	payload := map[string]interface{}{
		"octo_shop_id":      c.cfg.ShopID,
		"octo_secret":       c.cfg.Secret,
		"shop_refund_id":    shopRefundID,
		"octo_payment_UUID": paymentUUID,
		"amount":            amount,
	}

	out, raw, err := c.post(ctx, "/refund", payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefundFailed, err)
	}
	if out.Error != 0 {
		return nil, fmt.Errorf("%w: %w", ErrRefundFailed, &APIError{Code: out.Error, Message: out.ErrMessage})
	}
	return &RefundResult{ShopRefundID: shopRefundID, Raw: raw}, nil
}
