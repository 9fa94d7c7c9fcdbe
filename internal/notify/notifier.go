package notify

import (
	"context"
	"encoding/json"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/nice20235/slippers/internal/datamodels/order"
)

const (
	// redisStockChannel 目录/缓存侧订阅这个频道做失效
	redisStockChannel = "cache:invalidate:slipper"
	redisOrderChannel = "cache:invalidate:order"
	// orderEventQueue 持久化队列，目录协作方消费订单事件
	orderEventQueue = "order_events"
)

// Notifier 引擎每次提交后对外发出的通知。实现方只负责广播，缓存失效由订阅方自己做。
type Notifier interface {
	StockChanged(ctx context.Context, slipperID int64)
	OrderStatusChanged(ctx context.Context, orderID int64, code string, status order.Status)
}

// StockEvent 库存变化事件
type StockEvent struct {
	SlipperID int64     `json:"slipper_id"`
	At        time.Time `json:"at"`
}

// OrderEvent 订单状态变化事件
type OrderEvent struct {
	OrderID int64        `json:"order_id"`
	Code    string       `json:"code"`
	Status  order.Status `json:"status"`
	At      time.Time    `json:"at"`
}

// Publisher 通过 Redis PUBLISH + RabbitMQ 持久化队列双路广播。
// 发布失败只记日志，绝不让业务操作跟着失败。
type Publisher struct {
	redis radix.Client
	mq    *amqp.Connection
	log   *zap.Logger
}

// NewPublisher 创建通知发布器，redis / mq 允许为 nil（对应通道被关掉）
func NewPublisher(redis radix.Client, mq *amqp.Connection) *Publisher {
	return &Publisher{
		redis: redis,
		mq:    mq,
		log:   zap.L().Named("notify"),
	}
}

func (p *Publisher) publishRedis(channel string, body []byte) {
	if p.redis == nil {
		return
	}
	if err := p.redis.Do(radix.FlatCmd(nil, "PUBLISH", channel, body)); err != nil {
		p.log.Warn("failed to publish redis event", zap.String("channel", channel), zap.Error(err))
	}
}

func (p *Publisher) publishMQ(ctx context.Context, body []byte) {
	if p.mq == nil {
		return
	}
	ch, err := p.mq.Channel()
	if err != nil {
		p.log.Warn("failed to open mq channel", zap.Error(err))
		return
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(orderEventQueue, true, false, false, false, nil); err != nil {
		p.log.Warn("failed to declare queue", zap.Error(err))
		return
	}
	err = ch.PublishWithContext(ctx, "", orderEventQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		p.log.Warn("failed to publish mq event", zap.Error(err))
	}
}

// StockChanged 广播某商品库存发生变化
func (p *Publisher) StockChanged(ctx context.Context, slipperID int64) {
	body, _ := json.Marshal(&StockEvent{SlipperID: slipperID, At: time.Now()})
	p.publishRedis(redisStockChannel, body)
}

// OrderStatusChanged 广播订单状态变化
func (p *Publisher) OrderStatusChanged(ctx context.Context, orderID int64, code string, status order.Status) {
	body, _ := json.Marshal(&OrderEvent{OrderID: orderID, Code: code, Status: status, At: time.Now()})
	p.publishRedis(redisOrderChannel, body)
	p.publishMQ(ctx, body)
}
