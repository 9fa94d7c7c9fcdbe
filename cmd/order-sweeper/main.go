package main

import (
	"context"
	"log"
	"time"

	"github.com/nice20235/slippers/internal/config"
	"github.com/nice20235/slippers/internal/infra/mq"
	"github.com/nice20235/slippers/internal/infra/redis"
	"github.com/nice20235/slippers/internal/logger"
	"github.com/nice20235/slippers/internal/notify"
	"github.com/nice20235/slippers/internal/repository/mysql"
	"github.com/nice20235/slippers/internal/service"
)

// 过期订单清理服务：把超时未支付的 PENDING 订单取消并回补库存。
// 可以和 web 服务并跑多实例，条件更新保证不会重复回补。
func main() {
	cfg, err := config.Load("configs")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(false)

	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)

	orderRepo := mysql.NewOrderRepository(db)
	notifier := notify.NewPublisher(redisClient, mqConn)
	orderSvc := service.NewOrderService(db, orderRepo, notifier)

	interval := cfg.Sweep.Interval()
	ttl := cfg.Sweep.OrderTTL()
	log.Printf("order sweeper started, interval=%v ttl=%v", interval, ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep(orderSvc, ttl)
	for range ticker.C {
		sweep(orderSvc, ttl)
	}
}

func sweep(orderSvc *service.OrderService, ttl time.Duration) {
	n, err := orderSvc.CancelExpired(context.Background(), ttl)
	if err != nil {
		log.Printf("sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("cancelled %d expired orders", n)
	}
}
