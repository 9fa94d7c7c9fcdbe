package server

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"

	"github.com/nice20235/slippers/internal/auth"
	"github.com/nice20235/slippers/internal/config"
	"github.com/nice20235/slippers/internal/gateway/octo"
	"github.com/nice20235/slippers/internal/infra/mq"
	"github.com/nice20235/slippers/internal/infra/redis"
	"github.com/nice20235/slippers/internal/middleware"
	"github.com/nice20235/slippers/internal/notify"
	"github.com/nice20235/slippers/internal/repository/mysql"
	"github.com/nice20235/slippers/internal/service"
)

var validate = validator.New()

// createOrderRequest 下单请求体
type createOrderRequest struct {
	Items []struct {
		SlipperID int64 `json:"slipper_id" validate:"required,gt=0"`
		Quantity  int64 `json:"quantity" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
}

// createPaymentRequest 发起支付请求体，用户信息可选
type createPaymentRequest struct {
	Name  string `json:"name" validate:"omitempty,max=100"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
	Email string `json:"email" validate:"omitempty,email"`
}

// refundRequestBody 退款申请请求体，amount 为 0 表示全额
type refundRequestBody struct {
	OrderID int64  `json:"order_id" validate:"required,gt=0"`
	Amount  int64  `json:"amount" validate:"gte=0"`
	Reason  string `json:"reason" validate:"omitempty,max=255"`
}

// authMiddleware 解析 Bearer token，claims 先查 redis 缓存再落验签
func authMiddleware(cfg *config.Config, cache *auth.TokenCache) iris.Handler {
	return func(ctx iris.Context) {
		token := strings.TrimPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "missing token"})
			return
		}
		claims, hit, _ := cache.Get(ctx.Request().Context(), token)
		if !hit {
			var err error
			claims, err = auth.ParseToken(&cfg.JWT, token)
			if err != nil {
				ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "invalid token"})
				return
			}
			_ = cache.Set(ctx.Request().Context(), token, claims)
		}
		ctx.Values().Set("user_id", claims.UserID)
		ctx.Values().Set("username", claims.Username)
		ctx.Values().Set("is_admin", claims.IsAdmin)
		ctx.Next()
	}
}

// RegisterRoutes 注册所有 HTTP 路由
func RegisterRoutes(app *iris.Application, cfg *config.Config) {
	// 初始化基础设施
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)

	// 仓储与服务
	orderRepo := mysql.NewOrderRepository(db)
	paymentRepo := mysql.NewPaymentRepository(db)

	notifier := notify.NewPublisher(redisClient, mqConn)
	gateway := octo.NewClient(&cfg.Octo)
	orderSvc := service.NewOrderService(db, orderRepo, notifier)
	paySvc := service.NewPaymentService(db, orderRepo, paymentRepo, gateway, &cfg.Octo)
	webhookSvc := service.NewWebhookService(db, paymentRepo, orderSvc, notifier, cfg.Octo.Secret)
	refundSvc := service.NewRefundService(db, orderRepo, paymentRepo,
		mysql.NewRefundRepository(db), orderSvc, paySvc, notifier)

	tokenCache := auth.NewTokenCache(redisClient, time.Duration(cfg.JWT.TokenCacheTTLSeconds)*time.Second)

	api := app.Party("/api")

	// 健康检查
	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{
			"code": 0,
			"msg":  "ok",
		})
	})

	// 网关回调：验签在服务层做，所有被接受的回调回固定 ACK
	api.Post("/octo/notify", func(ctx iris.Context) {
		var n service.Notification
		if err := ctx.ReadJSON(&n); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "bad payload"})
			return
		}
		if err := webhookSvc.HandleNotification(ctx.Request().Context(), &n); err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"ok": true})
	})

	// 需要登录的接口
	authAPI := api.Party("/", authMiddleware(cfg, tokenCache))

	// 下单。Idempotency-Key 头可选，带了就保证重试只开一单。
	authAPI.Post("/orders", middleware.CheckoutRateLimit(), func(ctx iris.Context) {
		var req createOrderRequest
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := validate.Struct(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		items := make([]service.CartItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, service.CartItem{SlipperID: it.SlipperID, Quantity: it.Quantity})
		}
		userID := ctx.Values().GetInt64Default("user_id", 0)
		idemKey := ctx.GetHeader("Idempotency-Key")
		o, err := orderSvc.CreateOrder(ctx.Request().Context(), userID, items, idemKey)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": o})
	})

	// 订单列表
	authAPI.Get("/orders", func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default("user_id", 0)
		list, err := orderSvc.ListByUser(ctx.Request().Context(), userID)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	// 发起支付，返回托管收银台地址
	authAPI.Post("/orders/{id:uint64}/payment", func(ctx iris.Context) {
		oid, _ := ctx.Params().GetUint64("id")
		userID := ctx.Values().GetInt64Default("user_id", 0)

		o, err := orderSvc.GetByID(ctx.Request().Context(), int64(oid))
		if err != nil || o.UserID != userID {
			ctx.StopWithJSON(404, iris.Map{"code": 404, "msg": "not found"})
			return
		}

		var req createPaymentRequest
		if ctx.GetContentLength() > 0 {
			if err := ctx.ReadJSON(&req); err != nil {
				ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
				return
			}
			if err := validate.Struct(&req); err != nil {
				ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
				return
			}
		}
		ud := &octo.UserData{Name: req.Name, Phone: req.Phone, Email: req.Email}
		payURL, p, err := paySvc.CreatePaymentSession(ctx.Request().Context(), int64(oid), ud)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": iris.Map{
			"pay_url":             payURL,
			"payment_id":          p.ID,
			"shop_transaction_id": p.ShopTransactionID,
		}})
	})

	// 退款申请
	authAPI.Post("/refunds", func(ctx iris.Context) {
		var req refundRequestBody
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := validate.Struct(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		userID := ctx.Values().GetInt64Default("user_id", 0)
		r, err := refundSvc.RequestRefund(ctx.Request().Context(), userID, req.OrderID, req.Amount, req.Reason)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": r})
	})
}
