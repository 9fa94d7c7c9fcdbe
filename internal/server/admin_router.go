package server

import (
	"strings"

	"github.com/kataras/iris/v12"

	"github.com/nice20235/slippers/internal/auth"
	"github.com/nice20235/slippers/internal/config"
	"github.com/nice20235/slippers/internal/datamodels/refund"
	"github.com/nice20235/slippers/internal/gateway/octo"
	"github.com/nice20235/slippers/internal/infra/mq"
	"github.com/nice20235/slippers/internal/infra/redis"
	"github.com/nice20235/slippers/internal/notify"
	"github.com/nice20235/slippers/internal/repository/mysql"
	"github.com/nice20235/slippers/internal/service"
)

// decideRequest 审批请求体
type decideRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note" validate:"omitempty,max=255"`
}

// adminMiddleware 管理端鉴权：token 合法还不够，落库核一次 is_admin
func adminMiddleware(cfg *config.Config, userSvc *service.UserService) iris.Handler {
	return func(ctx iris.Context) {
		token := strings.TrimPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "missing token"})
			return
		}
		claims, err := auth.ParseToken(&cfg.JWT, token)
		if err != nil {
			ctx.StopWithJSON(401, iris.Map{"code": 401, "msg": "invalid token"})
			return
		}
		ok, err := userSvc.IsAdmin(ctx.Request().Context(), claims.UserID)
		if err != nil || !ok {
			ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": "admin only"})
			return
		}
		ctx.Values().Set("user_id", claims.UserID)
		ctx.Values().Set("username", claims.Username)
		ctx.Next()
	}
}

// RegisterAdminRoutes 注册后台管理端的 HTTP 路由
// 端口通常是 8081，与前台 Web 服务分离。
func RegisterAdminRoutes(app *iris.Application, cfg *config.Config) {
	// 初始化基础设施
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)
	mqConn := mq.Init(&cfg.RabbitMQ)

	// 仓储与服务
	orderRepo := mysql.NewOrderRepository(db)
	paymentRepo := mysql.NewPaymentRepository(db)
	refundRepo := mysql.NewRefundRepository(db)
	userRepo := mysql.NewUserRepository(db)

	notifier := notify.NewPublisher(redisClient, mqConn)
	gateway := octo.NewClient(&cfg.Octo)
	orderSvc := service.NewOrderService(db, orderRepo, notifier)
	paySvc := service.NewPaymentService(db, orderRepo, paymentRepo, gateway, &cfg.Octo)
	refundSvc := service.NewRefundService(db, orderRepo, paymentRepo, refundRepo, orderSvc, paySvc, notifier)
	userSvc := service.NewUserService(userRepo)

	api := app.Party("/api/admin", adminMiddleware(cfg, userSvc))

	// ---------- 退款管理 ----------

	// 退款申请列表，?status= 过滤
	api.Get("/refunds", func(ctx iris.Context) {
		status := refund.RequestStatus(ctx.URLParam("status"))
		limit := ctx.URLParamIntDefault("limit", 50)
		list, err := refundSvc.ListRequests(ctx.Request().Context(), status, limit)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	// 审批退款申请
	api.Post("/refunds/{id:uint64}/decide", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		var req decideRequest
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := validate.Struct(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		adminID := ctx.Values().GetInt64Default("user_id", 0)
		r, err := refundSvc.Decide(ctx.Request().Context(), adminID, int64(id), req.Approve, req.Note)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": r})
	})

	// 执行已批准的退款
	api.Post("/refunds/{id:uint64}/process", func(ctx iris.Context) {
		id, _ := ctx.Params().GetUint64("id")
		adminID := ctx.Values().GetInt64Default("user_id", 0)
		r, err := refundSvc.Process(ctx.Request().Context(), adminID, int64(id))
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": r})
	})

	// ---------- 运行统计 ----------

	api.Get("/stats", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "data": service.GetMonitor().GetStats()})
	})
}
