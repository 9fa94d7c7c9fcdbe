package server

import (
	"errors"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/nice20235/slippers/internal/datamodels/order"
	"github.com/nice20235/slippers/internal/datamodels/payment"
	"github.com/nice20235/slippers/internal/datamodels/refund"
	"github.com/nice20235/slippers/internal/gateway/octo"
	"github.com/nice20235/slippers/internal/service"
)

// httpStatus 把业务错误翻译成 HTTP 状态码和对外展示的 msg。
// 网关内部细节不外漏，具体原因走日志。
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return 400, err.Error()
	case errors.Is(err, payment.ErrInvalidSignature):
		return 401, "invalid signature"
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, refund.ErrRequestNotFound):
		return 404, "not found"
	case errors.Is(err, payment.ErrUnknownTransaction):
		return 404, "unknown transaction"
	case errors.Is(err, order.ErrInsufficientStock):
		return 409, err.Error()
	case errors.Is(err, order.ErrOrderNotPending),
		errors.Is(err, order.ErrOrderNotPaid),
		errors.Is(err, refund.ErrAmountExceedsPaid),
		errors.Is(err, refund.ErrAlreadyDecided),
		errors.Is(err, refund.ErrRequestNotApproved),
		errors.Is(err, refund.ErrAlreadyProcessed):
		return 409, err.Error()
	case errors.Is(err, octo.ErrUnavailable),
		errors.Is(err, octo.ErrRejected),
		errors.Is(err, octo.ErrRefundFailed):
		return 502, "payment gateway error"
	case errors.Is(err, payment.ErrInconsistentState):
		return 500, "inconsistent payment state"
	}
	return 500, "internal error"
}

// fail 统一的错误应答
func fail(ctx iris.Context, err error) {
	code, msg := httpStatus(err)
	if code >= 500 {
		zap.L().Error("request failed",
			zap.String("path", ctx.Path()),
			zap.Error(err))
	}
	ctx.StopWithJSON(code, iris.Map{"code": code, "msg": msg})
}
