package routes

import (
	"net/http"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/services"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// GetBalance returns the caller's withdrawable earnings in one settlement
// currency (?currency=, default DZD).
func GetBalance(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)
	currency := ctx.URLParamDefault("currency", "DZD")

	balance, err := services.NewPayoutService(storage.DB).AvailableBalance(claims.ID, currency)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"available": balance, "currency": currency})
}

type RequestPayoutInput struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Currency string  `json:"currency" validate:"omitempty,oneof=DZD EUR"`
}

func RequestPayout(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input RequestPayoutInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	payout, err := services.NewPayoutService(storage.DB).RequestPayout(claims.ID, input.Amount, input.Currency)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(payout)
}

// GetHostPayouts lists the caller's payout requests, newest first.
func GetHostPayouts(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var payouts []models.Payout
	q := storage.DB.Where("host_id = ?", claims.ID)
	if status := ctx.URLParamDefault("status", ""); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at DESC").Find(&payouts).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(payouts)
}

func CancelPayout(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	payout, err := services.NewPayoutService(storage.DB).CancelPayout(claims.ID, id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}
	ctx.JSON(payout)
}

// GET /admin/payouts
func AdminListPayouts(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 25)
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}

	q := storage.DB.Model(&models.Payout{})
	if status := ctx.URLParamDefault("status", ""); status != "" {
		q = q.Where("status = ?", status)
	}
	if hostID := ctx.URLParamDefault("host_id", ""); hostID != "" {
		q = q.Where("host_id = ?", hostID)
	}

	var total int64
	q.Count(&total)

	var items []models.Payout
	if err := q.Preload("Host").Offset((page - 1) * perPage).Limit(perPage).Order("created_at DESC").Find(&items).Error; err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	utils.JSONPage(ctx, items, page, perPage, total)
}

// POST /admin/payouts/:id/process
func AdminProcessPayout(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	payout, err := services.NewPayoutService(storage.DB).StartProcessing(id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "payout.process", "payout", payout.ID, nil, payout)
	go services.NotificationServiceInstance.SendPayoutStatusNotificationToHost(
		payout.ID, payout.HostID, payout.Status, payout.Amount, "")

	ctx.JSON(iris.Map{"data": payout})
}

// POST /admin/payouts/:id/complete
func AdminCompletePayout(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	payout, err := services.NewPayoutService(storage.DB).CompletePayout(id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "payout.complete", "payout", payout.ID, nil, payout)
	go services.NotificationServiceInstance.SendPayoutStatusNotificationToHost(
		payout.ID, payout.HostID, payout.Status, payout.Amount, "")

	ctx.JSON(iris.Map{"data": payout})
}

// POST /admin/payouts/:id/reject { reason }
func AdminRejectPayout(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := ctx.ReadJSON(&body); err != nil || body.Reason == "" {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "invalid_payload", "reason required")
		return
	}

	payout, err := services.NewPayoutService(storage.DB).RejectPayout(id, body.Reason)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "payout.reject", "payout", payout.ID, nil, payout)
	go services.NotificationServiceInstance.SendPayoutStatusNotificationToHost(
		payout.ID, payout.HostID, payout.Status, payout.Amount, body.Reason)

	ctx.JSON(iris.Map{"data": payout})
}
