package routes

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/services"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/kataras/iris/v12"
)

// GET /admin/escrows
func AdminListEscrows(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 25)
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}

	q := storage.DB.Model(&models.Escrow{})
	if status := ctx.URLParamDefault("status", ""); status != "" {
		q = q.Where("status = ?", status)
	}
	if hostID := ctx.URLParamDefault("host_id", ""); hostID != "" {
		q = q.Where("payee_id = ?", hostID)
	}
	if bookingID := ctx.URLParamDefault("booking_id", ""); bookingID != "" {
		q = q.Where("booking_id = ?", bookingID)
	}

	var total int64
	q.Count(&total)

	var items []models.Escrow
	if err := q.Preload("Booking").Offset((page - 1) * perPage).Limit(perPage).Order("created_at DESC").Find(&items).Error; err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	utils.JSONPage(ctx, items, page, perPage, total)
}

// GET /admin/escrows/:id
func AdminGetEscrow(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	var escrow models.Escrow
	if err := storage.DB.Preload("Booking").First(&escrow, id).Error; err != nil {
		utils.JSONError(ctx, http.StatusNotFound, "not_found", "escrow not found")
		return
	}
	ctx.JSON(iris.Map{"data": escrow, "history": escrow.HistoryEntries()})
}

// POST /admin/escrows/:id/release
func AdminReleaseEscrow(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	before, err := services.NewEscrowService(storage.DB).Get(id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	escrow, err := services.NewEscrowService(storage.DB).ReleaseFunds(id, services.ReleaseTriggerAdminManual, utils.ActorID(ctx))
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "escrow.release", "escrow", escrow.ID, before, escrow)
	go services.NotificationServiceInstance.SendEscrowReleasedNotificationToHost(
		escrow.ID, escrow.BookingID, escrow.PayeeID, escrow.HostAmount, escrow.Currency)

	ctx.JSON(iris.Map{"data": escrow})
}

// POST /admin/escrows/:id/freeze { reason }
func AdminFreezeEscrow(ctx iris.Context) {
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

	before, err := services.NewEscrowService(storage.DB).Get(id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	escrow, err := services.NewEscrowService(storage.DB).FreezeEscrow(id, body.Reason, utils.ActorID(ctx))
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "escrow.freeze", "escrow", escrow.ID, before, escrow)
	ctx.JSON(iris.Map{"data": escrow})
}

// POST /admin/escrows/:id/resolve { hostPortion, guestPortion, notes }
func AdminResolveEscrowDispute(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	var body struct {
		HostPortion  float64 `json:"hostPortion"`
		GuestPortion float64 `json:"guestPortion"`
		Notes        string  `json:"notes"`
	}
	if err := ctx.ReadJSON(&body); err != nil {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "invalid_payload", "hostPortion and guestPortion required")
		return
	}
	if body.HostPortion < 0 || body.GuestPortion < 0 {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "invalid_payload", "portions cannot be negative")
		return
	}

	before, err := services.NewEscrowService(storage.DB).Get(id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	escrow, err := services.NewEscrowService(storage.DB).ResolveDispute(id, body.HostPortion, body.GuestPortion, utils.ActorID(ctx), body.Notes)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "escrow.resolve_dispute", "escrow", escrow.ID, before, escrow)
	if body.HostPortion > 0 {
		go services.NotificationServiceInstance.SendEscrowReleasedNotificationToHost(
			escrow.ID, escrow.BookingID, escrow.PayeeID, body.HostPortion, escrow.Currency)
	}

	ctx.JSON(iris.Map{"data": escrow})
}

// POST /admin/bookings/:id/dispute { reason }
func AdminMarkBookingDisputed(ctx iris.Context) {
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

	booking, err := services.NewBookingService(storage.DB).MarkDisputed(utils.ActorID(ctx), id, body.Reason)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "booking.mark_disputed", "booking", booking.ID, nil, booking)

	title := ""
	if booking.Listing != nil {
		title = booking.Listing.Title
	}
	go services.NotificationServiceInstance.SendDisputeNotifications(booking.ID, booking.GuestID, booking.HostID, title)

	ctx.JSON(iris.Map{"data": booking})
}

// AutoReleaseEscrowsSweep releases escrows whose booking completed more than
// ESCROW_AUTO_RELEASE_DAYS ago. Hit by the external scheduler.
func AutoReleaseEscrowsSweep(ctx iris.Context) {
	days := 14
	if raw := os.Getenv("ESCROW_AUTO_RELEASE_DAYS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			days = v
		}
	}

	released := services.NewEscrowService(storage.DB).AutoReleaseSweep(time.Duration(days) * 24 * time.Hour)
	ctx.JSON(iris.Map{"released": released})
}
