package routes

import (
	"net/http"
	"time"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/services"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/kataras/iris/v12"
)

// GET /admin/bookings
func AdminListBookings(ctx iris.Context) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 25)
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}

	status := ctx.URLParamDefault("status", "")
	hostID := ctx.URLParamDefault("host_id", "")
	guestID := ctx.URLParamDefault("guest_id", "")
	dateFrom := ctx.URLParamDefault("date_from", "")
	dateTo := ctx.URLParamDefault("date_to", "")

	q := storage.DB.Model(&models.Booking{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if hostID != "" {
		q = q.Where("host_id = ?", hostID)
	}
	if guestID != "" {
		q = q.Where("guest_id = ?", guestID)
	}
	if dateFrom != "" {
		if t, err := time.Parse(time.RFC3339, dateFrom); err == nil {
			q = q.Where("start_date >= ?", t)
		}
	}
	if dateTo != "" {
		if t, err := time.Parse(time.RFC3339, dateTo); err == nil {
			q = q.Where("end_date <= ?", t)
		}
	}

	var total int64
	q.Count(&total)

	var items []models.Booking
	if err := q.Preload("Listing").Preload("Guest").Offset((page - 1) * perPage).Limit(perPage).Order("created_at DESC").Find(&items).Error; err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	utils.JSONPage(ctx, items, page, perPage, total)
}

// GET /admin/bookings/:id
func AdminGetBooking(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	var booking models.Booking
	if err := storage.DB.Preload("Listing").Preload("Guest").Preload("Host").First(&booking, id).Error; err != nil {
		utils.JSONError(ctx, http.StatusNotFound, "not_found", "booking not found")
		return
	}
	ctx.JSON(iris.Map{"data": booking, "meta": iris.Map{}, "links": iris.Map{}})
}

// POST /admin/bookings/:id/cancel { reason }
func AdminCancelBooking(ctx iris.Context) {
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

	before, err := services.NewBookingService(storage.DB).Get(id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	booking, err := services.NewBookingService(storage.DB).Cancel(utils.ActorID(ctx), "admin", id, body.Reason)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "booking.cancel", "booking", booking.ID, before, booking)

	title := ""
	if booking.Listing != nil {
		title = booking.Listing.Title
	}
	go services.NotificationServiceInstance.SendCancellationNotification(
		booking.ID, booking.GuestID, "admin", title, booking.RefundAmount, booking.Pricing.Currency)
	go services.NotificationServiceInstance.SendCancellationNotification(
		booking.ID, booking.HostID, "admin", title, 0, booking.Pricing.Currency)

	ctx.JSON(iris.Map{"data": booking})
}
