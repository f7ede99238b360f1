package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/services"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

type CreateBookingInput struct {
	ListingID     uint      `json:"listingID" validate:"required"`
	StartDate     time.Time `json:"startDate" validate:"required"`
	EndDate       time.Time `json:"endDate" validate:"required"`
	Adults        int       `json:"adults" validate:"required,gte=1,lte=16"`
	Children      int       `json:"children" validate:"gte=0,lte=16"`
	Infants       int       `json:"infants" validate:"gte=0,lte=8"`
	PaymentMethod string    `json:"paymentMethod" validate:"omitempty,oneof=card edahabia bank_transfer cash"`
	Note          string    `json:"note" validate:"max=500"`
}

func CreateBooking(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CreateBookingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	svc := services.NewBookingService(storage.DB)
	booking, err := svc.CreateBooking(claims.ID, services.CreateBookingInput{
		ListingID:     input.ListingID,
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
		Adults:        input.Adults,
		Children:      input.Children,
		Infants:       input.Infants,
		PaymentMethod: input.PaymentMethod,
		Note:          input.Note,
	})
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	storage.DB.Preload("Listing").Preload("Guest").First(booking, booking.ID)

	if booking.Status == models.BookingPending {
		var guest models.User
		if err := storage.DB.First(&guest, claims.ID).Error; err == nil {
			guestName := fmt.Sprintf("%s %s", guest.FirstName, guest.LastName)
			title := ""
			if booking.Listing != nil {
				title = booking.Listing.Title
			}
			go services.NotificationServiceInstance.SendBookingRequestNotificationToHost(
				booking.ID, booking.HostID, claims.ID, guestName, title)
		}
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(booking)
}

type QuoteInput struct {
	ListingID uint      `json:"listingID" validate:"required"`
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required"`
}

// QuoteBooking prices a stay without creating anything.
func QuoteBooking(ctx iris.Context) {
	var input QuoteInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if !input.EndDate.After(input.StartDate) {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "endDate must be after startDate", ctx)
		return
	}

	var listing models.Listing
	if err := storage.DB.First(&listing, input.ListingID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	pricing := services.QuotePricing(&listing, input.StartDate, input.EndDate)
	ctx.JSON(pricing)
}

func GetBooking(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	booking, err := services.NewBookingService(storage.DB).Get(id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}
	if booking.GuestID != claims.ID && booking.HostID != claims.ID && claims.Role != "admin" && claims.Role != "super_admin" {
		utils.CreateError(iris.StatusForbidden, "Forbidden", "not your booking", ctx)
		return
	}
	ctx.JSON(booking)
}

// GetGuestBookings lists the caller's bookings as guest, newest first.
func GetGuestBookings(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var bookings []models.Booking
	q := storage.DB.Where("guest_id = ?", claims.ID)
	if status := ctx.URLParamDefault("status", ""); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Preload("Listing").Order("created_at DESC").Find(&bookings).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(bookings)
}

// GetHostBookings is the host inbox: bookings against the caller's listings.
func GetHostBookings(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var bookings []models.Booking
	q := storage.DB.Where("host_id = ?", claims.ID)
	if status := ctx.URLParamDefault("status", ""); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Preload("Listing").Preload("Guest").Order("created_at DESC").Find(&bookings).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(bookings)
}

// MarkHostBookingsRead flips the inbox flag on all the host's unread rows.
func MarkHostBookingsRead(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	if err := storage.DB.Model(&models.Booking{}).
		Where("host_id = ? AND is_read = ?", claims.ID, false).
		Update("is_read", true).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"updated": true})
}

func ApproveBooking(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	booking, err := services.NewBookingService(storage.DB).Approve(claims.ID, id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	var host models.User
	if err := storage.DB.First(&host, claims.ID).Error; err == nil {
		hostName := fmt.Sprintf("%s %s", host.FirstName, host.LastName)
		title := ""
		if booking.Listing != nil {
			title = booking.Listing.Title
		}
		go services.NotificationServiceInstance.SendBookingApprovalNotificationToGuest(
			booking.ID, booking.GuestID, claims.ID, hostName, title)
	}

	ctx.JSON(booking)
}

type RejectBookingInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

func RejectBooking(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input RejectBookingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	booking, err := services.NewBookingService(storage.DB).Reject(claims.ID, id, input.Reason)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	var host models.User
	if err := storage.DB.First(&host, claims.ID).Error; err == nil {
		hostName := fmt.Sprintf("%s %s", host.FirstName, host.LastName)
		title := ""
		if booking.Listing != nil {
			title = booking.Listing.Title
		}
		go services.NotificationServiceInstance.SendBookingRejectionNotificationToGuest(
			booking.ID, booking.GuestID, claims.ID, hostName, title)
	}

	ctx.JSON(booking)
}

type CancelBookingInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

func CancelBooking(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CancelBookingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	role := claims.Role
	if role != "admin" && role != "super_admin" {
		// resolve guest vs host from the booking itself
		b, getErr := services.NewBookingService(storage.DB).Get(id)
		if getErr != nil {
			renderServiceError(ctx, getErr)
			return
		}
		switch claims.ID {
		case b.GuestID:
			role = "guest"
		case b.HostID:
			role = "host"
		default:
			utils.CreateError(iris.StatusForbidden, "Forbidden", "not your booking", ctx)
			return
		}
	}

	booking, err := services.NewBookingService(storage.DB).Cancel(claims.ID, role, id, input.Reason)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	recipient := booking.HostID
	if role != "guest" {
		recipient = booking.GuestID
	}
	title := ""
	if booking.Listing != nil {
		title = booking.Listing.Title
	}
	go services.NotificationServiceInstance.SendCancellationNotification(
		booking.ID, recipient, role, title, booking.RefundAmount, booking.Pricing.Currency)

	ctx.JSON(booking)
}

// PreviewCancellation returns the refund split a cancellation would produce
// right now, without changing anything.
func PreviewCancellation(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	booking, err := services.NewBookingService(storage.DB).Get(id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	role := "guest"
	switch {
	case booking.GuestID == claims.ID:
	case booking.HostID == claims.ID:
		role = "host"
	case claims.Role == "admin" || claims.Role == "super_admin":
		role = "admin"
	default:
		utils.CreateError(iris.StatusForbidden, "Forbidden", "not your booking", ctx)
		return
	}

	policy := models.PolicyModerate
	if booking.Listing != nil && booking.Listing.CancellationPolicy != "" {
		policy = booking.Listing.CancellationPolicy
	}
	result := services.CalculateRefund(booking, policy, role, time.Now().UTC())
	ctx.JSON(result)
}

func DeleteBooking(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	if err := services.NewBookingService(storage.DB).DeletePending(claims.ID, id); err != nil {
		renderServiceError(ctx, err)
		return
	}
	ctx.StatusCode(http.StatusNoContent)
}

type CheckInInput struct {
	Notes string `json:"notes" validate:"max=500"`
}

func CheckInBooking(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CheckInInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	booking, err := services.NewBookingService(storage.DB).CheckIn(claims.ID, id, input.Notes)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}
	ctx.JSON(booking)
}

type CheckOutInput struct {
	Notes        string `json:"notes" validate:"max=500"`
	DamageReport string `json:"damageReport" validate:"max=1000"`
}

func CheckOutBooking(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CheckOutInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	booking, err := services.NewBookingService(storage.DB).CheckOut(claims.ID, id, input.Notes, input.DamageReport)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}
	ctx.JSON(booking)
}

func ConfirmBookingCompletion(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	svc := services.NewBookingService(storage.DB)
	b, err := svc.Get(id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	role := ""
	switch claims.ID {
	case b.HostID:
		role = "host"
	case b.GuestID:
		role = "guest"
	default:
		utils.CreateError(iris.StatusForbidden, "Forbidden", "not your booking", ctx)
		return
	}

	booking, err := svc.ConfirmCompletion(claims.ID, role, id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	if booking.Status == models.BookingCompleted {
		var escrow models.Escrow
		if err := storage.DB.Where("booking_id = ?", booking.ID).First(&escrow).Error; err == nil {
			go services.NotificationServiceInstance.SendEscrowReleasedNotificationToHost(
				escrow.ID, booking.ID, booking.HostID, escrow.HostAmount, escrow.Currency)
		}
	}
	ctx.JSON(booking)
}

// ExpireBookingsSweep is hit by the external scheduler. It expires overdue
// pending requests and sends deadline reminders.
func ExpireBookingsSweep(ctx iris.Context) {
	svc := services.NewBookingService(storage.DB)
	expired, reminded := svc.ExpireSweep()

	for i := range reminded {
		b := reminded[i]
		guestName := ""
		if b.Guest != nil {
			guestName = fmt.Sprintf("%s %s", b.Guest.FirstName, b.Guest.LastName)
		}
		title := ""
		if b.Listing != nil {
			title = b.Listing.Title
		}
		go services.NotificationServiceInstance.SendHostReminderNotification(b.ID, b.HostID, guestName, title)
	}

	ctx.JSON(iris.Map{"expired": expired, "reminders": len(reminded)})
}
