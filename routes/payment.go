package routes

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/services"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// InitiatePayment opens the gateway transaction for a booking awaiting
// payment and returns the checkout URL.
func InitiatePayment(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	reqCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	booking, intent, err := services.NewBookingService(storage.DB).InitiatePayment(reqCtx, claims.ID, id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{
		"booking":       booking,
		"transactionID": intent.ProviderTransactionID,
		"checkout":      intent.ClientPayload,
	})
}

// VerifyPayment polls the gateway for the booking's payment. The client
// calls this when returning from checkout; replays are harmless.
func VerifyPayment(ctx iris.Context) {
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
	if b.GuestID != claims.ID && b.HostID != claims.ID {
		utils.CreateError(iris.StatusForbidden, "Forbidden", "not your booking", ctx)
		return
	}

	wasPaid := b.Payment.Status == models.PaymentPaid

	reqCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	booking, err := svc.VerifyPayment(reqCtx, id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	if !wasPaid && booking.Payment.Status == models.PaymentPaid {
		title := ""
		if booking.Listing != nil {
			title = booking.Listing.Title
		}
		go services.NotificationServiceInstance.SendPaymentConfirmedNotifications(
			booking.ID, booking.GuestID, booking.HostID, title,
			booking.Payment.PaidAmount, booking.Pricing.Currency)
	}

	ctx.JSON(booking)
}

// ConfirmManualPayment lets the host mark a bank-transfer or cash booking
// as paid.
func ConfirmManualPayment(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	booking, err := services.NewBookingService(storage.DB).ConfirmManualPayment(claims.ID, id)
	if err != nil {
		renderServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "payment.manual_confirm", "booking", booking.ID, nil, booking.Payment)
	ctx.JSON(booking)
}

// webhookEvent is the common shape of both providers' notifications.
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ID     string  `json:"id"`
		Status string  `json:"status"`
		Amount float64 `json:"amount"`
	} `json:"data"`
}

// PaymentWebhook receives asynchronous gateway notifications. Signature
// verification happens before any state is read; an unknown transaction is
// 404, a replay is 200 with no effect.
func PaymentWebhook(gateway services.PaymentGateway) iris.Handler {
	return func(ctx iris.Context) {
		payload, err := io.ReadAll(ctx.Request().Body)
		if err != nil {
			utils.CreateError(iris.StatusBadRequest, "Bad Request", "unreadable payload", ctx)
			return
		}

		signature := ctx.GetHeader("Signature")
		if !gateway.VerifyWebhookSignature(payload, signature) {
			utils.CreateError(iris.StatusUnauthorized, "Unauthorized", "invalid webhook signature", ctx)
			return
		}

		var event webhookEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			utils.CreateError(iris.StatusBadRequest, "Bad Request", "malformed payload", ctx)
			return
		}
		if event.Data.ID == "" {
			utils.CreateError(iris.StatusBadRequest, "Bad Request", "missing transaction id", ctx)
			return
		}

		var booking models.Booking
		if err := storage.DB.Where("payment_transaction_id = ?", event.Data.ID).First(&booking).Error; err != nil {
			utils.CreateNotFound(ctx)
			return
		}

		paid := event.Data.Status == "paid" || event.Data.Status == "succeeded"
		if !paid {
			// failed or pending notification, nothing to apply
			ctx.JSON(iris.Map{"received": true})
			return
		}

		amount := event.Data.Amount
		if amount == 0 {
			amount = booking.Pricing.TotalAmount
		}

		wasPaid := booking.Payment.Status == models.PaymentPaid

		updated, err := services.NewBookingService(storage.DB).ApplyPaidPayment(booking.ID, amount, 0)
		if err != nil {
			renderServiceError(ctx, err)
			return
		}

		if !wasPaid && updated.Payment.Status == models.PaymentPaid {
			var listing models.Listing
			title := ""
			if err := storage.DB.First(&listing, updated.ListingID).Error; err == nil {
				title = listing.Title
			}
			go services.NotificationServiceInstance.SendPaymentConfirmedNotifications(
				updated.ID, updated.GuestID, updated.HostID, title,
				updated.Payment.PaidAmount, updated.Pricing.Currency)
		}

		ctx.JSON(iris.Map{"received": true})
	}
}
