package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gallhort/Baytup-sub000/routes"
	"github.com/gallhort/Baytup-sub000/services"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func main() {
	// Only load .env in development
	if os.Getenv("RENDER") == "" {
		godotenv.Load()
	}

	storage.InitializeDB()
	storage.InitializeRedis()

	app := iris.New()
	app.Validator = validator.New()

	// CORS configuration
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	app.Use(iris.Compression)

	// JWT Verifiers
	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	app.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"status": "ok"})
	})

	user := app.Party("/api/user")
	{
		user.Post("/register", routes.Register)
		user.Post("/login", routes.Login)
		user.Get("/me", accessTokenVerifierMiddleware, routes.GetCurrentUser)
		user.Put("/bank-details", accessTokenVerifierMiddleware, routes.UpdateBankDetails)
		user.Patch("/pushtoken", accessTokenVerifierMiddleware, routes.AlterPushToken)
	}

	listing := app.Party("/api/listing")
	{
		listing.Get("/", routes.GetListings)
		listing.Get("/{id:uint}", routes.GetListing)
		listing.Post("/", accessTokenVerifierMiddleware, routes.CreateListing)
		listing.Patch("/{id:uint}", accessTokenVerifierMiddleware, routes.UpdateListing)
		listing.Get("/mine", accessTokenVerifierMiddleware, routes.GetHostListings)
	}

	booking := app.Party("/api/booking")
	{
		booking.Post("/quote", routes.QuoteBooking)
		booking.Post("/", accessTokenVerifierMiddleware, routes.CreateBooking)
		booking.Get("/mine", accessTokenVerifierMiddleware, routes.GetGuestBookings)
		booking.Get("/host", accessTokenVerifierMiddleware, routes.GetHostBookings)
		booking.Patch("/host/mark-read", accessTokenVerifierMiddleware, routes.MarkHostBookingsRead)
		booking.Get("/{id:uint}", accessTokenVerifierMiddleware, routes.GetBooking)
		booking.Delete("/{id:uint}", accessTokenVerifierMiddleware, routes.DeleteBooking)
		booking.Post("/{id:uint}/approve", accessTokenVerifierMiddleware, routes.ApproveBooking)
		booking.Post("/{id:uint}/reject", accessTokenVerifierMiddleware, routes.RejectBooking)
		booking.Post("/{id:uint}/cancel", accessTokenVerifierMiddleware, routes.CancelBooking)
		booking.Get("/{id:uint}/cancel-preview", accessTokenVerifierMiddleware, routes.PreviewCancellation)
		booking.Post("/{id:uint}/check-in", accessTokenVerifierMiddleware, routes.CheckInBooking)
		booking.Post("/{id:uint}/check-out", accessTokenVerifierMiddleware, routes.CheckOutBooking)
		booking.Post("/{id:uint}/confirm-completion", accessTokenVerifierMiddleware, routes.ConfirmBookingCompletion)
		// scheduler endpoints
		booking.Post("/expire-pending", routes.ExpireBookingsSweep)
	}

	payment := app.Party("/api/payment")
	{
		payment.Post("/booking/{id:uint}/initiate", accessTokenVerifierMiddleware, routes.InitiatePayment)
		payment.Post("/booking/{id:uint}/verify", accessTokenVerifierMiddleware, routes.VerifyPayment)
		payment.Post("/booking/{id:uint}/manual-confirm", accessTokenVerifierMiddleware, routes.ConfirmManualPayment)
		payment.Post("/webhook/card", routes.PaymentWebhook(services.NewCardGateway()))
		payment.Post("/webhook/edahabia", routes.PaymentWebhook(services.NewInvoiceGateway()))
	}

	payout := app.Party("/api/payout")
	{
		payout.Get("/balance", accessTokenVerifierMiddleware, routes.GetBalance)
		payout.Post("/", accessTokenVerifierMiddleware, routes.RequestPayout)
		payout.Get("/mine", accessTokenVerifierMiddleware, routes.GetHostPayouts)
		payout.Post("/{id:uint}/cancel", accessTokenVerifierMiddleware, routes.CancelPayout)
	}

	notifications := app.Party("/api/notifications")
	{
		notifications.Get("/", accessTokenVerifierMiddleware, routes.GetUserNotifications)
		notifications.Patch("/{id:uint}/read", accessTokenVerifierMiddleware, routes.MarkNotificationRead)
		notifications.Patch("/read-all", accessTokenVerifierMiddleware, routes.MarkAllNotificationsRead)
		notifications.Put("/settings", accessTokenVerifierMiddleware, routes.UpdateNotificationSettings)
	}

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Get("/users", routes.AdminListUsers)
		admin.Get("/users/{id:uint}", routes.AdminGetUser)
		admin.Patch("/users/{id:uint}/role", utils.SuperAdminOnlyMiddleware, routes.AdminChangeUserRole)
		admin.Get("/stats", routes.AdminStats)
		admin.Get("/activity", routes.AdminActivity)
		admin.Get("/bookings", routes.AdminListBookings)
		admin.Get("/bookings/{id:uint}", routes.AdminGetBooking)
		admin.Post("/bookings/{id:uint}/cancel", routes.AdminCancelBooking)
		admin.Post("/bookings/{id:uint}/dispute", routes.AdminMarkBookingDisputed)
		admin.Get("/escrows", routes.AdminListEscrows)
		admin.Get("/escrows/{id:uint}", routes.AdminGetEscrow)
		admin.Post("/escrows/{id:uint}/release", routes.AdminReleaseEscrow)
		admin.Post("/escrows/{id:uint}/freeze", routes.AdminFreezeEscrow)
		admin.Post("/escrows/{id:uint}/resolve", routes.AdminResolveEscrowDispute)
		admin.Post("/escrows/auto-release", routes.AutoReleaseEscrowsSweep)
		admin.Get("/payouts", routes.AdminListPayouts)
		admin.Post("/payouts/{id:uint}/process", routes.AdminProcessPayout)
		admin.Post("/payouts/{id:uint}/complete", routes.AdminCompletePayout)
		admin.Post("/payouts/{id:uint}/reject", routes.AdminRejectPayout)
	}

	app.Post("/api/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	addr := "0.0.0.0:" + port

	fmt.Printf("🚀 Server starting on %s\n", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
