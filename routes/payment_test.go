package routes

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/services"
	"github.com/gallhort/Baytup-sub000/storage"

	"github.com/glebarez/sqlite"
	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const webhookTestSecret = "whsec_test"

var webhookDBSeq int

// buildWebhookApp creates a minimal Iris app with only the card webhook
// route, backed by a fresh in-memory database assigned to storage.DB.
func buildWebhookApp(t *testing.T) *iris.Application {
	t.Helper()
	os.Setenv("CARD_GATEWAY_WEBHOOK_SECRET", webhookTestSecret)

	webhookDBSeq++
	dsn := fmt.Sprintf("file:webhookdb%d?mode=memory&cache=shared", webhookDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Listing{}, &models.Booking{},
		&models.Escrow{}, &models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	storage.DB = db

	app := iris.New()
	app.Post("/api/payment/webhook/card", PaymentWebhook(services.NewCardGateway()))
	if err := app.Build(); err != nil {
		t.Fatalf("build app: %v", err)
	}
	return app
}

// seedAwaitingPaymentBooking inserts a booking in pending_payment with a
// known provider transaction id.
func seedAwaitingPaymentBooking(t *testing.T, txnID string) models.Booking {
	t.Helper()
	guest := models.User{FirstName: "Lina", LastName: "R", Email: fmt.Sprintf("wh-guest%d@test.dz", webhookDBSeq)}
	host := models.User{FirstName: "Karim", LastName: "Z", Email: fmt.Sprintf("wh-host%d@test.dz", webhookDBSeq), Role: "host"}
	if err := storage.DB.Create(&guest).Error; err != nil {
		t.Fatal(err)
	}
	if err := storage.DB.Create(&host).Error; err != nil {
		t.Fatal(err)
	}
	listing := models.Listing{HostID: host.ID, Title: "Studio centre-ville", Currency: "DZD"}
	if err := storage.DB.Create(&listing).Error; err != nil {
		t.Fatal(err)
	}

	start := time.Now().UTC().AddDate(0, 0, 10)
	b := models.Booking{
		ListingID: listing.ID,
		GuestID:   guest.ID,
		HostID:    host.ID,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 5),
		Adults:    2,
		Status:    models.BookingPendingPayment,
		Pricing: models.BookingPricing{
			Nights: 5, Subtotal: 10000, CleaningFee: 1000, GuestServiceFee: 1000,
			HostCommission: 300, TotalAmount: 12000, HostPayout: 10700, Currency: "DZD",
		},
		Payment: models.BookingPayment{
			Method: models.PaymentMethodCard, Status: models.PaymentPending, TransactionID: txnID,
		},
	}
	if err := storage.DB.Create(&b).Error; err != nil {
		t.Fatal(err)
	}
	return b
}

func signPayload(payload string) string {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(app *iris.Application, payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook/card", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Signature", signature)
	}
	resp := httptest.NewRecorder()
	app.ServeHTTP(resp, req)
	return resp
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	app := buildWebhookApp(t)
	seedAwaitingPaymentBooking(t, "txn_sig_1")

	payload := `{"type":"payment.succeeded","data":{"id":"txn_sig_1","status":"paid"}}`

	if resp := postWebhook(app, payload, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: got %d, want 401", resp.Code)
	}
	if resp := postWebhook(app, payload, "deadbeef"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("wrong signature: got %d, want 401", resp.Code)
	}

	// nothing may change before the signature passes
	var b models.Booking
	storage.DB.Where("payment_transaction_id = ?", "txn_sig_1").First(&b)
	if b.Payment.Status != models.PaymentPending {
		t.Fatalf("payment status mutated to %s by unsigned webhook", b.Payment.Status)
	}
}

func TestPaymentWebhookUnknownTransaction(t *testing.T) {
	app := buildWebhookApp(t)

	payload := `{"type":"payment.succeeded","data":{"id":"txn_missing","status":"paid"}}`
	if resp := postWebhook(app, payload, signPayload(payload)); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown transaction: got %d, want 404", resp.Code)
	}
}

func TestPaymentWebhookMalformedPayload(t *testing.T) {
	app := buildWebhookApp(t)

	payload := `{"type":`
	if resp := postWebhook(app, payload, signPayload(payload)); resp.Code != http.StatusBadRequest {
		t.Fatalf("malformed payload: got %d, want 400", resp.Code)
	}

	payload = `{"type":"payment.succeeded","data":{"status":"paid"}}`
	if resp := postWebhook(app, payload, signPayload(payload)); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing transaction id: got %d, want 400", resp.Code)
	}
}

func TestPaymentWebhookAppliesPayment(t *testing.T) {
	app := buildWebhookApp(t)
	booking := seedAwaitingPaymentBooking(t, "txn_pay_1")

	payload := `{"type":"payment.succeeded","data":{"id":"txn_pay_1","status":"paid","amount":12000}}`
	sig := signPayload(payload)

	if resp := postWebhook(app, payload, sig); resp.Code != http.StatusOK {
		t.Fatalf("valid webhook: got %d, want 200: %s", resp.Code, resp.Body.String())
	}

	var b models.Booking
	storage.DB.First(&b, booking.ID)
	if b.Status != models.BookingPaid || b.Payment.Status != models.PaymentPaid {
		t.Fatalf("after webhook: booking %s payment %s", b.Status, b.Payment.Status)
	}

	var escrow models.Escrow
	if err := storage.DB.Where("booking_id = ?", booking.ID).First(&escrow).Error; err != nil {
		t.Fatalf("escrow not created: %v", err)
	}

	// provider retries must be accepted and must not duplicate the escrow
	if resp := postWebhook(app, payload, sig); resp.Code != http.StatusOK {
		t.Fatalf("replay: got %d, want 200", resp.Code)
	}
	var count int64
	storage.DB.Model(&models.Escrow{}).Where("booking_id = ?", booking.ID).Count(&count)
	if count != 1 {
		t.Fatalf("escrow rows after replay = %d, want 1", count)
	}
}

func TestPaymentWebhookIgnoresNonPaidStatus(t *testing.T) {
	app := buildWebhookApp(t)
	booking := seedAwaitingPaymentBooking(t, "txn_fail_1")

	payload := `{"type":"payment.failed","data":{"id":"txn_fail_1","status":"failed"}}`
	if resp := postWebhook(app, payload, signPayload(payload)); resp.Code != http.StatusOK {
		t.Fatalf("failed-status webhook: got %d, want 200", resp.Code)
	}

	var b models.Booking
	storage.DB.First(&b, booking.ID)
	if b.Status != models.BookingPendingPayment || b.Payment.Status != models.PaymentPending {
		t.Fatalf("failed notification mutated booking: %s / %s", b.Status, b.Payment.Status)
	}
}
