package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gallhort/Baytup-sub000/models"

	"gorm.io/gorm"
)

const testRIB = "00799999001234567890"

// seedHostWithEarnings creates a host with complete bank details and one
// released escrow worth hostAmount.
func seedHostWithEarnings(t *testing.T, db *gorm.DB, hostAmount float64) models.User {
	t.Helper()
	testDBSeq++
	host := models.User{
		FirstName: "Nadia", LastName: "T",
		Email:             fmt.Sprintf("payout%d@test.dz", testDBSeq),
		Role:              "host",
		BankName:          "BNA",
		AccountHolderName: "Nadia T",
		RIB:               testRIB,
	}
	if err := db.Create(&host).Error; err != nil {
		t.Fatal(err)
	}
	addReleasedEscrow(t, db, host.ID, hostAmount, "DZD", nil)
	return host
}

var escrowBookingSeq uint = 900000

func addReleasedEscrow(t *testing.T, db *gorm.DB, hostID uint, hostAmount float64, currency string, resolvedPortion *float64) models.Escrow {
	t.Helper()
	now := time.Now().UTC()
	escrowBookingSeq++
	e := models.Escrow{
		BookingID:             escrowBookingSeq, // satisfy the unique index
		Reference:             fmt.Sprintf("esc-ref-%d", escrowBookingSeq),
		PayeeID:               hostID,
		Amount:                hostAmount,
		Currency:              currency,
		HostAmount:            hostAmount,
		OriginalTotal:         hostAmount,
		Status:                models.EscrowReleased,
		ReleasedAt:            &now,
		ResolutionHostPortion: resolvedPortion,
	}
	if err := db.Create(&e).Error; err != nil {
		t.Fatal(err)
	}
	return e
}

func TestAvailableBalance(t *testing.T) {
	db := setupTestDB(t)
	host := seedHostWithEarnings(t, db, 5000)
	svc := NewPayoutService(db)

	balance, err := svc.AvailableBalance(host.ID, "DZD")
	if err != nil {
		t.Fatal(err)
	}
	if balance != 5000 {
		t.Fatalf("balance = %.2f, want 5000", balance)
	}

	// a dispute-resolved escrow counts its resolved host portion, not the
	// original host share
	portion := 1500.0
	addReleasedEscrow(t, db, host.ID, 4000, "DZD", &portion)

	balance, _ = svc.AvailableBalance(host.ID, "DZD")
	if balance != 6500 {
		t.Fatalf("balance with resolved escrow = %.2f, want 6500", balance)
	}
}

func TestBalancesKeptPerCurrency(t *testing.T) {
	db := setupTestDB(t)
	host := seedHostWithEarnings(t, db, 5000) // DZD
	addReleasedEscrow(t, db, host.ID, 3000, "EUR", nil)
	svc := NewPayoutService(db)

	dzd, _ := svc.AvailableBalance(host.ID, "DZD")
	eur, _ := svc.AvailableBalance(host.ID, "EUR")
	if dzd != 5000 || eur != 3000 {
		t.Fatalf("balances DZD=%.2f EUR=%.2f, want 5000/3000", dzd, eur)
	}

	// a EUR payout must count against the EUR balance only
	p, err := svc.RequestPayout(host.ID, 2000, "EUR")
	if err != nil {
		t.Fatal(err)
	}
	if p.Currency != "EUR" {
		t.Fatalf("payout currency %s, want EUR", p.Currency)
	}
	dzd, _ = svc.AvailableBalance(host.ID, "DZD")
	eur, _ = svc.AvailableBalance(host.ID, "EUR")
	if dzd != 5000 || eur != 1000 {
		t.Fatalf("after EUR payout: DZD=%.2f EUR=%.2f, want 5000/1000", dzd, eur)
	}

	// DZD earnings cannot fund a EUR withdrawal
	if _, err := svc.RequestPayout(host.ID, 4000, "EUR"); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("oversized EUR request: got %v, want ErrInsufficientBalance", err)
	}

	if _, err := svc.RequestPayout(host.ID, 2000, "USD"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unsupported currency: got %v, want ErrValidation", err)
	}
}

func TestRequestPayoutReservesBalance(t *testing.T) {
	db := setupTestDB(t)
	host := seedHostWithEarnings(t, db, 5000)
	svc := NewPayoutService(db)

	first, err := svc.RequestPayout(host.ID, 4000, "DZD")
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != models.PayoutPending {
		t.Fatalf("status %s, want pending", first.Status)
	}
	if first.RIB != testRIB || first.BankName != "BNA" {
		t.Fatalf("bank details not snapshotted: %+v", first)
	}

	// pending request holds its amount: only 1000 remains
	if _, err := svc.RequestPayout(host.ID, 4000, "DZD"); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("second 4000 request: got %v, want ErrInsufficientBalance", err)
	}
	if _, err := svc.RequestPayout(host.ID, 1000, "DZD"); err != nil {
		t.Fatalf("request within remainder: %v", err)
	}

	// cancelling frees the reservation
	if _, err := svc.CancelPayout(host.ID, first.ID); err != nil {
		t.Fatal(err)
	}
	balance, _ := svc.AvailableBalance(host.ID, "DZD")
	if balance != 4000 {
		t.Fatalf("balance after cancel = %.2f, want 4000", balance)
	}
}

func TestConcurrentPayoutRequestsCannotDoubleSpend(t *testing.T) {
	db := setupTestDB(t)
	host := seedHostWithEarnings(t, db, 5000)
	svc := NewPayoutService(db)

	// two simultaneous 4000 requests against a 5000 balance: at most one
	// may pass the balance check
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.RequestPayout(host.ID, 4000, "DZD")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	if successes > 1 {
		t.Fatalf("both concurrent requests passed, double-spending the balance")
	}

	// whatever the interleaving, in-flight payouts never exceed earnings
	var inFlight float64
	if err := db.Model(&models.Payout{}).
		Where("host_id = ? AND status IN ?", host.ID, models.InFlightPayoutStatuses()).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&inFlight).Error; err != nil {
		t.Fatal(err)
	}
	if inFlight > 5000 {
		t.Fatalf("in-flight payouts %.2f exceed the 5000 balance", inFlight)
	}
}

func TestRequestPayoutValidation(t *testing.T) {
	db := setupTestDB(t)
	host := seedHostWithEarnings(t, db, 5000)
	svc := NewPayoutService(db)

	cases := []struct {
		name   string
		amount float64
	}{
		{"zero", 0},
		{"negative", -500},
		{"below minimum", 999},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RequestPayout(host.ID, tc.amount, "DZD"); !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}

	t.Run("unknown host", func(t *testing.T) {
		if _, err := svc.RequestPayout(99999, 2000, "DZD"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("bad RIB", func(t *testing.T) {
		if err := db.Model(&models.User{}).Where("id = ?", host.ID).Update("rib", "123").Error; err != nil {
			t.Fatal(err)
		}
		if _, err := svc.RequestPayout(host.ID, 2000, "DZD"); !errors.Is(err, ErrValidation) {
			t.Fatalf("got %v, want ErrValidation", err)
		}
	})
}

func TestValidRIB(t *testing.T) {
	cases := []struct {
		rib  string
		want bool
	}{
		{testRIB, true},
		{"1234567890123456789", false},   // 19 digits
		{"123456789012345678901", false}, // 21 digits
		{"0079999900123456789X", false},  // non-digit
		{"", false},
	}
	for _, tc := range cases {
		if got := validRIB(tc.rib); got != tc.want {
			t.Errorf("validRIB(%q) = %v, want %v", tc.rib, got, tc.want)
		}
	}
}

func TestPayoutLifecycle(t *testing.T) {
	db := setupTestDB(t)
	host := seedHostWithEarnings(t, db, 5000)
	svc := NewPayoutService(db)

	p, err := svc.RequestPayout(host.ID, 3000, "DZD")
	if err != nil {
		t.Fatal(err)
	}

	processing, err := svc.StartProcessing(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if processing.Status != models.PayoutProcessing {
		t.Fatalf("status %s", processing.Status)
	}

	// a processing payout can no longer be cancelled by the host
	if _, err := svc.CancelPayout(host.ID, p.ID); err == nil {
		t.Fatal("cancel of processing payout accepted")
	}

	done, err := svc.CompletePayout(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.PayoutCompleted || done.ProcessedAt == nil || done.TransactionID == "" {
		t.Fatalf("completed payout: %+v", done)
	}

	// completed payouts keep reducing the balance
	balance, _ := svc.AvailableBalance(host.ID, "DZD")
	if balance != 2000 {
		t.Fatalf("balance after completion = %.2f, want 2000", balance)
	}

	if _, err := svc.CompletePayout(p.ID); err == nil {
		t.Fatal("double completion accepted")
	}
}

func TestRejectPayoutFreesBalance(t *testing.T) {
	db := setupTestDB(t)
	host := seedHostWithEarnings(t, db, 5000)
	svc := NewPayoutService(db)

	p, err := svc.RequestPayout(host.ID, 3000, "DZD")
	if err != nil {
		t.Fatal(err)
	}

	rejected, err := svc.RejectPayout(p.ID, "RIB invalide côté banque")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != models.PayoutRejected || rejected.RejectReason == "" {
		t.Fatalf("rejected payout: %+v", rejected)
	}

	balance, _ := svc.AvailableBalance(host.ID, "DZD")
	if balance != 5000 {
		t.Fatalf("balance after rejection = %.2f, want 5000", balance)
	}
}

func TestCancelPayoutOwnership(t *testing.T) {
	db := setupTestDB(t)
	host := seedHostWithEarnings(t, db, 5000)
	svc := NewPayoutService(db)

	p, err := svc.RequestPayout(host.ID, 2000, "DZD")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CancelPayout(host.ID+1, p.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign cancel: got %v, want ErrForbidden", err)
	}
}
