package services

import (
	"errors"
	"testing"
	"time"

	"github.com/gallhort/Baytup-sub000/models"
)

// paidBookingWithEscrow drives a booking through payment so an escrow in
// held state exists for it.
func paidBookingWithEscrow(t *testing.T, svc *BookingService, guestID uint, listing models.Listing, daysOut int) (*models.Booking, models.Escrow) {
	t.Helper()
	start, end := fiveNights(daysOut)
	b, err := svc.CreateBooking(guestID, CreateBookingInput{
		ListingID: listing.ID, StartDate: start, EndDate: end, Adults: 2,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if _, err := svc.ApplyPaidPayment(b.ID, b.Pricing.TotalAmount, 0); err != nil {
		t.Fatalf("apply payment: %v", err)
	}
	var escrow models.Escrow
	if err := svc.DB.Where("booking_id = ?", b.ID).First(&escrow).Error; err != nil {
		t.Fatalf("load escrow: %v", err)
	}
	return b, escrow
}

func TestCreateEscrowConservation(t *testing.T) {
	db := setupTestDB(t)
	_, guest, listing := seedListing(t, db, true)
	svc := NewBookingService(db)

	b, escrow := paidBookingWithEscrow(t, svc, guest.ID, listing, 10)

	if escrow.OriginalTotal != b.Pricing.TotalAmount {
		t.Fatalf("original total %.2f != booking total %.2f", escrow.OriginalTotal, b.Pricing.TotalAmount)
	}
	if escrow.HostAmount != b.Pricing.HostPayout {
		t.Fatalf("host amount %.2f != host payout %.2f", escrow.HostAmount, b.Pricing.HostPayout)
	}
	if escrow.HostAmount+escrow.PlatformAmount != escrow.OriginalTotal {
		t.Fatalf("%.2f + %.2f != %.2f", escrow.HostAmount, escrow.PlatformAmount, escrow.OriginalTotal)
	}
	if escrow.Reference == "" {
		t.Fatal("escrow has no reference")
	}
	entries := escrow.HistoryEntries()
	if len(entries) != 1 || entries[0].Action != models.EscrowActionCreated {
		t.Fatalf("history = %+v, want single created entry", entries)
	}
}

func TestCreateEscrowIdempotent(t *testing.T) {
	db := setupTestDB(t)
	_, guest, listing := seedListing(t, db, true)
	svc := NewBookingService(db)

	b, escrow := paidBookingWithEscrow(t, svc, guest.ID, listing, 10)

	again, err := svc.Escrows.CreateEscrow(nil, b, 0)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if again.ID != escrow.ID {
		t.Fatalf("second create made a new escrow %d, original %d", again.ID, escrow.ID)
	}

	var count int64
	db.Model(&models.Escrow{}).Where("booking_id = ?", b.ID).Count(&count)
	if count != 1 {
		t.Fatalf("escrow rows = %d, want 1", count)
	}
}

func TestReleaseFundsOnce(t *testing.T) {
	db := setupTestDB(t)
	_, guest, listing := seedListing(t, db, true)
	svc := NewBookingService(db)

	_, escrow := paidBookingWithEscrow(t, svc, guest.ID, listing, 10)

	released, err := svc.Escrows.ReleaseFunds(escrow.ID, ReleaseTriggerAdminManual, 1)
	if err != nil {
		t.Fatal(err)
	}
	if released.Status != models.EscrowReleased || released.ReleasedAt == nil {
		t.Fatalf("after release: %s", released.Status)
	}

	var stateErr *InvalidEscrowStateError
	if _, err := svc.Escrows.ReleaseFunds(escrow.ID, ReleaseTriggerAdminManual, 1); !errors.As(err, &stateErr) {
		t.Fatalf("double release: got %v, want InvalidEscrowStateError", err)
	}
}

func TestFreezeOnlyFromHeld(t *testing.T) {
	db := setupTestDB(t)
	_, guest, listing := seedListing(t, db, true)
	svc := NewBookingService(db)

	_, escrow := paidBookingWithEscrow(t, svc, guest.ID, listing, 10)

	frozen, err := svc.Escrows.FreezeEscrow(escrow.ID, "litige ménage", 1)
	if err != nil {
		t.Fatal(err)
	}
	if frozen.Status != models.EscrowFrozen || frozen.FrozenAt == nil || frozen.DisputeReason != "litige ménage" {
		t.Fatalf("after freeze: %+v", frozen)
	}

	var stateErr *InvalidEscrowStateError
	if _, err := svc.Escrows.FreezeEscrow(escrow.ID, "encore", 1); !errors.As(err, &stateErr) {
		t.Fatalf("second freeze: got %v, want InvalidEscrowStateError", err)
	}

	// a frozen escrow still releases, that is the resolution path
	if _, err := svc.Escrows.ReleaseFunds(escrow.ID, ReleaseTriggerAdminManual, 1); err != nil {
		t.Fatalf("release of frozen escrow: %v", err)
	}
}

func TestResolveDisputeSplit(t *testing.T) {
	db := setupTestDB(t)
	_, guest, listing := seedListing(t, db, true)
	svc := NewBookingService(db)

	_, escrow := paidBookingWithEscrow(t, svc, guest.ID, listing, 10)
	if _, err := svc.Escrows.FreezeEscrow(escrow.ID, "dégâts", 1); err != nil {
		t.Fatal(err)
	}

	// split exceeding the held host amount must be rejected
	if _, err := svc.Escrows.ResolveDispute(escrow.ID, escrow.HostAmount, 1, 1, "trop"); err == nil {
		t.Fatal("oversized split accepted")
	}

	resolved, err := svc.Escrows.ResolveDispute(escrow.ID, 7000, 3700, 1, "partage amiable")
	if err != nil {
		t.Fatal(err)
	}
	if resolved.Status != models.EscrowReleased {
		t.Fatalf("after resolution: %s", resolved.Status)
	}
	if resolved.ResolutionHostPortion == nil || *resolved.ResolutionHostPortion != 7000 {
		t.Fatalf("host portion = %v", resolved.ResolutionHostPortion)
	}
	if resolved.ResolutionGuestPortion == nil || *resolved.ResolutionGuestPortion != 3700 {
		t.Fatalf("guest portion = %v", resolved.ResolutionGuestPortion)
	}

	// settled disputes stay settled
	if _, err := svc.Escrows.ResolveDispute(escrow.ID, 1000, 1000, 1, "re-split"); err == nil {
		t.Fatal("second resolution accepted")
	}
}

func TestResolveDisputeRejectsNegatives(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEscrowService(db)
	if _, err := svc.ResolveDispute(1, -100, 50, 1, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestProcessCancellationRefundPartial(t *testing.T) {
	db := setupTestDB(t)
	_, guest, listing := seedListing(t, db, true)
	svc := NewBookingService(db)

	b, _ := paidBookingWithEscrow(t, svc, guest.ID, listing, 10)

	r := RefundResult{RefundToGuest: 6000, HostReceives: 5350, PlatformRetains: 650, Summary: "moderate 50%"}
	escrow, err := svc.Escrows.ProcessCancellationRefund(nil, b.ID, r, guest.ID)
	if err != nil {
		t.Fatal(err)
	}
	// the retained shares release immediately, no completion will come
	if escrow.Status != models.EscrowReleased || escrow.ReleasedAt == nil {
		t.Fatalf("partial refund left escrow %s", escrow.Status)
	}
	if escrow.RefundedAmount != 6000 || escrow.HostAmount != 5350 || escrow.PlatformAmount != 650 {
		t.Fatalf("breakdown after refund: refunded=%.2f host=%.2f platform=%.2f",
			escrow.RefundedAmount, escrow.HostAmount, escrow.PlatformAmount)
	}

	entries := escrow.HistoryEntries()
	last := entries[len(entries)-1]
	if last.Action != models.EscrowActionReleased {
		t.Fatalf("last history action %s, want released", last.Action)
	}

	// a near-total refund still keeps the decided shares
	b2, _ := paidBookingWithEscrow(t, svc, guest.ID, listing, 30)
	r2 := RefundResult{RefundToGuest: 11999, HostReceives: 1, PlatformRetains: 0, Summary: "almost full"}
	e2, err := svc.Escrows.ProcessCancellationRefund(nil, b2.ID, r2, guest.ID)
	if err != nil {
		t.Fatal(err)
	}
	if e2.Status != models.EscrowReleased || e2.HostAmount != 1 {
		t.Fatalf("near-total refund: status=%s host=%.2f, want released/1", e2.Status, e2.HostAmount)
	}
}

func TestProcessCancellationRefundFullCapsAndReleases(t *testing.T) {
	db := setupTestDB(t)
	_, guest, listing := seedListing(t, db, true)
	svc := NewBookingService(db)

	b, _ := paidBookingWithEscrow(t, svc, guest.ID, listing, 10)

	// calculator output above the held total is capped, never over-refunded
	r := RefundResult{RefundToGuest: 99999, HostReceives: 0, PlatformRetains: 0, Summary: "full"}
	escrow, err := svc.Escrows.ProcessCancellationRefund(nil, b.ID, r, guest.ID)
	if err != nil {
		t.Fatal(err)
	}
	if escrow.Status != models.EscrowReleased {
		t.Fatalf("full refund left escrow %s", escrow.Status)
	}
	if escrow.RefundedAmount != escrow.OriginalTotal {
		t.Fatalf("refunded %.2f, want capped at %.2f", escrow.RefundedAmount, escrow.OriginalTotal)
	}
	if escrow.HostAmount != 0 || escrow.PlatformAmount != 0 {
		t.Fatalf("shares not zeroed: host=%.2f platform=%.2f", escrow.HostAmount, escrow.PlatformAmount)
	}
}

func TestEscrowHistoryGrows(t *testing.T) {
	db := setupTestDB(t)
	_, guest, listing := seedListing(t, db, true)
	svc := NewBookingService(db)

	_, escrow := paidBookingWithEscrow(t, svc, guest.ID, listing, 10)
	if _, err := svc.Escrows.FreezeEscrow(escrow.ID, "plainte", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Escrows.ResolveDispute(escrow.ID, 5000, 5000, 1, "réglé"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := svc.Escrows.Get(escrow.ID)
	if err != nil {
		t.Fatal(err)
	}
	entries := reloaded.HistoryEntries()
	if len(entries) != 3 {
		t.Fatalf("history entries = %d, want created+frozen+resolved", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].At.Before(entries[i-1].At) {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestAutoReleaseSweep(t *testing.T) {
	db := setupTestDB(t)
	_, guest, listing := seedListing(t, db, true)
	svc := NewBookingService(db)

	b, escrow := paidBookingWithEscrow(t, svc, guest.ID, listing, 10)

	// completed 20 days ago, held escrow: due for auto-release
	done := time.Now().UTC().AddDate(0, 0, -20)
	if err := db.Model(&models.Booking{}).Where("id = ?", b.ID).
		Updates(map[string]interface{}{"status": models.BookingCompleted, "completed_at": done}).Error; err != nil {
		t.Fatal(err)
	}

	// a second, recent completion must be left alone
	recent, recentEscrow := paidBookingWithEscrow(t, svc, guest.ID, listing, 30)
	recentDone := time.Now().UTC().AddDate(0, 0, -2)
	if err := db.Model(&models.Booking{}).Where("id = ?", recent.ID).
		Updates(map[string]interface{}{"status": models.BookingCompleted, "completed_at": recentDone}).Error; err != nil {
		t.Fatal(err)
	}

	released := svc.Escrows.AutoReleaseSweep(14 * 24 * time.Hour)
	if released != 1 {
		t.Fatalf("sweep released %d, want 1", released)
	}

	e1, _ := svc.Escrows.Get(escrow.ID)
	e2, _ := svc.Escrows.Get(recentEscrow.ID)
	if e1.Status != models.EscrowReleased {
		t.Fatalf("old escrow %s, want released", e1.Status)
	}
	if e2.Status != models.EscrowHeld {
		t.Fatalf("recent escrow %s, want still held", e2.Status)
	}
}
