package services

import (
	"math"
	"testing"
	"time"

	"github.com/gallhort/Baytup-sub000/models"

	"gorm.io/gorm"
)

// testBooking builds a 5-night stay totalling 12000 DZD: 2000/night subtotal
// 10000, cleaning 1000, guest service fee 1000, host commission 300, host
// payout 10700.
func testBooking(createdAt, start time.Time) *models.Booking {
	return &models.Booking{
		Model: gorm.Model{ID: 1, CreatedAt: createdAt},
		Pricing: models.BookingPricing{
			BasePrice:       2000,
			Nights:          5,
			Subtotal:        10000,
			CleaningFee:     1000,
			GuestServiceFee: 1000,
			HostCommission:  300,
			TotalAmount:     12000,
			HostPayout:      10700,
			Currency:        "DZD",
		},
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 5),
	}
}

func TestCalculateRefundPolicyTiers(t *testing.T) {
	now := time.Now().UTC()
	created := now.AddDate(0, 0, -10) // far outside the grace window

	cases := []struct {
		name        string
		policy      string
		daysBefore  int
		wantPercent float64
	}{
		{"flexible full", models.PolicyFlexible, 2, 100},
		{"flexible same day", models.PolicyFlexible, 0, 50},
		{"moderate full", models.PolicyModerate, 6, 100},
		{"moderate half", models.PolicyModerate, 3, 50},
		{"moderate boundary full", models.PolicyModerate, 5, 100},
		{"moderate none", models.PolicyModerate, 0, 0},
		{"strict full", models.PolicyStrict, 20, 100},
		{"strict boundary full", models.PolicyStrict, 14, 100},
		{"strict half", models.PolicyStrict, 10, 50},
		{"strict none", models.PolicyStrict, 3, 0},
		{"unknown tier falls back to moderate", "bogus", 6, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := now.AddDate(0, 0, tc.daysBefore).Add(2 * time.Hour)
			b := testBooking(created, start)

			result := CalculateRefund(b, tc.policy, "guest", now)

			if result.RefundPercent != tc.wantPercent {
				t.Fatalf("percent = %.0f, want %.0f", result.RefundPercent, tc.wantPercent)
			}
			wantRefund := roundMoney(12000 * tc.wantPercent / 100)
			if result.RefundToGuest != wantRefund {
				t.Fatalf("refund = %.2f, want %.2f", result.RefundToGuest, wantRefund)
			}
			if result.IsInGracePeriod {
				t.Fatal("grace flag set outside the grace window")
			}
		})
	}
}

func TestCalculateRefundGracePeriod(t *testing.T) {
	now := time.Now().UTC()
	created := now.Add(-2 * time.Hour)
	// strict tier, same-day cancellation: would be 0% without the grace rule
	b := testBooking(created, now.Add(6*time.Hour))

	result := CalculateRefund(b, models.PolicyStrict, "guest", now)

	if !result.IsInGracePeriod {
		t.Fatal("expected grace period flag")
	}
	if result.RefundToGuest != 12000 {
		t.Fatalf("refund = %.2f, want full 12000", result.RefundToGuest)
	}
}

func TestCalculateRefundHostCancelAlwaysFull(t *testing.T) {
	now := time.Now().UTC()
	created := now.AddDate(0, 0, -10)
	// one day before check-in, strict tier: a guest would get nothing
	b := testBooking(created, now.AddDate(0, 0, 1))

	for _, by := range []string{"host", "admin"} {
		result := CalculateRefund(b, models.PolicyStrict, by, now)
		if result.RefundToGuest != 12000 || result.RefundPercent != 100 {
			t.Fatalf("%s cancel: refund = %.2f (%.0f%%), want full", by, result.RefundToGuest, result.RefundPercent)
		}
	}
}

func TestCalculateRefundAfterStayStarted(t *testing.T) {
	now := time.Now().UTC()
	b := testBooking(now.AddDate(0, 0, -10), now.AddDate(0, 0, -1))

	result := CalculateRefund(b, models.PolicyFlexible, "guest", now)

	if result.RefundToGuest != 0 {
		t.Fatalf("refund after start = %.2f, want 0", result.RefundToGuest)
	}
}

func TestCalculateRefundDistributionConservation(t *testing.T) {
	now := time.Now().UTC()
	created := now.AddDate(0, 0, -10)

	for _, days := range []int{0, 1, 3, 6, 10, 20} {
		b := testBooking(created, now.AddDate(0, 0, days).Add(time.Hour))
		result := CalculateRefund(b, models.PolicyModerate, "guest", now)

		sum := result.RefundToGuest + result.HostReceives + result.PlatformRetains
		if math.Abs(sum-12000) > 0.01 {
			t.Fatalf("days=%d: distribution sums to %.2f, want 12000", days, sum)
		}
		if result.RefundToGuest < 0 || result.RefundToGuest > 12000 {
			t.Fatalf("days=%d: refund %.2f out of bounds", days, result.RefundToGuest)
		}
	}
}

func TestCalculateRefundNeverExceedsTotal(t *testing.T) {
	now := time.Now().UTC()
	b := testBooking(now.AddDate(0, 0, -10), now.AddDate(0, 0, 30))

	result := CalculateRefund(b, models.PolicyFlexible, "guest", now)

	if result.RefundToGuest > b.Pricing.TotalAmount {
		t.Fatalf("refund %.2f exceeds total %.2f", result.RefundToGuest, b.Pricing.TotalAmount)
	}
	if result.RefundPercent > 100 || result.RefundPercent < 0 {
		t.Fatalf("percent %.2f out of range", result.RefundPercent)
	}
}
