package services

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gallhort/Baytup-sub000/models"

	"gorm.io/datatypes"
)

// GracePeriodHours is the window after booking creation during which a guest
// cancellation refunds in full regardless of the listing's policy tier.
const GracePeriodHours = 48

// refundStep maps "at least DaysBefore full days until check-in" to a refund
// percentage. Steps are ordered from most to least generous.
type refundStep struct {
	DaysBefore int
	Percent    float64
}

// refundPolicies is the per-tier refund curve. Business parameters, kept as
// a table so tiers can be retuned without touching the calculator.
var refundPolicies = map[string][]refundStep{
	models.PolicyFlexible: {
		{DaysBefore: 1, Percent: 100},
		{DaysBefore: 0, Percent: 50},
	},
	models.PolicyModerate: {
		{DaysBefore: 5, Percent: 100},
		{DaysBefore: 1, Percent: 50},
		{DaysBefore: 0, Percent: 0},
	},
	models.PolicyStrict: {
		{DaysBefore: 14, Percent: 100},
		{DaysBefore: 7, Percent: 50},
		{DaysBefore: 0, Percent: 0},
	},
}

// RefundResult is the split of the original payment decided by a
// cancellation. RefundToGuest + HostReceives + PlatformRetains equals the
// booking total; the escrow ledger applies this against the held amount.
type RefundResult struct {
	RefundToGuest   float64 `json:"refundToGuest"`
	HostReceives    float64 `json:"hostReceives"`
	PlatformRetains float64 `json:"platformRetains"`
	RefundPercent   float64 `json:"refundPercent"`
	IsInGracePeriod bool    `json:"isInGracePeriod"`
	DaysBeforeStay  int     `json:"daysBeforeStay"`
	Summary         string  `json:"summary"`
}

// CalculateRefund decides how much of a booking's payment returns to the
// guest when the booking is cancelled. Pure: no storage, no clock other than
// cancelledAt.
//
// Host- and admin-initiated cancellations always refund the guest in full,
// whatever the timing: the host bears the cost of backing out. Guest
// cancellations follow the listing's policy tier, with a flat grace period
// right after booking creation.
func CalculateRefund(b *models.Booking, policy string, cancelledBy string, cancelledAt time.Time) RefundResult {
	total := b.Pricing.TotalAmount
	daysBefore := int(b.StartDate.Sub(cancelledAt).Hours() / 24)
	if daysBefore < 0 {
		daysBefore = 0
	}

	result := RefundResult{DaysBeforeStay: daysBefore}

	if cancelledBy != "guest" {
		result.RefundPercent = 100
		result.RefundToGuest = total
		result.Summary = fmt.Sprintf("cancelled by %s: full refund of %.2f %s", cancelledBy, total, b.Pricing.Currency)
		return result
	}

	if cancelledAt.Sub(b.CreatedAt) <= GracePeriodHours*time.Hour {
		result.IsInGracePeriod = true
		result.RefundPercent = 100
		result.RefundToGuest = total
		result.Summary = fmt.Sprintf("grace period cancellation: full refund of %.2f %s", total, b.Pricing.Currency)
		return result
	}

	steps, ok := refundPolicies[policy]
	if !ok {
		steps = refundPolicies[models.PolicyModerate]
	}

	percent := 0.0
	if b.StartDate.Sub(cancelledAt) > 0 {
		for _, step := range steps {
			if daysBefore >= step.DaysBefore {
				percent = step.Percent
				break
			}
		}
	}
	percent = clampPercent(percent)

	refund := roundMoney(total * percent / 100)
	if refund > total {
		refund = total
	}
	hostShare := roundMoney(b.Pricing.HostPayout * (100 - percent) / 100)
	platform := roundMoney(total - refund - hostShare)
	if platform < 0 {
		platform = 0
	}

	result.RefundPercent = percent
	result.RefundToGuest = refund
	result.HostReceives = hostShare
	result.PlatformRetains = platform
	result.Summary = fmt.Sprintf("guest cancellation %d day(s) before check-in under %s policy: %.0f%% refund", daysBefore, policy, percent)
	return result
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// marshalRefundBreakdown serializes a refund split for persistence on the
// booking's payment record.
func marshalRefundBreakdown(r RefundResult) (datatypes.JSON, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
