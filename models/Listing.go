package models

import (
	"gorm.io/gorm"
)

// Cancellation policy tiers. The refund curve per tier lives in
// services/refund.go.
const (
	PolicyFlexible = "flexible"
	PolicyModerate = "moderate"
	PolicyStrict   = "strict"
)

// Listing is a bookable stay. The currency fixed here decides the payment
// rail for every booking of this listing (DZD -> local invoicing rail,
// otherwise card rail) and never changes after booking creation.
type Listing struct {
	gorm.Model
	HostID      uint   `json:"hostID" gorm:"index"`
	Title       string `json:"title" gorm:"size:200"`
	Description string `json:"description" gorm:"type:text"`
	AddressLine string `json:"addressLine" gorm:"size:200"`
	City        string `json:"city" gorm:"size:100"`
	Country     string `json:"country" gorm:"size:100"`

	Capacity  int     `json:"capacity"`
	Bedrooms  int     `json:"bedrooms"`
	Bathrooms float32 `json:"bathrooms"`

	NightlyPrice       float64 `json:"nightlyPrice"`
	CleaningFee        float64 `json:"cleaningFee"`
	GuestServiceFeePct float64 `json:"guestServiceFeePct" gorm:"default:10"`
	HostCommissionPct  float64 `json:"hostCommissionPct" gorm:"default:3"`
	Currency           string  `json:"currency" gorm:"size:8;default:DZD"`

	CancellationPolicy string `json:"cancellationPolicy" gorm:"size:20;default:moderate"`
	InstantBook        bool   `json:"instantBook"`
	MinStay            int    `json:"minStay" gorm:"default:1"` // nights
	MaxStay            int    `json:"maxStay"`                  // 0 = unbounded

	IsActive *bool `json:"isActive" gorm:"default:true"`

	Host     *User     `json:"host,omitempty" gorm:"foreignKey:HostID"`
	Bookings []Booking `json:"bookings,omitempty" gorm:"foreignKey:ListingID"`
}
