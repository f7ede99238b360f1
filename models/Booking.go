package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Booking statuses. Status is the controlling field of the lifecycle state
// machine; transitions outside services/booking.go are a bug.
const (
	BookingPending          = "pending"
	BookingPendingPayment   = "pending_payment"
	BookingConfirmed        = "confirmed"
	BookingPaid             = "paid"
	BookingActive           = "active"
	BookingCompleted        = "completed"
	BookingCancelledByGuest = "cancelled_by_guest"
	BookingCancelledByHost  = "cancelled_by_host"
	BookingCancelledByAdmin = "cancelled_by_admin"
	BookingExpired          = "expired"
	BookingDisputed         = "disputed"
)

// Payment methods.
const (
	PaymentMethodCard         = "card"     // card rail, EUR
	PaymentMethodEdahabia     = "edahabia" // local invoicing rail, DZD
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCash         = "cash"
)

// Payment statuses.
const (
	PaymentPending           = "pending"
	PaymentAuthorized        = "authorized"
	PaymentPaid              = "paid"
	PaymentFailed            = "failed"
	PaymentRefunded          = "refunded"
	PaymentPartiallyRefunded = "partially_refunded"
)

// BookingPricing is the price breakdown frozen at creation time.
// TotalAmount = Subtotal + CleaningFee + GuestServiceFee always holds;
// HostPayout = Subtotal + CleaningFee - HostCommission.
type BookingPricing struct {
	BasePrice       float64 `json:"basePrice"`
	Nights          int     `json:"nights"`
	Subtotal        float64 `json:"subtotal"`
	CleaningFee     float64 `json:"cleaningFee"`
	GuestServiceFee float64 `json:"guestServiceFee"`
	HostCommission  float64 `json:"hostCommission"`
	Taxes           float64 `json:"taxes"` // always 0 by policy
	TotalAmount     float64 `json:"totalAmount"`
	HostPayout      float64 `json:"hostPayout"`
	Currency        string  `json:"currency" gorm:"size:8"`
}

// BookingPayment tracks the gateway transaction for a booking.
type BookingPayment struct {
	Method          string         `json:"method" gorm:"size:20"`
	Status          string         `json:"status" gorm:"size:24;index"`
	TransactionID   string         `json:"transactionID" gorm:"size:128;index"`
	PaidAmount      float64        `json:"paidAmount"`
	PaidAt          *time.Time     `json:"paidAt"`
	RefundAmount    float64        `json:"refundAmount"`
	RefundedAt      *time.Time     `json:"refundedAt"`
	RefundBreakdown datatypes.JSON `json:"refundBreakdown"`
}

// Booking models one reservation of one listing by one guest for a date
// range. HostID is denormalized from the listing at creation time and must
// not change even if listing ownership changes later.
type Booking struct {
	gorm.Model
	ListingID uint `json:"listingID" gorm:"index"`
	GuestID   uint `json:"guestID" gorm:"index"`
	HostID    uint `json:"hostID" gorm:"index"`

	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Adults    int       `json:"adults"`
	Children  int       `json:"children"`
	Infants   int       `json:"infants"`

	Pricing BookingPricing `json:"pricing" gorm:"embedded;embeddedPrefix:pricing_"`
	Payment BookingPayment `json:"payment" gorm:"embedded;embeddedPrefix:payment_"`

	Status string `json:"status" gorm:"type:varchar(32);index"`

	// Host response window (non instant-book only).
	HostResponseDeadline *time.Time `json:"hostResponseDeadline"`
	HostRespondedAt      *time.Time `json:"hostRespondedAt"`
	HostReminderSent     bool       `json:"hostReminderSent"`
	AutoExpired          bool       `json:"autoExpired"`

	CheckInAt     *time.Time `json:"checkInAt"`
	CheckInBy     uint       `json:"checkInBy"`
	CheckInNotes  string     `json:"checkInNotes" gorm:"size:500"`
	CheckOutAt    *time.Time `json:"checkOutAt"`
	CheckOutBy    uint       `json:"checkOutBy"`
	CheckOutNotes string     `json:"checkOutNotes" gorm:"size:500"`
	DamageReport  string     `json:"damageReport" gorm:"size:1000"`

	// Booking becomes completed only when BOTH flags are true.
	HostConfirmedCompletion  bool       `json:"hostConfirmedCompletion"`
	GuestConfirmedCompletion bool       `json:"guestConfirmedCompletion"`
	CompletedAt              *time.Time `json:"completedAt"`

	CancelledBy     string     `json:"cancelledBy" gorm:"size:10"` // guest, host, admin
	CancelledAt     *time.Time `json:"cancelledAt"`
	CancelReason    string     `json:"cancelReason" gorm:"size:500"`
	RefundAmount    float64    `json:"refundAmount"`
	CancellationFee float64    `json:"cancellationFee"`

	Listing *Listing `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	Guest   *User    `json:"guest,omitempty" gorm:"foreignKey:GuestID"`
	Host    *User    `json:"host,omitempty" gorm:"foreignKey:HostID"`

	IsRead bool `json:"isRead" gorm:"default:false"` // host inbox flag
}

// IsTerminal reports whether no normal transition leaves this status.
// Admin may still move a terminal booking to disputed.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case BookingCompleted, BookingCancelledByGuest, BookingCancelledByHost,
		BookingCancelledByAdmin, BookingExpired:
		return true
	}
	return false
}

// OccupyingStatuses are the statuses that block a listing's dates for
// overlapping reservations. pending_payment is counted conservatively.
func OccupyingStatuses() []string {
	return []string{
		BookingPendingPayment,
		BookingConfirmed,
		BookingPaid,
		BookingActive,
		BookingCompleted,
	}
}
