package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/storage"

	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

// HostResponseWindow is how long a non instant-book host has to answer a
// request before it auto-expires.
const HostResponseWindow = 24 * time.Hour

// legalTransitions is the booking state machine. Cancellations from the
// cancellable statuses are listed explicitly per role-status; disputed is
// reachable from anywhere through MarkDisputed only.
var legalTransitions = map[string][]string{
	models.BookingPending: {
		models.BookingPendingPayment, models.BookingConfirmed, models.BookingExpired,
		models.BookingCancelledByGuest, models.BookingCancelledByHost, models.BookingCancelledByAdmin,
	},
	models.BookingPendingPayment: {
		models.BookingConfirmed,
		models.BookingCancelledByGuest, models.BookingCancelledByHost, models.BookingCancelledByAdmin,
	},
	models.BookingConfirmed: {
		models.BookingPaid,
		models.BookingCancelledByGuest, models.BookingCancelledByHost, models.BookingCancelledByAdmin,
	},
	models.BookingPaid: {
		models.BookingActive,
		models.BookingCancelledByGuest, models.BookingCancelledByHost, models.BookingCancelledByAdmin,
	},
	models.BookingActive: {
		models.BookingCompleted,
	},
}

// CanTransition reports whether from -> to is a legal booking transition.
func CanTransition(from, to string) bool {
	return slices.Contains(legalTransitions[from], to)
}

// BookingService drives the reservation lifecycle from creation to
// settlement.
type BookingService struct {
	DB      *gorm.DB
	Escrows *EscrowService
}

func NewBookingService(db *gorm.DB) *BookingService {
	return &BookingService{DB: db, Escrows: NewEscrowService(db)}
}

type CreateBookingInput struct {
	ListingID     uint
	StartDate     time.Time
	EndDate       time.Time
	Adults        int
	Children      int
	Infants       int
	PaymentMethod string // empty selects the rail for the listing currency
	Note          string
}

// QuotePricing computes the frozen price breakdown for a stay.
func QuotePricing(l *models.Listing, start, end time.Time) models.BookingPricing {
	nights := int(end.Sub(start).Hours() / 24)
	subtotal := roundMoney(l.NightlyPrice * float64(nights))
	serviceFee := roundMoney(subtotal * l.GuestServiceFeePct / 100)
	commission := roundMoney(subtotal * l.HostCommissionPct / 100)

	return models.BookingPricing{
		BasePrice:       l.NightlyPrice,
		Nights:          nights,
		Subtotal:        subtotal,
		CleaningFee:     l.CleaningFee,
		GuestServiceFee: serviceFee,
		HostCommission:  commission,
		Taxes:           0,
		TotalAmount:     roundMoney(subtotal + l.CleaningFee + serviceFee),
		HostPayout:      roundMoney(subtotal + l.CleaningFee - commission),
		Currency:        l.Currency,
	}
}

// HasDateConflict reports whether the listing already has an occupying
// booking overlapping [start, end). Overlap semantics:
// newStart < existingEnd AND newEnd > existingStart.
func (s *BookingService) HasDateConflict(listingID uint, start, end time.Time, excludeID uint) (bool, error) {
	var n int64
	err := s.DB.Model(&models.Booking{}).
		Where("listing_id = ? AND status IN ? AND start_date < ? AND end_date > ?",
			listingID, models.OccupyingStatuses(), end, start).
		Where("id <> ?", excludeID).
		Count(&n).Error
	return n > 0, err
}

// CreateBooking validates the request, inserts the reservation and re-checks
// availability after insertion. The insert-then-recheck-then-delete dance is
// the guard against two guests racing for the same dates; a short redis slot
// lock serializes the common case first.
func (s *BookingService) CreateBooking(guestID uint, in CreateBookingInput) (*models.Booking, error) {
	var listing models.Listing
	if err := s.DB.First(&listing, in.ListingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if listing.IsActive != nil && !*listing.IsActive {
		return nil, validationErrorf("listing is not active")
	}
	if listing.HostID == guestID {
		return nil, validationErrorf("cannot book your own listing")
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, validationErrorf("end date must be after start date")
	}
	if in.StartDate.Before(time.Now().Truncate(24 * time.Hour)) {
		return nil, validationErrorf("cannot book dates in the past")
	}
	nights := int(in.EndDate.Sub(in.StartDate).Hours() / 24)
	if nights < listing.MinStay {
		return nil, validationErrorf("stay is below the %d-night minimum", listing.MinStay)
	}
	if listing.MaxStay > 0 && nights > listing.MaxStay {
		return nil, validationErrorf("stay exceeds the %d-night maximum", listing.MaxStay)
	}
	if in.Adults < 1 {
		return nil, validationErrorf("at least one adult is required")
	}
	if in.Children < 0 || in.Infants < 0 {
		return nil, validationErrorf("guest counts cannot be negative")
	}
	if listing.Capacity > 0 && in.Adults+in.Children > listing.Capacity {
		return nil, validationErrorf("guest count exceeds listing capacity of %d", listing.Capacity)
	}

	method := in.PaymentMethod
	switch method {
	case "":
		if listing.Currency == "DZD" {
			method = models.PaymentMethodEdahabia
		} else {
			method = models.PaymentMethodCard
		}
	case models.PaymentMethodCard, models.PaymentMethodEdahabia,
		models.PaymentMethodBankTransfer, models.PaymentMethodCash:
	default:
		return nil, validationErrorf("unknown payment method %q", in.PaymentMethod)
	}

	lockKey := fmt.Sprintf("booking:slot:%d", listing.ID)
	ctx := context.Background()
	if !storage.AcquireLock(ctx, lockKey, 5*time.Second) {
		return nil, ErrSlotNoLongerAvailable
	}
	defer storage.ReleaseLock(ctx, lockKey)

	if conflict, err := s.HasDateConflict(listing.ID, in.StartDate, in.EndDate, 0); err != nil {
		return nil, err
	} else if conflict {
		return nil, ErrSlotNoLongerAvailable
	}

	booking := models.Booking{
		ListingID: listing.ID,
		GuestID:   guestID,
		HostID:    listing.HostID, // frozen here, survives listing handover
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Adults:    in.Adults,
		Children:  in.Children,
		Infants:   in.Infants,
		Pricing:   QuotePricing(&listing, in.StartDate, in.EndDate),
		Payment: models.BookingPayment{
			Method: method,
			Status: models.PaymentPending,
		},
		CheckInNotes: in.Note,
	}

	if listing.InstantBook {
		booking.Status = models.BookingPendingPayment
	} else {
		booking.Status = models.BookingPending
		deadline := time.Now().Add(HostResponseWindow)
		booking.HostResponseDeadline = &deadline
	}

	if err := s.DB.Create(&booking).Error; err != nil {
		return nil, err
	}

	// Recheck after insertion: if a concurrent writer slipped past the
	// first check, the later insert loses and removes itself. Same status
	// set as HasDateConflict; pending requests never occupy, several
	// guests may request the same dates and the host picks one.
	var earlier int64
	err := s.DB.Model(&models.Booking{}).
		Where("listing_id = ? AND id < ? AND start_date < ? AND end_date > ?",
			listing.ID, booking.ID, in.EndDate, in.StartDate).
		Where("status IN ?", models.OccupyingStatuses()).
		Count(&earlier).Error
	if err == nil && earlier > 0 {
		s.DB.Unscoped().Delete(&booking)
		return nil, ErrSlotNoLongerAvailable
	}

	return &booking, nil
}

func (s *BookingService) Get(id uint) (*models.Booking, error) {
	var b models.Booking
	if err := s.DB.Preload("Listing").Preload("Guest").Preload("Host").First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *BookingService) transition(b *models.Booking, to string) error {
	if !CanTransition(b.Status, to) {
		return &InvalidTransitionError{From: b.Status, To: to}
	}
	b.Status = to
	return nil
}

// Approve answers a pending request. Manual payment methods skip the
// payment phase and the booking goes straight to confirmed.
func (s *BookingService) Approve(hostID, bookingID uint) (*models.Booking, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, err
	}
	if b.HostID != hostID {
		return nil, ErrForbidden
	}

	// Competing pending requests can share dates; the first one approved
	// occupies them and the rest become unapprovable.
	if conflict, err := s.HasDateConflict(b.ListingID, b.StartDate, b.EndDate, b.ID); err != nil {
		return nil, err
	} else if conflict {
		return nil, ErrSlotNoLongerAvailable
	}

	next := models.BookingPendingPayment
	if b.Payment.Method == models.PaymentMethodBankTransfer || b.Payment.Method == models.PaymentMethodCash {
		next = models.BookingConfirmed
	}
	if err := s.transition(b, next); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	b.HostRespondedAt = &now
	if err := s.DB.Save(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// Reject declines a pending request.
func (s *BookingService) Reject(hostID, bookingID uint, reason string) (*models.Booking, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, err
	}
	if b.HostID != hostID {
		return nil, ErrForbidden
	}
	if b.Status != models.BookingPending {
		return nil, &InvalidTransitionError{From: b.Status, To: models.BookingCancelledByHost}
	}
	now := time.Now().UTC()
	b.Status = models.BookingCancelledByHost
	b.HostRespondedAt = &now
	b.CancelledBy = "host"
	b.CancelledAt = &now
	b.CancelReason = reason
	if err := s.DB.Save(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// InitiatePayment creates the provider-side payment for a booking awaiting
// payment and records the transaction id.
func (s *BookingService) InitiatePayment(ctx context.Context, guestID, bookingID uint) (*models.Booking, *PaymentIntent, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, nil, err
	}
	if b.GuestID != guestID {
		return nil, nil, ErrForbidden
	}
	if b.Status != models.BookingPendingPayment {
		return nil, nil, &InvalidTransitionError{From: b.Status, To: models.BookingConfirmed}
	}

	gateway := GatewayForMethod(b.Payment.Method)
	if gateway == nil {
		return nil, nil, validationErrorf("payment method %q has no online rail", b.Payment.Method)
	}

	intent, err := gateway.CreateIntent(ctx, b.Pricing.TotalAmount, b.Pricing.Currency,
		fmt.Sprintf("booking-%d", b.ID), b.Guest)
	if err != nil {
		return nil, nil, err
	}

	b.Payment.TransactionID = intent.ProviderTransactionID
	if err := s.DB.Save(b).Error; err != nil {
		return nil, nil, err
	}
	return b, intent, nil
}

// VerifyPayment polls the gateway for the booking's transaction and applies
// the result. Safe to call repeatedly; an already-confirmed payment is a
// no-op.
func (s *BookingService) VerifyPayment(ctx context.Context, bookingID uint) (*models.Booking, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, err
	}
	if b.Payment.Status == models.PaymentPaid {
		return b, nil
	}
	if b.Payment.TransactionID == "" {
		return nil, validationErrorf("no payment transaction for booking %d", b.ID)
	}

	gateway := GatewayForMethod(b.Payment.Method)
	if gateway == nil {
		return nil, validationErrorf("payment method %q has no online rail", b.Payment.Method)
	}

	status, err := gateway.GetStatus(ctx, b.Payment.TransactionID)
	if err != nil {
		return nil, err
	}
	if !status.IsPaid {
		return b, nil
	}
	return s.ApplyPaidPayment(b.ID, b.Pricing.TotalAmount, 0)
}

// ApplyPaidPayment records a verified payment and opens the escrow. This is
// the single idempotent entry point shared by the client poll and the
// provider webhook: the second caller observes payment.status already paid
// and changes nothing.
func (s *BookingService) ApplyPaidPayment(bookingID uint, amount float64, actorID uint) (*models.Booking, error) {
	var out *models.Booking
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var b models.Booking
		if err := tx.First(&b, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if b.Payment.Status == models.PaymentPaid {
			out = &b
			return nil // replayed webhook or poll/webhook race
		}

		switch b.Status {
		case models.BookingPendingPayment, models.BookingConfirmed:
		default:
			return &InvalidTransitionError{From: b.Status, To: models.BookingPaid}
		}

		now := time.Now().UTC()
		b.Payment.Status = models.PaymentPaid
		b.Payment.PaidAmount = amount
		b.Payment.PaidAt = &now
		b.Status = models.BookingPaid

		if err := tx.Save(&b).Error; err != nil {
			return err
		}
		if _, err := s.Escrows.CreateEscrow(tx, &b, actorID); err != nil {
			return err
		}
		out = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmManualPayment marks a bank-transfer or cash booking as paid. Host
// action; still opens the escrow so the completion settlement path is the
// same for every rail.
func (s *BookingService) ConfirmManualPayment(hostID, bookingID uint) (*models.Booking, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, err
	}
	if b.HostID != hostID {
		return nil, ErrForbidden
	}
	if b.Payment.Method != models.PaymentMethodBankTransfer && b.Payment.Method != models.PaymentMethodCash {
		return nil, validationErrorf("booking %d is not on a manual payment method", b.ID)
	}
	if b.Status != models.BookingConfirmed {
		return nil, &InvalidTransitionError{From: b.Status, To: models.BookingPaid}
	}
	return s.ApplyPaidPayment(b.ID, b.Pricing.TotalAmount, hostID)
}

// CheckIn records the guest's arrival. Rejects a second check-in.
func (s *BookingService) CheckIn(hostID, bookingID uint, notes string) (*models.Booking, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, err
	}
	if b.HostID != hostID {
		return nil, ErrForbidden
	}
	if b.Status != models.BookingPaid && b.Status != models.BookingActive {
		return nil, &InvalidTransitionError{From: b.Status, To: models.BookingActive}
	}
	if b.CheckInAt != nil {
		return nil, validationErrorf("booking %d is already checked in", b.ID)
	}

	now := time.Now().UTC()
	b.CheckInAt = &now
	b.CheckInBy = hostID
	b.CheckInNotes = notes
	if b.Status == models.BookingPaid {
		b.Status = models.BookingActive
	}
	if err := s.DB.Save(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// CheckOut records departure. A skipped check-in is performed implicitly
// first; that is an operational convenience, the payment state was already
// verified at check-in eligibility.
func (s *BookingService) CheckOut(hostID, bookingID uint, notes, damageReport string) (*models.Booking, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, err
	}
	if b.HostID != hostID {
		return nil, ErrForbidden
	}
	if b.Status != models.BookingPaid && b.Status != models.BookingActive {
		return nil, &InvalidTransitionError{From: b.Status, To: models.BookingActive}
	}
	if b.CheckOutAt != nil {
		return nil, validationErrorf("booking %d is already checked out", b.ID)
	}

	now := time.Now().UTC()
	if b.CheckInAt == nil {
		b.CheckInAt = &now
		b.CheckInBy = hostID
		log.Printf("booking %d checked out without prior check-in, auto check-in applied", b.ID)
	}
	if b.Status == models.BookingPaid {
		b.Status = models.BookingActive
	}
	b.CheckOutAt = &now
	b.CheckOutBy = hostID
	b.CheckOutNotes = notes
	b.DamageReport = damageReport
	if err := s.DB.Save(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// ConfirmCompletion records one side's completion confirmation. The booking
// completes, and its escrow releases, only when both sides have confirmed.
func (s *BookingService) ConfirmCompletion(actorID uint, role string, bookingID uint) (*models.Booking, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, err
	}
	if b.CheckOutAt == nil {
		return nil, validationErrorf("booking %d has not been checked out", b.ID)
	}
	if b.Status != models.BookingActive {
		return nil, &InvalidTransitionError{From: b.Status, To: models.BookingCompleted}
	}

	switch role {
	case "host":
		if b.HostID != actorID {
			return nil, ErrForbidden
		}
		b.HostConfirmedCompletion = true
	case "guest":
		if b.GuestID != actorID {
			return nil, ErrForbidden
		}
		b.GuestConfirmedCompletion = true
	default:
		return nil, validationErrorf("unknown completion role %q", role)
	}

	if b.HostConfirmedCompletion && b.GuestConfirmedCompletion {
		now := time.Now().UTC()
		b.Status = models.BookingCompleted
		b.CompletedAt = &now
	}

	if err := s.DB.Save(b).Error; err != nil {
		return nil, err
	}

	if b.Status == models.BookingCompleted {
		var escrow models.Escrow
		if err := s.DB.Where("booking_id = ?", b.ID).First(&escrow).Error; err == nil {
			if _, relErr := s.Escrows.ReleaseFunds(escrow.ID, ReleaseTriggerCompleted, actorID); relErr != nil {
				log.Printf("escrow release for completed booking %d failed: %v", b.ID, relErr)
			}
		}
	}
	return b, nil
}

// Cancel cancels a booking on behalf of a guest, host or admin, computing
// the refund split and applying it against payment and escrow. The refund
// never exceeds the original total.
func (s *BookingService) Cancel(actorID uint, role string, bookingID uint, reason string) (*models.Booking, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, err
	}

	var target string
	switch role {
	case "guest":
		if b.GuestID != actorID {
			return nil, ErrForbidden
		}
		target = models.BookingCancelledByGuest
	case "host":
		if b.HostID != actorID {
			return nil, ErrForbidden
		}
		target = models.BookingCancelledByHost
	case "admin", "super_admin":
		role = "admin"
		target = models.BookingCancelledByAdmin
	default:
		return nil, ErrForbidden
	}

	if err := s.transition(b, target); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	policy := models.PolicyModerate
	if b.Listing != nil && b.Listing.CancellationPolicy != "" {
		policy = b.Listing.CancellationPolicy
	}
	result := CalculateRefund(b, policy, role, now)

	refund := result.RefundToGuest
	if refund > b.Pricing.TotalAmount {
		refund = b.Pricing.TotalAmount
		result.RefundToGuest = refund
	}
	if refund < 0 {
		refund = 0
		result.RefundToGuest = 0
	}

	b.CancelledBy = role
	b.CancelledAt = &now
	b.CancelReason = reason
	b.RefundAmount = refund
	b.CancellationFee = roundMoney(b.Pricing.TotalAmount - refund)

	paymentCaptured := b.Payment.Status == models.PaymentPaid
	if paymentCaptured && refund > 0 {
		// same threshold as the escrow's full-refund branch
		if refund >= b.Pricing.TotalAmount {
			b.Payment.Status = models.PaymentRefunded
		} else {
			b.Payment.Status = models.PaymentPartiallyRefunded
		}
		b.Payment.RefundAmount = refund
		b.Payment.RefundedAt = &now
		if raw, mErr := marshalRefundBreakdown(result); mErr == nil {
			b.Payment.RefundBreakdown = raw
		}
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(b).Error; err != nil {
			return err
		}
		if paymentCaptured {
			if _, err := s.Escrows.ProcessCancellationRefund(tx, b.ID, result, actorID); err != nil {
				if !errors.Is(err, ErrNotFound) {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// DeletePending hard-deletes a booking. Only unpaid pending requests may be
// removed; anything that has seen money is soft-cancelled instead.
func (s *BookingService) DeletePending(guestID, bookingID uint) error {
	b, err := s.Get(bookingID)
	if err != nil {
		return err
	}
	if b.GuestID != guestID {
		return ErrForbidden
	}
	if b.Status != models.BookingPending || b.Payment.Status == models.PaymentPaid {
		return validationErrorf("only unpaid pending bookings can be deleted")
	}
	return s.DB.Unscoped().Delete(b).Error
}

// ExpireSweep moves pending requests past their host-response deadline to
// expired and flags reminders for deadlines closing within six hours.
// Returns the bookings newly flagged so the caller can notify their hosts
// exactly once. Driven by an external scheduler.
func (s *BookingService) ExpireSweep() (expired int, reminded []models.Booking) {
	now := time.Now().UTC()

	var overdue []models.Booking
	if err := s.DB.Where("status = ? AND host_response_deadline IS NOT NULL AND host_response_deadline < ?",
		models.BookingPending, now).Find(&overdue).Error; err != nil {
		log.Printf("expire sweep query failed: %v", err)
		return 0, nil
	}
	for i := range overdue {
		b := &overdue[i]
		b.Status = models.BookingExpired
		b.AutoExpired = true
		if err := s.DB.Save(b).Error; err != nil {
			log.Printf("expire sweep: booking %d: %v", b.ID, err)
			continue
		}
		expired++
	}

	var closing []models.Booking
	if err := s.DB.Preload("Listing").Preload("Guest").
		Where("status = ? AND host_reminder_sent = ? AND host_response_deadline IS NOT NULL AND host_response_deadline < ?",
			models.BookingPending, false, now.Add(6*time.Hour)).Find(&closing).Error; err != nil {
		return expired, nil
	}
	for i := range closing {
		b := &closing[i]
		b.HostReminderSent = true
		if err := s.DB.Save(b).Error; err != nil {
			continue
		}
		reminded = append(reminded, *b)
	}
	return expired, reminded
}

// MarkDisputed moves a booking to disputed and freezes its escrow. Admin
// only; this is the one path allowed to leave a terminal status.
func (s *BookingService) MarkDisputed(adminID, bookingID uint, reason string) (*models.Booking, error) {
	b, err := s.Get(bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BookingDisputed {
		return nil, &InvalidTransitionError{From: b.Status, To: models.BookingDisputed}
	}

	b.Status = models.BookingDisputed
	if err := s.DB.Save(b).Error; err != nil {
		return nil, err
	}

	var escrow models.Escrow
	if err := s.DB.Where("booking_id = ?", b.ID).First(&escrow).Error; err == nil && escrow.Status == models.EscrowHeld {
		if _, fErr := s.Escrows.FreezeEscrow(escrow.ID, reason, adminID); fErr != nil {
			log.Printf("freeze escrow for disputed booking %d failed: %v", b.ID, fErr)
		}
	}
	return b, nil
}
