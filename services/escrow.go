package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gallhort/Baytup-sub000/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Escrow release triggers recorded in history.
const (
	ReleaseTriggerCompleted   = "booking_completed"
	ReleaseTriggerAutoWindow  = "auto_release_window"
	ReleaseTriggerAdminManual = "admin_manual"
)

// EscrowService owns the custody record of each paid booking. Every mutation
// appends to the escrow's history inside the same transaction as the status
// change, so the audit trail can never diverge from the state.
type EscrowService struct {
	DB *gorm.DB
}

func NewEscrowService(db *gorm.DB) *EscrowService {
	return &EscrowService{DB: db}
}

func (s *EscrowService) Get(id uint) (*models.Escrow, error) {
	var e models.Escrow
	if err := s.DB.Preload("Booking").First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// CreateEscrow opens the custody record for a paid booking. Idempotent: the
// payment poll and the provider webhook may race to confirm the same
// payment, so an existing escrow for the booking is returned unchanged.
func (s *EscrowService) CreateEscrow(tx *gorm.DB, b *models.Booking, actorID uint) (*models.Escrow, error) {
	db := tx
	if db == nil {
		db = s.DB
	}

	var existing models.Escrow
	err := db.Where("booking_id = ?", b.ID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hostAmount := b.Pricing.HostPayout
	total := b.Pricing.TotalAmount
	escrow := models.Escrow{
		BookingID:      b.ID,
		PayerID:        b.GuestID,
		PayeeID:        b.HostID,
		Reference:      uuid.NewString(),
		Amount:         total,
		Currency:       b.Pricing.Currency,
		HostAmount:     hostAmount,
		PlatformAmount: roundMoney(total - hostAmount),
		OriginalTotal:  total,
		Status:         models.EscrowHeld,
	}
	escrow.AppendHistory(models.EscrowActionCreated, actorID, fmt.Sprintf("held %.2f %s for booking %d", total, escrow.Currency, b.ID))

	if err := db.Create(&escrow).Error; err != nil {
		// A concurrent confirmation may have won the unique index on
		// booking_id; treat that as the idempotent no-op it is.
		if findErr := db.Where("booking_id = ?", b.ID).First(&existing).Error; findErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &escrow, nil
}

// ReleaseFunds moves a held or frozen escrow to released, making the host
// amount part of the host's withdrawable earnings. Releasing an already
// released escrow is rejected, not silently accepted.
func (s *EscrowService) ReleaseFunds(escrowID uint, trigger string, actorID uint) (*models.Escrow, error) {
	var escrow models.Escrow
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&escrow, escrowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if escrow.Status != models.EscrowHeld && escrow.Status != models.EscrowFrozen {
			return &InvalidEscrowStateError{Current: escrow.Status, Requested: models.EscrowReleased}
		}

		now := time.Now().UTC()
		escrow.Status = models.EscrowReleased
		escrow.ReleasedAt = &now
		escrow.AppendHistory(models.EscrowActionReleased, actorID, "trigger: "+trigger)

		// Guard against a concurrent release winning between the read
		// and this write.
		res := tx.Model(&models.Escrow{}).
			Where("id = ? AND status IN ?", escrow.ID, []string{models.EscrowHeld, models.EscrowFrozen}).
			Updates(map[string]interface{}{
				"status":      escrow.Status,
				"released_at": escrow.ReleasedAt,
				"history":     escrow.History,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &InvalidEscrowStateError{Current: models.EscrowReleased, Requested: models.EscrowReleased}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

// FreezeEscrow suspends auto-release while a dispute is investigated. Valid
// only from held.
func (s *EscrowService) FreezeEscrow(escrowID uint, reason string, actorID uint) (*models.Escrow, error) {
	var escrow models.Escrow
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&escrow, escrowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if escrow.Status != models.EscrowHeld {
			return &InvalidEscrowStateError{Current: escrow.Status, Requested: models.EscrowFrozen}
		}

		now := time.Now().UTC()
		escrow.Status = models.EscrowFrozen
		escrow.FrozenAt = &now
		escrow.DisputeReason = reason
		escrow.DisputeOpenedBy = actorID
		escrow.AppendHistory(models.EscrowActionFrozen, actorID, reason)

		res := tx.Model(&models.Escrow{}).
			Where("id = ? AND status = ?", escrow.ID, models.EscrowHeld).
			Updates(map[string]interface{}{
				"status":            escrow.Status,
				"frozen_at":         escrow.FrozenAt,
				"dispute_reason":    escrow.DisputeReason,
				"dispute_opened_by": escrow.DisputeOpenedBy,
				"history":           escrow.History,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &InvalidEscrowStateError{Current: escrow.Status, Requested: models.EscrowFrozen}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

// ProcessCancellationRefund applies a refund decision against the held
// amount and releases the escrow. A refund consuming the full total empties
// it, released to the guest rather than the host. A partial refund rewrites
// the breakdown to the decided host and platform shares and releases the
// remainder right away: the booking is cancelled, so no completion trigger
// will ever fire for it and the host's compensation must not wait on one.
func (s *EscrowService) ProcessCancellationRefund(tx *gorm.DB, bookingID uint, r RefundResult, actorID uint) (*models.Escrow, error) {
	db := tx
	if db == nil {
		db = s.DB
	}

	var escrow models.Escrow
	if err := db.Where("booking_id = ?", bookingID).First(&escrow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if escrow.Status != models.EscrowHeld && escrow.Status != models.EscrowFrozen {
		return nil, &InvalidEscrowStateError{Current: escrow.Status, Requested: "refunded"}
	}

	refund := r.RefundToGuest
	if refund > escrow.OriginalTotal {
		// Never refund more than was held, whatever the calculator said.
		refund = escrow.OriginalTotal
	}

	escrow.RefundedAmount = refund
	escrow.HostAmount = r.HostReceives
	escrow.PlatformAmount = r.PlatformRetains
	escrow.AppendHistory(models.EscrowActionRefunded, actorID, r.Summary)

	now := time.Now().UTC()
	escrow.Status = models.EscrowReleased
	escrow.ReleasedAt = &now
	if refund >= escrow.OriginalTotal {
		escrow.HostAmount = 0
		escrow.PlatformAmount = 0
		escrow.AppendHistory(models.EscrowActionReleased, actorID, "released to guest: full refund")
	} else {
		escrow.AppendHistory(models.EscrowActionReleased, actorID, "released remainder after cancellation refund")
	}

	res := db.Model(&models.Escrow{}).
		Where("id = ? AND status IN ?", escrow.ID, []string{models.EscrowHeld, models.EscrowFrozen}).
		Updates(map[string]interface{}{
			"status":          escrow.Status,
			"released_at":     escrow.ReleasedAt,
			"refunded_amount": escrow.RefundedAmount,
			"host_amount":     escrow.HostAmount,
			"platform_amount": escrow.PlatformAmount,
			"history":         escrow.History,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &InvalidEscrowStateError{Current: escrow.Status, Requested: "refunded"}
	}
	return &escrow, nil
}

// ResolveDispute splits the held host amount between host and guest and
// releases the escrow. hostPortion + guestPortion must not exceed the held
// host amount: a resolution cannot manufacture money.
func (s *EscrowService) ResolveDispute(escrowID uint, hostPortion, guestPortion float64, resolvedBy uint, notes string) (*models.Escrow, error) {
	if hostPortion < 0 || guestPortion < 0 {
		return nil, validationErrorf("dispute portions must be non-negative")
	}

	var escrow models.Escrow
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&escrow, escrowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if escrow.Status != models.EscrowFrozen && escrow.Status != models.EscrowHeld {
			return &InvalidEscrowStateError{Current: escrow.Status, Requested: models.EscrowReleased}
		}
		if hostPortion+guestPortion > escrow.HostAmount {
			return validationErrorf("split %.2f + %.2f exceeds held host amount %.2f", hostPortion, guestPortion, escrow.HostAmount)
		}

		now := time.Now().UTC()
		escrow.Status = models.EscrowReleased
		escrow.ReleasedAt = &now
		escrow.ResolutionHostPortion = &hostPortion
		escrow.ResolutionGuestPortion = &guestPortion
		escrow.ResolvedBy = resolvedBy
		escrow.ResolutionNotes = notes
		escrow.AppendHistory(models.EscrowActionResolved, resolvedBy,
			fmt.Sprintf("host %.2f / guest %.2f: %s", hostPortion, guestPortion, notes))

		res := tx.Model(&models.Escrow{}).
			Where("id = ? AND status IN ?", escrow.ID, []string{models.EscrowHeld, models.EscrowFrozen}).
			Updates(map[string]interface{}{
				"status":                   escrow.Status,
				"released_at":              escrow.ReleasedAt,
				"resolution_host_portion":  escrow.ResolutionHostPortion,
				"resolution_guest_portion": escrow.ResolutionGuestPortion,
				"resolved_by":              escrow.ResolvedBy,
				"resolution_notes":         escrow.ResolutionNotes,
				"history":                  escrow.History,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &InvalidEscrowStateError{Current: escrow.Status, Requested: models.EscrowReleased}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

// AutoReleaseSweep releases held escrows whose booking completed more than
// window ago. Driven by an external scheduler hitting the sweep endpoint.
func (s *EscrowService) AutoReleaseSweep(window time.Duration) int {
	cutoff := time.Now().UTC().Add(-window)

	var escrows []models.Escrow
	if err := s.DB.
		Joins("JOIN bookings ON bookings.id = escrows.booking_id").
		Where("escrows.status = ? AND bookings.status = ? AND bookings.completed_at <= ?",
			models.EscrowHeld, models.BookingCompleted, cutoff).
		Find(&escrows).Error; err != nil {
		log.Printf("escrow sweep query failed: %v", err)
		return 0
	}

	released := 0
	for i := range escrows {
		if _, err := s.ReleaseFunds(escrows[i].ID, ReleaseTriggerAutoWindow, 0); err != nil {
			log.Printf("escrow sweep: release %d failed: %v", escrows[i].ID, err)
			continue
		}
		released++
	}
	return released
}
