package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/storage"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

// DefaultMinPayout applies when PAYOUT_MIN_AMOUNT is unset.
const DefaultMinPayout = 1000.0

// PayoutService handles host withdrawal requests against released escrow
// earnings.
type PayoutService struct {
	DB *gorm.DB
}

func NewPayoutService(db *gorm.DB) *PayoutService {
	return &PayoutService{DB: db}
}

func minPayoutAmount() float64 {
	if raw := os.Getenv("PAYOUT_MIN_AMOUNT"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return v
		}
	}
	return DefaultMinPayout
}

// PayoutCurrencies are the settlement currencies payouts exist in, matching
// the two payment rails. Balances never mix currencies.
var PayoutCurrencies = []string{"DZD", "EUR"}

// AvailableBalance is a host's released escrow earnings in one settlement
// currency minus every payout in that currency that has not failed. The
// dispute-resolved host portion overrides the original host share when
// present.
func (s *PayoutService) AvailableBalance(hostID uint, currency string) (float64, error) {
	return s.availableBalance(s.DB, hostID, currency)
}

func (s *PayoutService) availableBalance(tx *gorm.DB, hostID uint, currency string) (float64, error) {
	var escrows []models.Escrow
	if err := tx.Where("payee_id = ? AND status = ? AND currency = ?", hostID, models.EscrowReleased, currency).
		Find(&escrows).Error; err != nil {
		return 0, err
	}

	var earned float64
	for i := range escrows {
		e := &escrows[i]
		if e.ResolutionHostPortion != nil {
			earned += *e.ResolutionHostPortion
		} else {
			earned += e.HostAmount
		}
	}

	var withdrawn float64
	err := tx.Model(&models.Payout{}).
		Where("host_id = ? AND currency = ? AND status IN ?", hostID, currency, models.InFlightPayoutStatuses()).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&withdrawn).Error
	if err != nil {
		return 0, err
	}

	return roundMoney(earned - withdrawn), nil
}

// validRIB checks the Algerian bank identity format: exactly 20 digits.
func validRIB(rib string) bool {
	if len(rib) != 20 {
		return false
	}
	for _, r := range rib {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// RequestPayout creates a pending withdrawal in one settlement currency
// after checking the host's balance in that currency. The balance check and
// the insert run under a per-host redis lock plus a transaction so two
// concurrent requests cannot both pass against the same earnings.
func (s *PayoutService) RequestPayout(hostID uint, amount float64, currency string) (*models.Payout, error) {
	if currency == "" {
		currency = "DZD"
	}
	if !slices.Contains(PayoutCurrencies, currency) {
		return nil, validationErrorf("unsupported payout currency %q", currency)
	}
	if amount <= 0 {
		return nil, validationErrorf("payout amount must be positive")
	}
	if min := minPayoutAmount(); amount < min {
		return nil, validationErrorf("payout amount is below the %.0f minimum", min)
	}

	var host models.User
	if err := s.DB.First(&host, hostID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if host.BankName == "" || host.AccountHolderName == "" {
		return nil, validationErrorf("bank details are not configured")
	}
	if !validRIB(host.RIB) {
		return nil, validationErrorf("RIB must be exactly 20 digits")
	}

	lockKey := fmt.Sprintf("payout:host:%d", hostID)
	ctx := context.Background()
	if !storage.AcquireLock(ctx, lockKey, 10*time.Second) {
		return nil, validationErrorf("another payout request is in progress")
	}
	defer storage.ReleaseLock(ctx, lockKey)

	var payout *models.Payout
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		balance, err := s.availableBalance(tx, hostID, currency)
		if err != nil {
			return err
		}
		if amount > balance {
			return fmt.Errorf("%w: requested %.2f, available %.2f %s", ErrInsufficientBalance, amount, balance, currency)
		}

		payout = &models.Payout{
			HostID:            hostID,
			Amount:            amount,
			Currency:          currency,
			BankName:          host.BankName,
			AccountHolderName: host.AccountHolderName,
			AccountNumber:     host.AccountNumber,
			RIB:               host.RIB,
			SwiftCode:         host.SwiftCode,
			Status:            models.PayoutPending,
			RequestedAt:       time.Now().UTC(),
		}
		return tx.Create(payout).Error
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *PayoutService) Get(id uint) (*models.Payout, error) {
	var p models.Payout
	if err := s.DB.Preload("Host").First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CancelPayout lets the host withdraw a request that has not started
// processing.
func (s *PayoutService) CancelPayout(hostID, payoutID uint) (*models.Payout, error) {
	p, err := s.Get(payoutID)
	if err != nil {
		return nil, err
	}
	if p.HostID != hostID {
		return nil, ErrForbidden
	}
	if err := s.conditionalStatus(p, models.PayoutCancelled, models.PayoutPending); err != nil {
		return nil, err
	}
	return p, nil
}

// StartProcessing moves a pending payout to processing.
func (s *PayoutService) StartProcessing(payoutID uint) (*models.Payout, error) {
	p, err := s.Get(payoutID)
	if err != nil {
		return nil, err
	}
	if err := s.conditionalStatus(p, models.PayoutProcessing, models.PayoutPending); err != nil {
		return nil, err
	}
	return p, nil
}

// CompletePayout records the bank transfer as done, stamping a transaction
// reference.
func (s *PayoutService) CompletePayout(payoutID uint) (*models.Payout, error) {
	p, err := s.Get(payoutID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res := s.DB.Model(&models.Payout{}).
		Where("id = ? AND status = ?", p.ID, models.PayoutProcessing).
		Updates(map[string]interface{}{
			"status":         models.PayoutCompleted,
			"processed_at":   now,
			"transaction_id": uuid.NewString(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, validationErrorf("payout %d is not processing", p.ID)
	}
	return s.Get(p.ID)
}

// RejectPayout declines a pending or processing request, returning the
// amount to the host's available balance by leaving no in-flight row.
func (s *PayoutService) RejectPayout(payoutID uint, reason string) (*models.Payout, error) {
	p, err := s.Get(payoutID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res := s.DB.Model(&models.Payout{}).
		Where("id = ? AND status IN ?", p.ID, []string{models.PayoutPending, models.PayoutProcessing}).
		Updates(map[string]interface{}{
			"status":        models.PayoutRejected,
			"processed_at":  now,
			"reject_reason": reason,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, validationErrorf("payout %d cannot be rejected from its current status", p.ID)
	}
	return s.Get(p.ID)
}

// conditionalStatus flips status only when the row is still in the expected
// state, guarding against concurrent admin actions.
func (s *PayoutService) conditionalStatus(p *models.Payout, to string, from ...string) error {
	res := s.DB.Model(&models.Payout{}).
		Where("id = ? AND status IN ?", p.ID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return validationErrorf("payout %d is no longer %s", p.ID, from[0])
	}
	p.Status = to
	return nil
}
