package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Escrow statuses. held -> released is the normal path,
// held -> frozen -> released the dispute path.
const (
	EscrowHeld     = "held"
	EscrowFrozen   = "frozen"
	EscrowReleased = "released"
)

// Escrow history actions.
const (
	EscrowActionCreated       = "created"
	EscrowActionReleased      = "released"
	EscrowActionFrozen        = "frozen"
	EscrowActionRefunded      = "refunded"
	EscrowActionDisputeOpened = "dispute_opened"
	EscrowActionResolved      = "dispute_resolved"
)

// EscrowHistoryEntry is one line of the append-only audit trail kept on the
// escrow itself. Every state transition must append one.
type EscrowHistoryEntry struct {
	Action      string    `json:"action"`
	PerformedBy uint      `json:"performedBy"`
	Note        string    `json:"note"`
	At          time.Time `json:"at"`
}

// Escrow is the custody record for one paid booking (1:1). Funds are held
// logically until the stay completes, frozen on dispute, and split on
// dispute resolution. HostAmount + PlatformAmount == OriginalTotal at
// creation.
type Escrow struct {
	gorm.Model
	BookingID uint   `json:"bookingID" gorm:"uniqueIndex"`
	PayerID   uint   `json:"payerID" gorm:"index"` // guest
	PayeeID   uint   `json:"payeeID" gorm:"index"` // host
	Reference string `json:"reference" gorm:"size:64;uniqueIndex"`

	Amount   float64 `json:"amount"`
	Currency string  `json:"currency" gorm:"size:8"`

	HostAmount     float64 `json:"hostAmount"`
	PlatformAmount float64 `json:"platformAmount"`
	OriginalTotal  float64 `json:"originalTotal"`

	Status         string  `json:"status" gorm:"type:varchar(16);index"`
	RefundedAmount float64 `json:"refundedAmount"`

	History datatypes.JSON `json:"history"`

	DisputeReason   string `json:"disputeReason" gorm:"size:500"`
	DisputeOpenedBy uint   `json:"disputeOpenedBy"`

	ResolutionHostPortion  *float64 `json:"resolutionHostPortion"`
	ResolutionGuestPortion *float64 `json:"resolutionGuestPortion"`
	ResolvedBy             uint     `json:"resolvedBy"`
	ResolutionNotes        string   `json:"resolutionNotes" gorm:"size:500"`

	FrozenAt   *time.Time `json:"frozenAt"`
	ReleasedAt *time.Time `json:"releasedAt"`

	Booking *Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
}

// AppendHistory adds an entry to the escrow's audit trail. The caller is
// responsible for persisting the escrow afterwards.
func (e *Escrow) AppendHistory(action string, performedBy uint, note string) {
	var entries []EscrowHistoryEntry
	if e.History != nil {
		_ = json.Unmarshal(e.History, &entries)
	}
	entries = append(entries, EscrowHistoryEntry{
		Action:      action,
		PerformedBy: performedBy,
		Note:        note,
		At:          time.Now().UTC(),
	})
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	e.History = raw
}

// HistoryEntries decodes the audit trail.
func (e *Escrow) HistoryEntries() []EscrowHistoryEntry {
	var entries []EscrowHistoryEntry
	if e.History != nil {
		_ = json.Unmarshal(e.History, &entries)
	}
	return entries
}
