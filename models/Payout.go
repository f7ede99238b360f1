package models

import (
	"time"

	"gorm.io/gorm"
)

// Payout statuses. pending -> processing -> completed is the normal path;
// pending -> rejected (admin) and pending -> cancelled (host) are terminal.
const (
	PayoutPending    = "pending"
	PayoutProcessing = "processing"
	PayoutCompleted  = "completed"
	PayoutRejected   = "rejected"
	PayoutCancelled  = "cancelled"
)

// Payout is a host's withdrawal request against their released-escrow
// earnings. Bank fields are snapshotted from the user at request time so a
// later account change cannot redirect an in-flight payout.
type Payout struct {
	gorm.Model
	HostID   uint    `json:"hostID" gorm:"index"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency" gorm:"size:8"`

	BankName          string `json:"bankName" gorm:"size:100"`
	AccountHolderName string `json:"accountHolderName" gorm:"size:100"`
	AccountNumber     string `json:"accountNumber" gorm:"size:34"`
	RIB               string `json:"rib" gorm:"size:20"`
	SwiftCode         string `json:"swiftCode" gorm:"size:11"`

	Status        string     `json:"status" gorm:"type:varchar(16);index"`
	RequestedAt   time.Time  `json:"requestedAt"`
	ProcessedAt   *time.Time `json:"processedAt"`
	TransactionID string     `json:"transactionID" gorm:"size:64"`
	RejectReason  string     `json:"rejectReason" gorm:"size:500"`

	Host *User `json:"host,omitempty" gorm:"foreignKey:HostID"`
}

// InFlightPayoutStatuses are the statuses that still count against a host's
// available balance. Subtracting pending and processing requests, not only
// completed ones, is what prevents two concurrent withdrawals from
// double-spending the same earnings.
func InFlightPayoutStatuses() []string {
	return []string{PayoutPending, PayoutProcessing, PayoutCompleted}
}
