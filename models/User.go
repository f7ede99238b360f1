package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email" gorm:"uniqueIndex"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"-"`
	AvatarURL   string `json:"avatarURL"`

	// Bank details used to snapshot payout destinations.
	BankName          string `json:"bankName" gorm:"size:100"`
	AccountHolderName string `json:"accountHolderName" gorm:"size:100"`
	AccountNumber     string `json:"accountNumber" gorm:"size:34"`
	RIB               string `json:"rib" gorm:"size:20"`
	SwiftCode         string `json:"swiftCode" gorm:"size:11"`

	PushTokens          datatypes.JSON `json:"pushTokens"`
	AllowsNotifications *bool          `json:"allowsNotifications"`

	Role string `json:"role" gorm:"type:varchar(20);default:user;index"` // user, host, admin, super_admin

	Listings []Listing `json:"listings,omitempty" gorm:"foreignKey:HostID;references:ID"`
}

// MarshalJSON flattens the PushTokens JSON column into a string slice.
func (u *User) MarshalJSON() ([]byte, error) {
	type Alias User
	aux := &struct {
		PushTokens []string `json:"pushTokens,omitempty"`
		*Alias
	}{
		PushTokens: []string{},
		Alias:      (*Alias)(u),
	}

	if u.PushTokens != nil {
		var tokens []string
		if err := json.Unmarshal(u.PushTokens, &tokens); err == nil {
			aux.PushTokens = tokens
		}
	}

	return json.Marshal(aux)
}
