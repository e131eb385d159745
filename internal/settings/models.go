package settings

import (
	"time"

	"github.com/google/uuid"
)

// Preferences holds per-user dashboard settings
type Preferences struct {
	UserID             uuid.UUID `gorm:"type:uuid;primary_key" json:"user_id"`
	Timezone           string    `json:"timezone"`
	Currency           string    `json:"currency"`
	NotifyOnTransfer   bool      `json:"notify_on_transfer"`
	NotifyOnRetirement bool      `json:"notify_on_retirement"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultPreferences returns the settings a new account starts with
func DefaultPreferences(userID uuid.UUID) *Preferences {
	return &Preferences{
		UserID:             userID,
		Timezone:           "UTC",
		Currency:           "EUR",
		NotifyOnTransfer:   true,
		NotifyOnRetirement: true,
	}
}

// UpdateRequest is the payload for preference changes
type UpdateRequest struct {
	Timezone           *string `json:"timezone"`
	Currency           *string `json:"currency"`
	NotifyOnTransfer   *bool   `json:"notify_on_transfer"`
	NotifyOnRetirement *bool   `json:"notify_on_retirement"`
}
