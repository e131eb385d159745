package auth

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a user's account type. Authorization decisions never branch on
// the role itself; they go through the capability set it grants.
type Role string

const (
	RoleProducer Role = "producer"
	RoleBuyer    Role = "buyer"
	RoleAuditor  Role = "auditor"
)

// Capability is a single permitted action
type Capability string

const (
	CapIssue    Capability = "issue"
	CapPurchase Capability = "purchase"
	CapRetire   Capability = "retire"
	CapAudit    Capability = "audit"
)

// roleCapabilities grants each role its action set. Producers trade and
// retire their own output; buyers trade and retire what they hold;
// auditors read everything and mutate nothing.
var roleCapabilities = map[Role][]Capability{
	RoleProducer: {CapIssue, CapPurchase, CapRetire},
	RoleBuyer:    {CapPurchase, CapRetire},
	RoleAuditor:  {CapAudit},
}

// ValidRole reports whether r is a known role
func ValidRole(r Role) bool {
	_, ok := roleCapabilities[r]
	return ok
}

// User is a registered account
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `json:"name"`
	Role         Role      `gorm:"not null" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Capabilities returns the action set granted by the user's role
func (u *User) Capabilities() []Capability {
	return roleCapabilities[u.Role]
}

// Can reports whether the user's role grants a capability
func (u *User) Can(cap Capability) bool {
	for _, c := range roleCapabilities[u.Role] {
		if c == cap {
			return true
		}
	}
	return false
}

// RegisterRequest is the payload for account creation
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Role     Role   `json:"role" binding:"required"`
}

// LoginRequest is the payload for authentication
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse carries a signed session token and its subject
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
