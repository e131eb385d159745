package credits

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Credit represents a tradeable claim over a quantity of certified green
// hydrogen production.
type Credit struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProducerID uuid.UUID `json:"producer_id" gorm:"type:uuid;not null;index"`
	OwnerID    uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`

	// Volume is kilograms of hydrogen equivalent.
	Volume float64      `json:"volume" gorm:"type:decimal(12,4);not null"`
	Status CreditStatus `json:"status" gorm:"default:'issued';index"`

	// BlockchainReference is the optional registry anchor transaction
	// reference. Its presence drives the verification pricing premium.
	BlockchainReference *string `json:"blockchain_reference" gorm:"index"`

	// Metadata carries free-form attributes, including production_method
	// and the retirement_reason appended on retirement.
	Metadata datatypes.JSON `json:"metadata" gorm:"default:'{}'"`

	RetiredAt *time.Time `json:"retired_at"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// CreditStatus represents the lifecycle status of a credit
type CreditStatus string

const (
	CreditStatusIssued  CreditStatus = "issued"
	CreditStatusOwned   CreditStatus = "owned"
	CreditStatusRetired CreditStatus = "retired"
)

// ProductionMethod extracts the production_method metadata attribute,
// lower-cased. Empty when absent or when metadata is malformed.
func (c *Credit) ProductionMethod() string {
	if len(c.Metadata) == 0 {
		return ""
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(c.Metadata, &attrs); err != nil {
		return ""
	}
	method, _ := attrs["production_method"].(string)
	return strings.ToLower(strings.TrimSpace(method))
}

// Verified reports whether the credit carries a registry anchor reference.
func (c *Credit) Verified() bool {
	return c.BlockchainReference != nil && *c.BlockchainReference != ""
}

// Transaction is an immutable audit record of a credit lifecycle event.
// One credit has many transactions, append-only.
type Transaction struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreditID uuid.UUID `json:"credit_id" gorm:"type:uuid;not null;index"`

	// FromOwnerID is nil for issuance, ToOwnerID is nil for retirement.
	FromOwnerID *uuid.UUID `json:"from_owner_id" gorm:"type:uuid"`
	ToOwnerID   *uuid.UUID `json:"to_owner_id" gorm:"type:uuid"`

	Type   TransactionType `json:"type" gorm:"not null;index"`
	Volume float64         `json:"volume" gorm:"type:decimal(12,4);not null"`

	// Price is the agreed total price for transfer transactions.
	Price *float64 `json:"price" gorm:"type:decimal(14,2)"`

	// ExternalReference is the registry anchor reference, possibly synthetic.
	ExternalReference string `json:"external_reference"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TransactionType represents the kind of lifecycle event recorded
type TransactionType string

const (
	TransactionTypeIssue    TransactionType = "issue"
	TransactionTypeTransfer TransactionType = "transfer"
	TransactionTypeRetire   TransactionType = "retire"
)

// BeforeCreate hook for UUID generation
func (c *Credit) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IssueRequest is the payload for issuing a new credit
type IssueRequest struct {
	Volume           float64                `json:"volume" binding:"required,gt=0"`
	ProductionMethod string                 `json:"production_method"`
	Metadata         map[string]interface{} `json:"metadata"`
	Anchor           bool                   `json:"anchor"`
}

// CreditFilters narrows credit listings
type CreditFilters struct {
	Status  *CreditStatus
	OwnerID *uuid.UUID
	Page    int
	PageSize int
}

// TransactionFilters narrows ledger listings
type TransactionFilters struct {
	CreditID      *uuid.UUID
	Type          *TransactionType
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Page          int
	PageSize      int
}

// LedgerStats aggregates marketplace-wide figures for the dashboard
type LedgerStats struct {
	CreditsByStatus map[CreditStatus]int64   `json:"credits_by_status"`
	VolumeByStatus  map[CreditStatus]float64 `json:"volume_by_status"`
	TradedValue     float64                  `json:"traded_value"`
	TransactionCount int64                   `json:"transaction_count"`
	ComputedAt      time.Time                `json:"computed_at"`
}
