package notifications

import (
	"time"
)

// Event types pushed to dashboard clients.
const (
	EventCreditIssued      = "credit.issued"
	EventCreditTransferred = "credit.transferred"
	EventCreditRetired     = "credit.retired"
)

// Event is one credit lifecycle notification. Data carries
// event-specific fields (buyer, price, retirement reason).
type Event struct {
	Type      string                 `json:"type"`
	CreditID  string                 `json:"credit_id"`
	Status    string                 `json:"status"`
	Volume    float64                `json:"volume"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
