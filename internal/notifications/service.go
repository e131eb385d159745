package notifications

import (
	"go.uber.org/zap"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
)

// Broadcaster fans an event out to connected clients. Implemented by the
// websocket manager; a nil-safe no-op is acceptable in workers.
type Broadcaster interface {
	Broadcast(event Event) error
	ConnectionCount() int
}

// Service turns credit lifecycle changes into dashboard events. It
// implements the publisher interface the credit services expect; every
// publish is fire-and-forget.
type Service struct {
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewService creates a new notifications service
func NewService(broadcaster Broadcaster, logger *zap.Logger) *Service {
	return &Service{broadcaster: broadcaster, logger: logger}
}

// PublishCreditEvent broadcasts a lifecycle event. Delivery failures are
// logged and dropped; notifications never affect the operation that
// produced them.
func (s *Service) PublishCreditEvent(eventType string, credit *credits.Credit, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		CreditID:  credit.ID.String(),
		Status:    string(credit.Status),
		Volume:    credit.Volume,
		Data:      data,
		Timestamp: credit.UpdatedAt,
	}

	if err := s.broadcaster.Broadcast(event); err != nil {
		s.logger.Warn("Dropped credit event",
			zap.String("type", eventType),
			zap.String("credit_id", event.CreditID),
			zap.Error(err))
	}
}
