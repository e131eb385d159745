package credits

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnchorClient records issuance on the external registry and returns a
// transaction reference. Implementations may return synthetic references
// when anchoring is disabled.
type AnchorClient interface {
	AnchorIssuance(ctx context.Context, creditID uuid.UUID, volume float64) (string, error)
}

// EventPublisher pushes credit lifecycle events to connected dashboard
// clients. Best effort; failures never affect the operation itself.
type EventPublisher interface {
	PublishCreditEvent(eventType string, credit *Credit, data map[string]interface{})
}

// Service provides credit issuance and portfolio queries
type Service struct {
	store     Store
	anchor    AnchorClient
	publisher EventPublisher
	logger    *zap.Logger
}

// NewService creates a new credits service
func NewService(store Store, anchor AnchorClient, publisher EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		anchor:    anchor,
		publisher: publisher,
		logger:    logger,
	}
}

// Issue creates a new credit held by its producer with status "issued"
// and appends the issuance transaction.
func (s *Service) Issue(ctx context.Context, producerID uuid.UUID, req *IssueRequest) (*Credit, error) {
	if req.Volume <= 0 {
		return nil, fmt.Errorf("volume must be positive, got %v", req.Volume)
	}

	attrs := map[string]interface{}{}
	for k, v := range req.Metadata {
		attrs[k] = v
	}
	if req.ProductionMethod != "" {
		attrs["production_method"] = req.ProductionMethod
	}
	metadata, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	now := time.Now()
	credit := &Credit{
		ID:         uuid.New(),
		ProducerID: producerID,
		OwnerID:    producerID,
		Volume:     req.Volume,
		Status:     CreditStatusIssued,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	reference := ""
	if req.Anchor && s.anchor != nil {
		reference, err = s.anchor.AnchorIssuance(ctx, credit.ID, credit.Volume)
		if err != nil {
			// Anchoring is best effort: the credit is still issued, just
			// without the verification premium.
			s.logger.Warn("Registry anchoring failed, issuing unanchored credit",
				zap.String("credit_id", credit.ID.String()),
				zap.Error(err))
			reference = ""
		}
		if reference != "" {
			credit.BlockchainReference = &reference
		}
	}

	if err := s.store.CreateCredit(ctx, credit); err != nil {
		return nil, fmt.Errorf("failed to issue credit: %w", err)
	}

	txn := &Transaction{
		ID:                uuid.New(),
		CreditID:          credit.ID,
		ToOwnerID:         &producerID,
		Type:              TransactionTypeIssue,
		Volume:            credit.Volume,
		ExternalReference: reference,
		CreatedAt:         now,
	}
	if err := s.store.InsertTransaction(ctx, txn); err != nil {
		// The credit exists; a missing issuance audit row is logged, not fatal.
		s.logger.Error("Failed to record issuance transaction",
			zap.String("credit_id", credit.ID.String()),
			zap.Error(err))
	}

	if s.publisher != nil {
		s.publisher.PublishCreditEvent("credit.issued", credit, map[string]interface{}{
			"producer_id": producerID.String(),
		})
	}

	s.logger.Info("Credit issued",
		zap.String("credit_id", credit.ID.String()),
		zap.String("producer_id", producerID.String()),
		zap.Float64("volume", credit.Volume),
		zap.Bool("anchored", credit.Verified()))

	return credit, nil
}

// Get retrieves a credit by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Credit, error) {
	return s.store.GetCredit(ctx, id)
}

// ListMarketplace lists credits available for purchase
func (s *Service) ListMarketplace(ctx context.Context, page, pageSize int) ([]*Credit, int, error) {
	status := CreditStatusIssued
	return s.list(ctx, &CreditFilters{Status: &status, Page: page, PageSize: pageSize})
}

// ListPortfolio lists credits held by an owner
func (s *Service) ListPortfolio(ctx context.Context, ownerID uuid.UUID, page, pageSize int) ([]*Credit, int, error) {
	return s.list(ctx, &CreditFilters{OwnerID: &ownerID, Page: page, PageSize: pageSize})
}

func (s *Service) list(ctx context.Context, filters *CreditFilters) ([]*Credit, int, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}
	return s.store.ListCredits(ctx, filters)
}

// History returns the transaction ledger for one credit
func (s *Service) History(ctx context.Context, creditID uuid.UUID) ([]*Transaction, error) {
	if _, err := s.store.GetCredit(ctx, creditID); err != nil {
		return nil, err
	}
	txns, _, err := s.store.ListTransactions(ctx, &TransactionFilters{
		CreditID: &creditID,
		Page:     1,
		PageSize: 100,
	})
	return txns, err
}
