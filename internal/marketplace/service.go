package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
	"hydrogen-ledger/credit-portal/credit-portal-backend/pkg/lifecycle"
)

// ErrNoLongerAvailable is returned when another buyer won the race for a
// credit between the read and the conditional update. Safe to surface
// directly; the credit simply is not for sale anymore.
var ErrNoLongerAvailable = errors.New("credit no longer available")

// CertificateIssuer produces a retirement certificate document and
// returns its storage URL. Best effort.
type CertificateIssuer interface {
	IssueCertificate(ctx context.Context, credit *credits.Credit, txn *credits.Transaction, reason string) (string, error)
}

// Service orchestrates purchases and retirements over the credit store.
// Every store call runs under its own deadline so a hung database
// connection fails the request instead of wedging it.
type Service struct {
	store        credits.Store
	publisher    credits.EventPublisher
	certificates CertificateIssuer
	transitions  *lifecycle.StateMachine
	logger       *zap.Logger

	// privileged marks a trusted server-side execution context where the
	// access-control bypass path may be used. Never set for code serving
	// untrusted callers directly against the store.
	privileged   bool
	storeTimeout time.Duration
}

// Options configures the marketplace service
type Options struct {
	Privileged   bool
	StoreTimeout time.Duration
}

// NewService creates a new marketplace service
func NewService(store credits.Store, publisher credits.EventPublisher, certificates CertificateIssuer, logger *zap.Logger, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 15 * time.Second
	}
	return &Service{
		store:        store,
		publisher:    publisher,
		certificates: certificates,
		transitions:  lifecycle.NewStateMachine(),
		logger:       logger,
		privileged:   opts.Privileged,
		storeTimeout: opts.StoreTimeout,
	}
}

// PurchaseResult reports the outcome of a purchase. Transferred is false
// when the sale was recorded but the ownership row could not be mutated
// (access control rejected every path); callers must display that state
// honestly.
type PurchaseResult struct {
	Credit      *credits.Credit      `json:"credit"`
	Transferred bool                 `json:"transferred"`
	Transaction *credits.Transaction `json:"transaction"`
	Quote       *PriceQuote          `json:"quote"`
}

// RetireResult reports the outcome of a retirement
type RetireResult struct {
	Credit         *credits.Credit      `json:"credit"`
	Transaction    *credits.Transaction `json:"transaction"`
	CertificateURL string               `json:"certificate_url,omitempty"`
}

// Quote prices a credit without mutating anything
func (s *Service) Quote(ctx context.Context, creditID uuid.UUID) (*PriceQuote, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	credit, err := s.store.GetCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	return CalculatePrice(credit), nil
}

// Purchase attempts to move a credit from its current owner to the buyer.
//
// Preconditions are validated before any mutation: the credit must exist,
// must be in status "issued", and the buyer must not already own it. The
// ownership mutation is a conditional update keyed on the owner and
// status read here; losing that race surfaces as ErrNoLongerAvailable.
//
// When access control rejects the direct update, the privileged path is
// tried if available; failing that, the sale is still recorded in the
// ledger with Transferred=false. Exactly one transfer transaction is
// appended for every completed purchase, whichever path carried it.
func (s *Service) Purchase(ctx context.Context, creditID, buyerID uuid.UUID) (*PurchaseResult, error) {
	readCtx, cancel := s.storeCtx(ctx)
	credit, err := s.store.GetCredit(readCtx, creditID)
	cancel()
	if err != nil {
		return nil, err
	}

	if credit.Status != credits.CreditStatusIssued {
		return nil, credits.NewInvalidStateError("purchase", credit.Status)
	}
	if credit.OwnerID == buyerID {
		return nil, credits.ErrSelfPurchase
	}

	quote := CalculatePrice(credit)
	sellerID := credit.OwnerID

	transferred, err := s.attemptTransfer(ctx, credit, buyerID)
	if err != nil {
		return nil, err
	}

	if transferred {
		credit.OwnerID = buyerID
		credit.Status = credits.CreditStatusOwned
	} else {
		s.logger.Warn("Sale recorded without ownership transfer; access control rejected every mutation path",
			zap.String("credit_id", credit.ID.String()),
			zap.String("buyer_id", buyerID.String()))
	}

	reference := ""
	if credit.BlockchainReference != nil {
		reference = *credit.BlockchainReference
	}
	txn := &credits.Transaction{
		ID:                uuid.New(),
		CreditID:          credit.ID,
		FromOwnerID:       &sellerID,
		ToOwnerID:         &buyerID,
		Type:              credits.TransactionTypeTransfer,
		Volume:            credit.Volume,
		Price:             &quote.TotalPrice,
		ExternalReference: reference,
		CreatedAt:         time.Now(),
	}

	insertCtx, cancel := s.storeCtx(ctx)
	err = s.store.InsertTransaction(insertCtx, txn)
	cancel()
	if err != nil {
		if !transferred {
			// Nothing mutated and nothing recorded: the purchase had no effect.
			return nil, fmt.Errorf("failed to record sale: %w", err)
		}
		// Ownership already moved; a missing audit row is logged, never
		// rolled back and never surfaced as a purchase failure.
		s.logger.Error("Failed to record transfer transaction after ownership mutation",
			zap.String("credit_id", credit.ID.String()),
			zap.String("buyer_id", buyerID.String()),
			zap.Error(err))
	}

	if s.publisher != nil {
		s.publisher.PublishCreditEvent("credit.transferred", credit, map[string]interface{}{
			"from_owner_id": sellerID.String(),
			"to_owner_id":   buyerID.String(),
			"total_price":   quote.TotalPrice,
			"transferred":   transferred,
		})
	}

	s.logger.Info("Purchase completed",
		zap.String("credit_id", credit.ID.String()),
		zap.String("buyer_id", buyerID.String()),
		zap.Float64("total_price", quote.TotalPrice),
		zap.Bool("transferred", transferred))

	return &PurchaseResult{
		Credit:      credit,
		Transferred: transferred,
		Transaction: txn,
		Quote:       quote,
	}, nil
}

// attemptTransfer runs the fallback chain: conditional update, then the
// privileged bypass when this context carries one, then recorded-only.
// Returns whether ownership actually moved.
func (s *Service) attemptTransfer(ctx context.Context, credit *credits.Credit, buyerID uuid.UUID) (bool, error) {
	directCtx, cancel := s.storeCtx(ctx)
	err := s.store.TransferOwnership(directCtx, credit.ID, credit.OwnerID, buyerID)
	cancel()

	switch {
	case err == nil:
		return true, nil

	case errors.Is(err, credits.ErrNoRowsMatched):
		// Another operation changed the row first. Not retried here: the
		// credit is gone from the caller's perspective.
		return false, ErrNoLongerAvailable

	case errors.Is(err, credits.ErrPermissionDenied):
		if !s.privileged {
			return false, nil
		}

		forceCtx, cancel := s.storeCtx(ctx)
		forced, ferr := s.store.ForceTransferOwnership(forceCtx, credit.ID, buyerID)
		cancel()

		switch {
		case ferr == nil:
			*credit = *forced
			return true, nil
		case errors.Is(ferr, credits.ErrNoRowsMatched):
			return false, ErrNoLongerAvailable
		default:
			s.logger.Warn("Privileged transfer path failed, recording sale only",
				zap.String("credit_id", credit.ID.String()),
				zap.Error(ferr))
			return false, nil
		}

	default:
		return false, fmt.Errorf("transfer failed: %w", err)
	}
}

// Retire permanently removes a credit from circulation. Only the current
// owner may retire, a retired credit stays retired, and every retirement
// appends exactly one retire transaction.
func (s *Service) Retire(ctx context.Context, creditID, callerID uuid.UUID, reason string) (*RetireResult, error) {
	readCtx, cancel := s.storeCtx(ctx)
	credit, err := s.store.GetCredit(readCtx, creditID)
	cancel()
	if err != nil {
		return nil, err
	}

	if credit.Status == credits.CreditStatusRetired {
		return nil, credits.ErrAlreadyRetired
	}
	if credit.OwnerID != callerID {
		return nil, credits.ErrNotOwner
	}
	if !s.transitions.CanTransition(string(credit.Status), string(credits.CreditStatusRetired)) {
		return nil, credits.NewInvalidStateError("retire", credit.Status)
	}

	updateCtx, cancel := s.storeCtx(ctx)
	updated, err := s.store.UpdateCreditStatus(updateCtx, creditID, credits.CreditStatusRetired, map[string]interface{}{
		"retirement_reason": reason,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to retire credit: %w", err)
	}

	txn := &credits.Transaction{
		ID:          uuid.New(),
		CreditID:    updated.ID,
		FromOwnerID: &callerID,
		Type:        credits.TransactionTypeRetire,
		Volume:      updated.Volume,
		CreatedAt:   time.Now(),
	}
	if updated.BlockchainReference != nil {
		txn.ExternalReference = *updated.BlockchainReference
	}

	insertCtx, cancel := s.storeCtx(ctx)
	err = s.store.InsertTransaction(insertCtx, txn)
	cancel()
	if err != nil {
		// Status already flipped; the missing audit row is logged only.
		s.logger.Error("Failed to record retirement transaction",
			zap.String("credit_id", updated.ID.String()),
			zap.Error(err))
	}

	certificateURL := ""
	if s.certificates != nil {
		certificateURL, err = s.certificates.IssueCertificate(ctx, updated, txn, reason)
		if err != nil {
			s.logger.Warn("Failed to issue retirement certificate",
				zap.String("credit_id", updated.ID.String()),
				zap.Error(err))
			certificateURL = ""
		}
	}

	if s.publisher != nil {
		s.publisher.PublishCreditEvent("credit.retired", updated, map[string]interface{}{
			"retired_by": callerID.String(),
			"reason":     reason,
		})
	}

	s.logger.Info("Credit retired",
		zap.String("credit_id", updated.ID.String()),
		zap.String("retired_by", callerID.String()),
		zap.String("reason", reason))

	return &RetireResult{
		Credit:         updated,
		Transaction:    txn,
		CertificateURL: certificateURL,
	}, nil
}

// Stats returns marketplace-wide aggregates for the dashboard
func (s *Service) Stats(ctx context.Context) (*credits.LedgerStats, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetLedgerStats(ctx)
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}
