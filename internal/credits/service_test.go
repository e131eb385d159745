package credits

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateCredit(ctx context.Context, credit *Credit) error {
	args := m.Called(ctx, credit)
	return args.Error(0)
}

func (m *mockStore) GetCredit(ctx context.Context, id uuid.UUID) (*Credit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Credit), args.Error(1)
}

func (m *mockStore) ListCredits(ctx context.Context, filters *CreditFilters) ([]*Credit, int, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*Credit), args.Int(1), args.Error(2)
}

func (m *mockStore) TransferOwnership(ctx context.Context, id, expectedOwner, newOwner uuid.UUID) error {
	args := m.Called(ctx, id, expectedOwner, newOwner)
	return args.Error(0)
}

func (m *mockStore) ForceTransferOwnership(ctx context.Context, id, newOwner uuid.UUID) (*Credit, error) {
	args := m.Called(ctx, id, newOwner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Credit), args.Error(1)
}

func (m *mockStore) UpdateCreditStatus(ctx context.Context, id uuid.UUID, status CreditStatus, patch map[string]interface{}) (*Credit, error) {
	args := m.Called(ctx, id, status, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Credit), args.Error(1)
}

func (m *mockStore) InsertTransaction(ctx context.Context, txn *Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *mockStore) ListTransactions(ctx context.Context, filters *TransactionFilters) ([]*Transaction, int, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*Transaction), args.Int(1), args.Error(2)
}

func (m *mockStore) GetLedgerStats(ctx context.Context) (*LedgerStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*LedgerStats), args.Error(1)
}

type mockAnchor struct {
	mock.Mock
}

func (m *mockAnchor) AnchorIssuance(ctx context.Context, creditID uuid.UUID, volume float64) (string, error) {
	args := m.Called(ctx, creditID, volume)
	return args.String(0), args.Error(1)
}

func TestIssue(t *testing.T) {
	store := new(mockStore)
	anchor := new(mockAnchor)
	svc := NewService(store, anchor, nil, zap.NewNop())
	producerID := uuid.New()

	anchor.On("AnchorIssuance", mock.Anything, mock.Anything, 75.5).Return("tx-ref-001", nil)
	store.On("CreateCredit", mock.Anything, mock.AnythingOfType("*credits.Credit")).Return(nil)
	store.On("InsertTransaction", mock.Anything, mock.AnythingOfType("*credits.Transaction")).Return(nil)

	credit, err := svc.Issue(context.Background(), producerID, &IssueRequest{
		Volume:           75.5,
		ProductionMethod: "Solar",
		Metadata:         map[string]interface{}{"site": "north-field"},
		Anchor:           true,
	})
	require.NoError(t, err)

	assert.Equal(t, producerID, credit.ProducerID)
	assert.Equal(t, producerID, credit.OwnerID, "producer holds the credit at issuance")
	assert.Equal(t, CreditStatusIssued, credit.Status)
	require.NotNil(t, credit.BlockchainReference)
	assert.Equal(t, "tx-ref-001", *credit.BlockchainReference)
	assert.Equal(t, "solar", credit.ProductionMethod())

	var attrs map[string]interface{}
	require.NoError(t, json.Unmarshal(credit.Metadata, &attrs))
	assert.Equal(t, "north-field", attrs["site"])

	store.AssertCalled(t, "InsertTransaction", mock.Anything, mock.MatchedBy(func(txn *Transaction) bool {
		return txn.Type == TransactionTypeIssue && txn.ToOwnerID != nil && *txn.ToOwnerID == producerID
	}))
}

func TestIssueRejectsNonPositiveVolume(t *testing.T) {
	svc := NewService(new(mockStore), nil, nil, zap.NewNop())

	for _, volume := range []float64{0, -1} {
		_, err := svc.Issue(context.Background(), uuid.New(), &IssueRequest{Volume: volume})
		assert.Error(t, err)
	}
}

func TestIssueAnchoringFailureIsNonFatal(t *testing.T) {
	store := new(mockStore)
	anchor := new(mockAnchor)
	svc := NewService(store, anchor, nil, zap.NewNop())

	anchor.On("AnchorIssuance", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("registry unreachable"))
	store.On("CreateCredit", mock.Anything, mock.Anything).Return(nil)
	store.On("InsertTransaction", mock.Anything, mock.Anything).Return(nil)

	credit, err := svc.Issue(context.Background(), uuid.New(), &IssueRequest{Volume: 10, Anchor: true})
	require.NoError(t, err)
	assert.Nil(t, credit.BlockchainReference, "unanchored credit must carry no reference")
	assert.False(t, credit.Verified())
}

func TestIssueToleratesLedgerInsertFailure(t *testing.T) {
	store := new(mockStore)
	svc := NewService(store, nil, nil, zap.NewNop())

	store.On("CreateCredit", mock.Anything, mock.Anything).Return(nil)
	store.On("InsertTransaction", mock.Anything, mock.Anything).Return(errors.New("ledger down"))

	_, err := svc.Issue(context.Background(), uuid.New(), &IssueRequest{Volume: 10})
	assert.NoError(t, err, "credit exists even if the audit row is lost")
}

func TestHistoryUnknownCredit(t *testing.T) {
	store := new(mockStore)
	svc := NewService(store, nil, nil, zap.NewNop())
	id := uuid.New()

	store.On("GetCredit", mock.Anything, id).Return(nil, ErrCreditNotFound)

	_, err := svc.History(context.Background(), id)
	assert.ErrorIs(t, err, ErrCreditNotFound)
}

func TestListClampsPagination(t *testing.T) {
	store := new(mockStore)
	svc := NewService(store, nil, nil, zap.NewNop())

	store.On("ListCredits", mock.Anything, mock.MatchedBy(func(f *CreditFilters) bool {
		return f.Page == 1 && f.PageSize == 20
	})).Return([]*Credit{}, 0, nil)

	_, _, err := svc.ListMarketplace(context.Background(), -3, 5000)
	require.NoError(t, err)
	store.AssertExpectations(t)
}
