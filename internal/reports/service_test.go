package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
)

type stubLedgerStore struct {
	credits.Store
	txns []*credits.Transaction
}

func (s *stubLedgerStore) ListTransactions(_ context.Context, filters *credits.TransactionFilters) ([]*credits.Transaction, int, error) {
	var matched []*credits.Transaction
	for _, txn := range s.txns {
		if filters.Type != nil && txn.Type != *filters.Type {
			continue
		}
		matched = append(matched, txn)
	}
	return matched, len(matched), nil
}

func TestExportTransactionsCSV(t *testing.T) {
	seller := uuid.New()
	buyer := uuid.New()
	price := 288.80
	store := &stubLedgerStore{txns: []*credits.Transaction{
		{
			ID:          uuid.New(),
			CreditID:    uuid.New(),
			FromOwnerID: &seller,
			ToOwnerID:   &buyer,
			Type:        credits.TransactionTypeTransfer,
			Volume:      10,
			Price:       &price,
			CreatedAt:   time.Now(),
		},
		{
			ID:          uuid.New(),
			CreditID:    uuid.New(),
			FromOwnerID: &buyer,
			Type:        credits.TransactionTypeRetire,
			Volume:      10,
			CreatedAt:   time.Now(),
		},
	}}

	svc := NewService(store, zap.NewNop())
	var buf bytes.Buffer
	count, err := svc.ExportTransactions(context.Background(), &ExportRequest{Format: FormatCSV}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two rows")
	assert.Equal(t, exportColumns, records[0])

	transferRow := records[1]
	assert.Equal(t, "transfer", transferRow[2])
	assert.Equal(t, "288.8", transferRow[6])

	retireRow := records[2]
	assert.Equal(t, "retire", retireRow[2])
	assert.Empty(t, retireRow[4], "retire transactions have no recipient")
	assert.Empty(t, retireRow[6], "retire transactions carry no price")
}

func TestExportTransactionsTypeFilter(t *testing.T) {
	store := &stubLedgerStore{txns: []*credits.Transaction{
		{ID: uuid.New(), CreditID: uuid.New(), Type: credits.TransactionTypeIssue, Volume: 5, CreatedAt: time.Now()},
		{ID: uuid.New(), CreditID: uuid.New(), Type: credits.TransactionTypeTransfer, Volume: 5, CreatedAt: time.Now()},
	}}

	svc := NewService(store, zap.NewNop())
	issueType := credits.TransactionTypeIssue
	var buf bytes.Buffer
	count, err := svc.ExportTransactions(context.Background(), &ExportRequest{
		Format: FormatCSV,
		Type:   &issueType,
	}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExportTransactionsXLSX(t *testing.T) {
	store := &stubLedgerStore{txns: []*credits.Transaction{
		{ID: uuid.New(), CreditID: uuid.New(), Type: credits.TransactionTypeIssue, Volume: 5, CreatedAt: time.Now()},
	}}

	svc := NewService(store, zap.NewNop())
	var buf bytes.Buffer
	count, err := svc.ExportTransactions(context.Background(), &ExportRequest{Format: FormatXLSX}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NotZero(t, buf.Len())
}

func TestExportTransactionsUnknownFormat(t *testing.T) {
	svc := NewService(&stubLedgerStore{}, zap.NewNop())
	_, err := svc.ExportTransactions(context.Background(), &ExportRequest{Format: "pdf"}, &bytes.Buffer{})
	assert.Error(t, err)
}
