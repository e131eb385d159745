package certificates

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
	"hydrogen-ledger/credit-portal/credit-portal-backend/pkg/storage"
)

func TestIssueCertificate(t *testing.T) {
	store := storage.NewMemoryClient("https://certs.example")
	gen := NewGenerator(store, zap.NewNop())

	owner := uuid.New()
	now := time.Now()
	reference := "tx-ref-42"
	credit := &credits.Credit{
		ID:                  uuid.New(),
		ProducerID:          uuid.New(),
		OwnerID:             owner,
		Volume:              42.5,
		Status:              credits.CreditStatusRetired,
		BlockchainReference: &reference,
		RetiredAt:           &now,
	}
	txn := &credits.Transaction{
		ID:          uuid.New(),
		CreditID:    credit.ID,
		FromOwnerID: &owner,
		Type:        credits.TransactionTypeRetire,
		Volume:      credit.Volume,
	}

	url, err := gen.IssueCertificate(context.Background(), credit, txn, "annual offset")
	require.NoError(t, err)
	assert.Contains(t, url, credit.ID.String())

	body, err := store.Download(context.Background(), "certificates/"+credit.ID.String()+".pdf")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")), "stored object must be a PDF")
}
