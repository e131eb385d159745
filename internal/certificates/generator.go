package certificates

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
	"hydrogen-ledger/credit-portal/credit-portal-backend/pkg/storage"
)

// Generator renders retirement certificates and stores them for
// download. Certificate generation is best effort; callers treat a
// failure as a missing document, not a failed retirement.
type Generator struct {
	storage   storage.Client
	publicTTL time.Duration
	logger    *zap.Logger
}

// NewGenerator creates a new certificate generator
func NewGenerator(storageClient storage.Client, logger *zap.Logger) *Generator {
	return &Generator{
		storage:   storageClient,
		publicTTL: 7 * 24 * time.Hour,
		logger:    logger,
	}
}

// IssueCertificate renders the certificate PDF, uploads it, and returns
// a presigned download URL.
func (g *Generator) IssueCertificate(ctx context.Context, credit *credits.Credit, txn *credits.Transaction, reason string) (string, error) {
	doc, err := g.render(credit, txn, reason)
	if err != nil {
		return "", fmt.Errorf("failed to render certificate: %w", err)
	}

	key := fmt.Sprintf("certificates/%s.pdf", credit.ID)
	if err := g.storage.Upload(ctx, key, bytes.NewReader(doc), "application/pdf"); err != nil {
		return "", fmt.Errorf("failed to store certificate: %w", err)
	}

	url, err := g.storage.PresignedURL(ctx, key, g.publicTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign certificate: %w", err)
	}

	g.logger.Info("Retirement certificate issued",
		zap.String("credit_id", credit.ID.String()),
		zap.String("key", key))

	return url, nil
}

func (g *Generator) render(credit *credits.Credit, txn *credits.Transaction, reason string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(16, 92, 62)
	pdf.CellFormat(0, 14, "Certificate of Retirement", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, "Green Hydrogen Credit Registry", "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetTextColor(0, 0, 0)
	retiredAt := time.Now()
	if credit.RetiredAt != nil {
		retiredAt = *credit.RetiredAt
	}

	fields := []struct {
		label string
		value string
	}{
		{"Credit ID", credit.ID.String()},
		{"Producer", credit.ProducerID.String()},
		{"Retired By", ownerLabel(txn)},
		{"Volume", fmt.Sprintf("%.2f kg H2", credit.Volume)},
		{"Production Method", methodLabel(credit)},
		{"Retired At", retiredAt.Format("2 January 2006 15:04 MST")},
	}
	if reason != "" {
		fields = append(fields, struct{ label, value string }{"Reason", reason})
	}
	if credit.BlockchainReference != nil {
		fields = append(fields, struct{ label, value string }{"Registry Reference", *credit.BlockchainReference})
	}

	pdf.SetFont("Arial", "", 12)
	for _, f := range fields {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(55, 9, f.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(0, 9, f.value, "", 1, "L", false, 0, "")
	}

	pdf.Ln(12)
	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.MultiCell(0, 6,
		"This certificate confirms the permanent removal of the credit above from circulation. "+
			"Retired credits cannot be transferred or retired again.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ownerLabel(txn *credits.Transaction) string {
	if txn != nil && txn.FromOwnerID != nil {
		return txn.FromOwnerID.String()
	}
	return "unknown"
}

func methodLabel(credit *credits.Credit) string {
	if method := credit.ProductionMethod(); method != "" {
		return method
	}
	return "unspecified"
}
