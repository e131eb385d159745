package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/config"
)

// Client records credit issuances on the external registry. When the
// registry is disabled it returns synthetic references so the rest of
// the system behaves identically in development.
type Client struct {
	enabled bool
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a registry client from config
func NewClient(cfg config.AnchorConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		enabled: cfg.Enabled,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type anchorRequest struct {
	CreditID string  `json:"credit_id"`
	Volume   float64 `json:"volume"`
}

type anchorResponse struct {
	Reference string `json:"reference"`
}

// AnchorIssuance records an issuance and returns the registry reference
func (c *Client) AnchorIssuance(ctx context.Context, creditID uuid.UUID, volume float64) (string, error) {
	if !c.enabled {
		// Synthetic reference, recognizable at a glance in the ledger.
		return fmt.Sprintf("SIM-%s", creditID), nil
	}

	payload, err := json.Marshal(anchorRequest{CreditID: creditID.String(), Volume: volume})
	if err != nil {
		return "", fmt.Errorf("failed to encode anchor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/anchors", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("anchor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var out anchorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode anchor response: %w", err)
	}
	if out.Reference == "" {
		return "", fmt.Errorf("registry returned empty reference")
	}

	c.logger.Debug("Issuance anchored",
		zap.String("credit_id", creditID.String()),
		zap.String("reference", out.Reference))

	return out.Reference, nil
}
