package anchor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/config"
)

func TestAnchorIssuanceDisabled(t *testing.T) {
	client := NewClient(config.AnchorConfig{Enabled: false}, zap.NewNop())
	creditID := uuid.New()

	ref, err := client.AnchorIssuance(context.Background(), creditID, 10)
	require.NoError(t, err)
	assert.Equal(t, "SIM-"+creditID.String(), ref)
}

func TestAnchorIssuance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/anchors", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req anchorRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 25.0, req.Volume)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(anchorResponse{Reference: "reg-" + req.CreditID})
	}))
	defer server.Close()

	client := NewClient(config.AnchorConfig{
		Enabled: true,
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}, zap.NewNop())

	creditID := uuid.New()
	ref, err := client.AnchorIssuance(context.Background(), creditID, 25)
	require.NoError(t, err)
	assert.Equal(t, "reg-"+creditID.String(), ref)
}

func TestAnchorIssuanceRegistryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(config.AnchorConfig{Enabled: true, BaseURL: server.URL}, zap.NewNop())
	_, err := client.AnchorIssuance(context.Background(), uuid.New(), 10)
	assert.Error(t, err)
}
