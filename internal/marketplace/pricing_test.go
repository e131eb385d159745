package marketplace

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
)

func pricedCredit(t *testing.T, volume float64, reference string, ageDays float64, method string) *credits.Credit {
	t.Helper()

	credit := &credits.Credit{
		ID:         uuid.New(),
		ProducerID: uuid.New(),
		OwnerID:    uuid.New(),
		Volume:     volume,
		Status:     credits.CreditStatusIssued,
		CreatedAt:  time.Now().Add(-time.Duration(ageDays * 24 * float64(time.Hour))),
	}
	if reference != "" {
		credit.BlockchainReference = &reference
	}
	if method != "" {
		raw, err := json.Marshal(map[string]interface{}{"production_method": method})
		require.NoError(t, err)
		credit.Metadata = datatypes.JSON(raw)
	}
	return credit
}

func TestCalculatePriceVolumeTiers(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		volume   float64
		discount float64
	}{
		{"small volume", 1, 1.0},
		{"exactly fifty stays undiscounted", 50, 1.0},
		{"just over fifty", 50.01, 0.95},
		{"exactly one hundred stays in medium tier", 100, 0.95},
		{"just over one hundred", 100.01, 0.90},
		{"large volume", 1000, 0.90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credit := pricedCredit(t, tt.volume, "", 15, "")
			quote := CalculatePriceAt(credit, now)

			assert.Equal(t, tt.discount, quote.Factors.VolumeDiscount)
			assert.Equal(t, 1.0, quote.Factors.VerificationPremium)
			assert.Equal(t, 1.0, quote.Factors.AgeAdjustment)
			assert.Equal(t, 1.0, quote.Factors.MethodPremium)
		})
	}
}

func TestCalculatePriceVerificationPremium(t *testing.T) {
	now := time.Now()
	unverified := CalculatePriceAt(pricedCredit(t, 10, "", 15, ""), now)
	verified := CalculatePriceAt(pricedCredit(t, 10, "stellar:abc123", 15, ""), now)

	assert.Equal(t, 1.0, unverified.Factors.VerificationPremium)
	assert.Equal(t, 1.10, verified.Factors.VerificationPremium)
	assert.Equal(t, 25.00, unverified.UnitPrice)
	assert.Equal(t, 27.50, verified.UnitPrice)
}

func TestCalculatePriceAgeAdjustment(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		ageDays    float64
		adjustment float64
	}{
		{"fresh credit earns premium", 2, 1.05},
		{"mid-life credit is neutral", 15, 1.0},
		{"exactly thirty days is neutral", 30, 1.0},
		{"stale credit is discounted", 40, 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote := CalculatePriceAt(pricedCredit(t, 10, "", tt.ageDays, ""), now)
			assert.Equal(t, tt.adjustment, quote.Factors.AgeAdjustment)
		})
	}
}

func TestCalculatePriceProductionMethod(t *testing.T) {
	now := time.Now()
	tests := []struct {
		method  string
		premium float64
	}{
		{"solar", 1.08},
		{"SOLAR", 1.08},
		{"  Wind ", 1.06},
		{"hydro", 1.04},
		{"geothermal", 1.0},
		{"", 1.0},
	}

	for _, tt := range tests {
		quote := CalculatePriceAt(pricedCredit(t, 10, "", 15, tt.method), now)
		assert.Equal(t, tt.premium, quote.Factors.MethodPremium, "method %q", tt.method)
	}
}

func TestCalculatePriceKnownQuotes(t *testing.T) {
	now := time.Now()

	// Large stale solar credit: 0.90 * 1.00 * 0.95 * 1.08 = 0.9234.
	stale := CalculatePriceAt(pricedCredit(t, 120, "", 40, "solar"), now)
	assert.InDelta(t, 0.9234, stale.Factors.Combined, 1e-9)
	assert.Equal(t, 23.09, stale.UnitPrice)
	assert.Equal(t, 2770.80, stale.TotalPrice)

	// Small fresh verified credit: 1.00 * 1.10 * 1.05 * 1.00 = 1.155.
	fresh := CalculatePriceAt(pricedCredit(t, 10, "stellar:tx9", 2, ""), now)
	assert.InDelta(t, 1.155, fresh.Factors.Combined, 1e-9)
	assert.Equal(t, 28.88, fresh.UnitPrice)
	assert.Equal(t, 288.80, fresh.TotalPrice)
}

func TestCalculatePriceTotalUsesRoundedUnit(t *testing.T) {
	now := time.Now()

	// Unit price before rounding is 23.085; a total computed from the
	// unrounded unit would give 2770.20 instead of 23.09 * 120 = 2770.80.
	quote := CalculatePriceAt(pricedCredit(t, 120, "", 40, "solar"), now)
	assert.Equal(t, 23.09, quote.UnitPrice)
	assert.Equal(t, 2770.80, quote.TotalPrice)
	assert.NotEqual(t, math.Round(BasePrice*quote.Factors.Combined*120*100)/100, quote.TotalPrice)
}

func TestCalculatePriceDegenerateVolumes(t *testing.T) {
	now := time.Now()

	for _, volume := range []float64{0, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		quote := CalculatePriceAt(pricedCredit(t, volume, "", 15, ""), now)
		assert.Equal(t, 0.0, quote.Volume)
		assert.Equal(t, 0.0, quote.TotalPrice)
		assert.Equal(t, 25.00, quote.UnitPrice)
	}
}
