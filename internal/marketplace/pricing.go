package marketplace

import (
	"math"
	"time"

	"hydrogen-ledger/credit-portal/credit-portal-backend/internal/credits"
)

// Pricing constants. The base price is per kilogram of hydrogen
// equivalent; every adjustment is an independent multiplier.
const (
	BasePrice = 25.0

	largeVolumeThreshold  = 100.0
	mediumVolumeThreshold = 50.0
	largeVolumeDiscount   = 0.90
	mediumVolumeDiscount  = 0.95

	verificationPremium = 1.10

	freshnessWindowDays = 7
	stalenessWindowDays = 30
	freshnessPremium    = 1.05
	stalenessDiscount   = 0.95
)

// methodPremiums maps lower-cased production methods to their multiplier.
// Unknown or absent methods price at 1.0.
var methodPremiums = map[string]float64{
	"solar": 1.08,
	"wind":  1.06,
	"hydro": 1.04,
}

// PriceFactors records each adjustment applied to the base price, for
// display alongside the quote. Multipliers of 1.0 mean "not applied".
type PriceFactors struct {
	VolumeDiscount      float64 `json:"volume_discount"`
	VerificationPremium float64 `json:"verification_premium"`
	AgeAdjustment       float64 `json:"age_adjustment"`
	MethodPremium       float64 `json:"method_premium"`
	Combined            float64 `json:"combined"`
}

// PriceQuote is the result of pricing one credit
type PriceQuote struct {
	CreditID   string       `json:"credit_id"`
	BasePrice  float64      `json:"base_price"`
	UnitPrice  float64      `json:"unit_price"`
	TotalPrice float64      `json:"total_price"`
	Volume     float64      `json:"volume"`
	Factors    PriceFactors `json:"factors"`
	QuotedAt   time.Time    `json:"quoted_at"`
}

// CalculatePrice derives a unit and total price for a credit from the
// fixed base price and the adjustment multipliers. Pure except for the
// age factor, which depends on the current time.
func CalculatePrice(credit *credits.Credit) *PriceQuote {
	return CalculatePriceAt(credit, time.Now())
}

// CalculatePriceAt prices a credit as of a given instant. Exposed so
// age-dependent quotes are reproducible.
func CalculatePriceAt(credit *credits.Credit, now time.Time) *PriceQuote {
	volume := credit.Volume
	if math.IsNaN(volume) || math.IsInf(volume, 0) || volume < 0 {
		volume = 0
	}

	factors := PriceFactors{
		VolumeDiscount:      1.0,
		VerificationPremium: 1.0,
		AgeAdjustment:       1.0,
		MethodPremium:       1.0,
	}

	// Volume tiers are mutually exclusive and strictly greater-than:
	// exactly 100 falls into the medium tier, exactly 50 into neither.
	switch {
	case volume > largeVolumeThreshold:
		factors.VolumeDiscount = largeVolumeDiscount
	case volume > mediumVolumeThreshold:
		factors.VolumeDiscount = mediumVolumeDiscount
	}

	if credit.Verified() {
		factors.VerificationPremium = verificationPremium
	}

	ageDays := now.Sub(credit.CreatedAt).Hours() / 24
	switch {
	case ageDays < freshnessWindowDays:
		factors.AgeAdjustment = freshnessPremium
	case ageDays > stalenessWindowDays:
		factors.AgeAdjustment = stalenessDiscount
	}

	if premium, ok := methodPremiums[credit.ProductionMethod()]; ok {
		factors.MethodPremium = premium
	}

	factors.Combined = factors.VolumeDiscount * factors.VerificationPremium *
		factors.AgeAdjustment * factors.MethodPremium

	unitPrice := round2(BasePrice * factors.Combined)
	// Total is its own rounding operation over the rounded unit price,
	// never a re-rounding of the unrounded product.
	totalPrice := round2(unitPrice * volume)

	return &PriceQuote{
		CreditID:   credit.ID.String(),
		BasePrice:  BasePrice,
		UnitPrice:  unitPrice,
		TotalPrice: totalPrice,
		Volume:     volume,
		Factors:    factors,
		QuotedAt:   now,
	}
}

// round2 rounds half away from zero at two decimals, matching the
// documented ledger convention.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
