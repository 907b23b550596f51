package monitor

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/config"
	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database/models"
)

type Direction string

const (
	DirectionDown Direction = "down"
	DirectionUp   Direction = "up"
	DirectionNone Direction = "none"
)

type Severity string

const (
	SeverityNone   Severity = ""
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var severityRank = map[Severity]int{
	SeverityNone:   0,
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

// Change describes the difference between the two most recent observations.
type Change struct {
	ProductID     int64
	OldPrice      decimal.Decimal
	NewPrice      decimal.Decimal
	Absolute      decimal.Decimal
	Percent       float64
	Direction     Direction
	IsSignificant bool
	IsNewPrice    bool
}

// AlertDecision says whether a change deserves an alert and how severe it is.
type AlertDecision struct {
	ShouldAlert bool
	Severity    Severity
	Reason      string
}

// DetectResult is the outcome of Detect for one product.
type DetectResult struct {
	Detected bool
	Reason   string
	Change   *Change
	Alert    AlertDecision
}

// PriceHistory is the read surface the detector needs from the price store.
type PriceHistory interface {
	LatestPrices(ctx context.Context, productID int64, limit int) ([]models.PriceRecord, error)
}

type DetectorConfig struct {
	SignificantChangePct float64
	DropMediumPct        float64
	DropHighPct          float64
	IncreaseMediumPct    float64
	IncreaseHighPct      float64
	MinDropSeverity      Severity
	MinIncreaseSeverity  Severity
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SignificantChangePct: config.DefaultSignificantChangePct,
		DropMediumPct:        config.DropMediumPct,
		DropHighPct:          config.DropHighPct,
		IncreaseMediumPct:    config.IncreaseMediumPct,
		IncreaseHighPct:      config.IncreaseHighPct,
		MinDropSeverity:      SeverityLow,
		MinIncreaseSeverity:  SeverityMedium,
	}
}

// Detector classifies price changes. Detect is a pure function of the last
// two price rows; repeated calls return identical results.
type Detector struct {
	history PriceHistory
	cfg     DetectorConfig
}

func NewDetector(history PriceHistory, cfg DetectorConfig) *Detector {
	if cfg.SignificantChangePct <= 0 {
		cfg = DefaultDetectorConfig()
	}
	return &Detector{history: history, cfg: cfg}
}

// Calculate compares two prices. Thresholds compare the percent rounded to
// one decimal so float drift near a boundary cannot flip the verdict.
func (d *Detector) Calculate(oldPrice, newPrice decimal.Decimal) Change {
	ch := Change{
		OldPrice: oldPrice,
		NewPrice: newPrice,
		Absolute: newPrice.Sub(oldPrice),
	}

	switch newPrice.Cmp(oldPrice) {
	case -1:
		ch.Direction = DirectionDown
	case 1:
		ch.Direction = DirectionUp
	default:
		ch.Direction = DirectionNone
	}

	if oldPrice.IsZero() {
		ch.IsNewPrice = true
		return ch
	}

	pct, _ := ch.Absolute.Div(oldPrice).Mul(decimal.NewFromInt(100)).Float64()
	ch.Percent = pct
	ch.IsSignificant = math.Abs(round1(pct)) >= d.cfg.SignificantChangePct
	return ch
}

// Detect reads the last two observations of a product and classifies the
// difference.
func (d *Detector) Detect(ctx context.Context, productID int64) (DetectResult, error) {
	records, err := d.history.LatestPrices(ctx, productID, 2)
	if err != nil {
		return DetectResult{}, err
	}

	switch len(records) {
	case 0:
		return DetectResult{Reason: "no_price_data"}, nil
	case 1:
		return DetectResult{Reason: "first_price"}, nil
	}

	change := d.Calculate(records[1].Price, records[0].Price)
	change.ProductID = productID

	if !change.IsSignificant {
		return DetectResult{Reason: "below_threshold", Change: &change}, nil
	}

	return DetectResult{
		Detected: true,
		Reason:   "significant_change",
		Change:   &change,
		Alert:    d.ShouldAlert(change),
	}, nil
}

// ShouldAlert buckets a significant change into a severity and checks it
// against the per-direction minimum.
func (d *Detector) ShouldAlert(ch Change) AlertDecision {
	if ch.IsNewPrice {
		return AlertDecision{}
	}

	pct := math.Abs(round1(ch.Percent))
	var severity Severity
	var minSeverity Severity

	switch ch.Direction {
	case DirectionDown:
		minSeverity = d.cfg.MinDropSeverity
		switch {
		case pct >= d.cfg.DropHighPct:
			severity = SeverityHigh
		case pct >= d.cfg.DropMediumPct:
			severity = SeverityMedium
		case pct >= d.cfg.SignificantChangePct:
			severity = SeverityLow
		}
	case DirectionUp:
		minSeverity = d.cfg.MinIncreaseSeverity
		switch {
		case pct >= d.cfg.IncreaseHighPct:
			severity = SeverityHigh
		case pct >= d.cfg.IncreaseMediumPct:
			severity = SeverityMedium
		}
	default:
		return AlertDecision{}
	}

	if severity == SeverityNone || severityRank[severity] < severityRank[minSeverity] {
		return AlertDecision{Severity: severity}
	}

	verb := "dropped"
	if ch.Direction == DirectionUp {
		verb = "increased"
	}
	return AlertDecision{
		ShouldAlert: true,
		Severity:    severity,
		Reason:      fmt.Sprintf("price %s %.1f%%", verb, pct),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
