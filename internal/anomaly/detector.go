package anomaly

import (
	"fmt"

	"github.com/shopspring/decimal"

	"daily-coin-report/internal/storage"
)

// Metric names the observed day-over-day dimensions.
type Metric string

const (
	MetricPrice     Metric = "price"
	MetricVolume    Metric = "volume"
	MetricMarketCap Metric = "market_cap"
)

// Finding is one flagged metric from a two-record comparison.
type Finding struct {
	Metric         Metric
	TodayValue     decimal.Decimal
	YesterdayValue decimal.Decimal
	ChangePct      decimal.Decimal
	Note           string
}

// Thresholds hold the relative change a metric must strictly exceed to be
// flagged. Expressed as fractions, e.g. 0.10 for 10%.
type Thresholds struct {
	Price     decimal.Decimal
	Volume    decimal.Decimal
	MarketCap decimal.Decimal
}

// DefaultThresholds returns the deployed thresholds: 10% price, 20% volume,
// 10% market cap.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Price:     decimal.NewFromFloat(0.10),
		Volume:    decimal.NewFromFloat(0.20),
		MarketCap: decimal.NewFromFloat(0.10),
	}
}

// ThresholdsFromFloats builds Thresholds from configuration values.
func ThresholdsFromFloats(price, volume, marketCap float64) Thresholds {
	return Thresholds{
		Price:     decimal.NewFromFloat(price),
		Volume:    decimal.NewFromFloat(volume),
		MarketCap: decimal.NewFromFloat(marketCap),
	}
}

// Detect compares the two most recent records in history and returns the
// findings in fixed metric order (price, volume, market cap). Histories with
// fewer than two entries yield no findings: that is the normal day-one state,
// not an error. A metric is skipped when yesterday's value is nil or zero.
// Detect is a pure function over its input and never fails.
func Detect(history []storage.Record, thresholds Thresholds) []Finding {
	if len(history) < 2 {
		return nil
	}

	today := history[len(history)-1]
	prev := history[len(history)-2]

	findings := make([]Finding, 0, 3)

	if f, ok := compare(MetricPrice, today.PriceUSD, prev.PriceUSD, thresholds.Price,
		fmt.Sprintf("Unusual price movement (>%s%%)", percent(thresholds.Price))); ok {
		findings = append(findings, f)
	}
	if f, ok := compare(MetricVolume, today.Volume24hUSD, prev.Volume24hUSD, thresholds.Volume,
		fmt.Sprintf("Abnormal volume change (>%s%%)", percent(thresholds.Volume))); ok {
		findings = append(findings, f)
	}
	if f, ok := compare(MetricMarketCap, today.MarketCapUSD, prev.MarketCapUSD, thresholds.MarketCap,
		fmt.Sprintf("Unusual market cap change (>%s%%)", percent(thresholds.MarketCap))); ok {
		findings = append(findings, f)
	}

	return findings
}

func compare(metric Metric, today, prev *decimal.Decimal, threshold decimal.Decimal, note string) (Finding, bool) {
	if prev == nil || prev.IsZero() || today == nil {
		return Finding{}, false
	}

	change := today.Sub(*prev).Abs().Div(*prev)
	if !change.GreaterThan(threshold) {
		return Finding{}, false
	}

	return Finding{
		Metric:         metric,
		TodayValue:     *today,
		YesterdayValue: *prev,
		ChangePct:      change.Mul(decimal.NewFromInt(100)).Round(2),
		Note:           note,
	}, true
}

func percent(threshold decimal.Decimal) string {
	return threshold.Mul(decimal.NewFromInt(100)).String()
}
