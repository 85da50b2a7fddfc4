package narrative

import (
	"context"
	"fmt"
	"strings"

	"daily-coin-report/internal/anomaly"
	"daily-coin-report/internal/storage"
)

// Static is a deterministic generator used when no OpenAI key is configured.
// It keeps the pipeline runnable offline and its output stable across
// re-runs of the same date.
type Static struct{}

// NewStatic constructs the fallback generator.
func NewStatic() *Static {
	return &Static{}
}

// Generate renders a fixed-template summary from the record and findings.
func (s *Static) Generate(_ context.Context, record storage.Record, findings []anomaly.Finding) (string, error) {
	builder := strings.Builder{}

	builder.WriteString(fmt.Sprintf("Daily %s report for %s.", record.Coin, record.Date))
	if record.PriceUSD != nil {
		builder.WriteString(fmt.Sprintf(" The closing price was %s USD", record.PriceUSD.StringFixed(2)))
		if record.PriceChangePct24h != nil {
			builder.WriteString(fmt.Sprintf(" (%s%% over 24h)", record.PriceChangePct24h.StringFixed(2)))
		}
		builder.WriteString(".")
	}
	if record.Volume24hUSD != nil {
		builder.WriteString(fmt.Sprintf(" Trading volume reached %s USD.", record.Volume24hUSD.StringFixed(0)))
	}
	if record.MarketCapUSD != nil {
		builder.WriteString(fmt.Sprintf(" Market capitalisation stands at %s USD.", record.MarketCapUSD.StringFixed(0)))
	}

	if len(findings) == 0 {
		builder.WriteString(" No metric moved beyond its day-over-day threshold; the market looks stable compared to yesterday.")
	} else {
		builder.WriteString(fmt.Sprintf(" %d metric(s) moved beyond their day-over-day thresholds:", len(findings)))
		for _, f := range findings {
			builder.WriteString(fmt.Sprintf(" %s changed %s%% (%s);", f.Metric, f.ChangePct.String(), f.Note))
		}
	}

	return builder.String(), nil
}

var _ Generator = (*Static)(nil)
