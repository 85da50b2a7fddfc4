package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical key format for daily records.
const DateLayout = "2006-01-02"

// Record is one day's normalized market snapshot. Metrics absent from the
// upstream payload stay nil.
type Record struct {
	Date              string
	Coin              string
	PriceUSD          *decimal.Decimal
	MarketCapUSD      *decimal.Decimal
	Volume24hUSD      *decimal.Decimal
	PriceChangePct24h *decimal.Decimal
	Raw               json.RawMessage
	CreatedAt         time.Time
}

// AnomalyRecord captures one flagged metric for a given day. Each pipeline
// run replaces the full set for its date.
type AnomalyRecord struct {
	Date           string
	Metric         string
	TodayValue     decimal.Decimal
	YesterdayValue decimal.Decimal
	ChangePct      decimal.Decimal
	Note           string
	CreatedAt      time.Time
}
