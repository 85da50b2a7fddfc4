// Package normalize maps raw market snapshots into daily records.
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"daily-coin-report/internal/storage"
)

// snapshot mirrors the subset of the CoinGecko coin payload the pipeline
// reads. Every field is optional; absent paths decode to nil.
type snapshot struct {
	ID         string `json:"id"`
	MarketData struct {
		CurrentPrice struct {
			USD *decimal.Decimal `json:"usd"`
		} `json:"current_price"`
		MarketCap struct {
			USD *decimal.Decimal `json:"usd"`
		} `json:"market_cap"`
		TotalVolume struct {
			USD *decimal.Decimal `json:"usd"`
		} `json:"total_volume"`
		PriceChangePercentage24h *decimal.Decimal `json:"price_change_percentage_24h"`
	} `json:"market_data"`
}

// Normalize extracts the tracked metrics from a raw snapshot and stamps the
// result with asOf. Missing optional fields become nil metrics; only a
// payload that is not a JSON object is an error.
func Normalize(raw json.RawMessage, asOf, defaultCoin string) (storage.Record, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return storage.Record{}, fmt.Errorf("normalize snapshot: %w", err)
	}

	coin := snap.ID
	if coin == "" {
		coin = defaultCoin
	}

	return storage.Record{
		Date:              asOf,
		Coin:              coin,
		PriceUSD:          snap.MarketData.CurrentPrice.USD,
		MarketCapUSD:      snap.MarketData.MarketCap.USD,
		Volume24hUSD:      snap.MarketData.TotalVolume.USD,
		PriceChangePct24h: snap.MarketData.PriceChangePercentage24h,
		Raw:               raw,
	}, nil
}
