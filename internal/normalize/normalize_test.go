package normalize

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeFullSnapshot(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "bitcoin",
		"market_data": {
			"current_price": {"usd": 60123.45, "eur": 55000},
			"market_cap": {"usd": 1190000000000},
			"total_volume": {"usd": 31000000000},
			"price_change_percentage_24h": -2.35
		}
	}`)

	record, err := Normalize(raw, "2025-03-01", "bitcoin")
	if err != nil {
		t.Fatalf("normalize should succeed: %v", err)
	}

	if record.Date != "2025-03-01" {
		t.Fatalf("record must be stamped with as-of date, got %q", record.Date)
	}
	if record.Coin != "bitcoin" {
		t.Fatalf("unexpected coin %q", record.Coin)
	}
	if record.PriceUSD == nil || !record.PriceUSD.Equal(decimal.NewFromFloat(60123.45)) {
		t.Fatalf("unexpected price: %v", record.PriceUSD)
	}
	if record.MarketCapUSD == nil || !record.MarketCapUSD.Equal(decimal.NewFromFloat(1.19e12)) {
		t.Fatalf("unexpected market cap: %v", record.MarketCapUSD)
	}
	if record.Volume24hUSD == nil || !record.Volume24hUSD.Equal(decimal.NewFromFloat(3.1e10)) {
		t.Fatalf("unexpected volume: %v", record.Volume24hUSD)
	}
	if record.PriceChangePct24h == nil || !record.PriceChangePct24h.Equal(decimal.NewFromFloat(-2.35)) {
		t.Fatalf("unexpected 24h change: %v", record.PriceChangePct24h)
	}
}

func TestNormalizeMissingVolume(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "bitcoin",
		"market_data": {
			"current_price": {"usd": 60000},
			"market_cap": {"usd": 1200000000000}
		}
	}`)

	record, err := Normalize(raw, "2025-03-01", "bitcoin")
	if err != nil {
		t.Fatalf("missing total_volume must not fail: %v", err)
	}
	if record.Volume24hUSD != nil {
		t.Fatalf("missing total_volume must yield nil, got %s", record.Volume24hUSD)
	}
	if record.PriceUSD == nil {
		t.Fatal("present price must survive normalization")
	}
}

func TestNormalizeEmptyObject(t *testing.T) {
	record, err := Normalize(json.RawMessage(`{}`), "2025-03-01", "bitcoin")
	if err != nil {
		t.Fatalf("empty object must normalize: %v", err)
	}
	if record.Coin != "bitcoin" {
		t.Fatalf("coin should default, got %q", record.Coin)
	}
	if record.PriceUSD != nil || record.MarketCapUSD != nil || record.Volume24hUSD != nil || record.PriceChangePct24h != nil {
		t.Fatal("all metrics should be nil for an empty payload")
	}
}

func TestNormalizeNonObjectInput(t *testing.T) {
	if _, err := Normalize(json.RawMessage(`[1,2,3]`), "2025-03-01", "bitcoin"); err == nil {
		t.Fatal("non-object input is a contract violation and must fail")
	}
	if _, err := Normalize(json.RawMessage(`not json`), "2025-03-01", "bitcoin"); err == nil {
		t.Fatal("malformed input must fail")
	}
}

func TestNormalizeKeepsRawPayload(t *testing.T) {
	raw := json.RawMessage(`{"id":"bitcoin","market_data":{"current_price":{"usd":1}}}`)
	record, err := Normalize(raw, "2025-03-01", "bitcoin")
	if err != nil {
		t.Fatalf("normalize should succeed: %v", err)
	}
	if string(record.Raw) != string(raw) {
		t.Fatal("raw payload must be carried on the record unmodified")
	}
}
