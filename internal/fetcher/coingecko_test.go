package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchDailyMissingCoin(t *testing.T) {
	c := NewCoinGecko(CoinGeckoOptions{}, noopLogger())
	if _, err := c.FetchDaily(context.Background()); err == nil {
		t.Fatal("missing coin id must fail")
	}
}

func TestFetchDailySuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "bitcoin",
			"market_data": map[string]any{
				"current_price": map[string]float64{"usd": 60000},
			},
		})
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{
		BaseURL:   srv.URL,
		CoinID:    "bitcoin",
		Timeout:   time.Second,
		UserAgent: "test",
	}, noopLogger())

	raw, err := c.FetchDaily(context.Background())
	if err != nil {
		t.Fatalf("successful response must not error: %v", err)
	}
	if gotPath != "/coins/bitcoin" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("raw payload must round-trip: %v", err)
	}
	if decoded["id"] != "bitcoin" {
		t.Fatalf("payload should carry coin id, got %v", decoded["id"])
	}
}

func TestFetchDailyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]any{"error_code": 429, "error_message": "rate limited"},
		})
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, CoinID: "bitcoin", Timeout: time.Second}, noopLogger())

	_, err := c.FetchDaily(context.Background())
	if err == nil {
		t.Fatal("non-2xx status must fail")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error should carry the upstream message, got %v", err)
	}
}

func TestFetchHistoricalDateFormat(t *testing.T) {
	var gotQuery string
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"id":"bitcoin"}`))
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, CoinID: "bitcoin", Timeout: time.Second}, noopLogger())

	if _, err := c.FetchHistorical(context.Background(), "2025-03-09"); err != nil {
		t.Fatalf("historical fetch must succeed: %v", err)
	}
	if gotPath != "/coins/bitcoin/history" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotQuery, "date=09-03-2025") {
		t.Fatalf("history endpoint expects dd-mm-yyyy, got query %q", gotQuery)
	}

	if _, err := c.FetchHistorical(context.Background(), "09-03-2025"); err == nil {
		t.Fatal("caller-side date must be YYYY-MM-DD")
	}
}

func TestFetchLogAppendOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"bitcoin"}`))
	}))
	defer srv.Close()

	logPath := filepath.Join(t.TempDir(), "logs", "fetch.log")
	c := NewCoinGecko(CoinGeckoOptions{
		BaseURL:      srv.URL,
		CoinID:       "bitcoin",
		Timeout:      time.Second,
		FetchLogPath: logPath,
	}, noopLogger())

	for i := 0; i < 2; i++ {
		if _, err := c.FetchDaily(context.Background()); err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("fetch log should exist: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 appended lines, got %d: %q", len(lines), content)
	}
	for _, line := range lines {
		if !strings.Contains(line, "SUCCESS") || !strings.HasPrefix(line, "[") {
			t.Fatalf("unexpected log line %q", line)
		}
	}
}
