package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"daily-coin-report/internal/storage"
)

const apiKeyHeader = "x-cg-demo-api-key"

// CoinGeckoOptions parameterise the market data fetcher.
type CoinGeckoOptions struct {
	BaseURL      string
	CoinID       string
	APIKey       string
	Timeout      time.Duration
	UserAgent    string
	FetchLogPath string
}

// CoinGecko fetches coin snapshots from the CoinGecko REST API.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinGecko constructs a CoinGecko fetcher.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchDaily retrieves the current full snapshot for the configured coin.
func (c *CoinGecko) FetchDaily(ctx context.Context) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/coins/%s", c.baseURL, url.PathEscape(c.opts.CoinID))
	return c.fetch(ctx, endpoint)
}

// FetchHistorical retrieves the snapshot for a past date. CoinGecko's history
// endpoint expects dd-mm-yyyy.
func (c *CoinGecko) FetchHistorical(ctx context.Context, date string) (json.RawMessage, error) {
	day, err := time.Parse(storage.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid history date %q: %w", date, err)
	}

	endpoint := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false",
		c.baseURL, url.PathEscape(c.opts.CoinID), day.Format("02-01-2006"))
	return c.fetch(ctx, endpoint)
}

func (c *CoinGecko) fetch(ctx context.Context, endpoint string) (json.RawMessage, error) {
	if c.opts.CoinID == "" {
		return nil, fmt.Errorf("coin id not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "coinreport/1.0")
	}
	if c.opts.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.appendFetchLog(fmt.Sprintf("ERROR: request failed: %v", err))
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.appendFetchLog(fmt.Sprintf("ERROR: read body failed: %v", err))
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		c.appendFetchLog(fmt.Sprintf("ERROR: failed to fetch data, status code %d", resp.StatusCode))
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	c.appendFetchLog(fmt.Sprintf("SUCCESS: fetched %s", endpoint))
	return json.RawMessage(payload), nil
}

// appendFetchLog writes one timestamped line to the append-only fetch log.
// Logging failures never surface to the caller.
func (c *CoinGecko) appendFetchLog(msg string) {
	if c.opts.FetchLogPath == "" {
		return
	}

	if dir := filepath.Dir(c.opts.FetchLogPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.logger.Warn().Err(err).Msg("cannot create fetch log directory")
			return
		}
	}

	file, err := os.OpenFile(c.opts.FetchLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cannot open fetch log")
		return
	}
	defer file.Close()

	line := fmt.Sprintf("[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), msg)
	if _, err := file.WriteString(line); err != nil {
		c.logger.Warn().Err(err).Msg("cannot append fetch log")
	}
}

type errorResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Error string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Status.ErrorMessage)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("coingecko api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("coingecko api error (%d)", status)
}

var _ SnapshotFetcher = (*CoinGecko)(nil)
