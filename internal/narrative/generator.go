// Package narrative produces the human-readable daily summary.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"daily-coin-report/internal/anomaly"
	"daily-coin-report/internal/storage"
)

// Generator turns a day's record and findings into summary text.
type Generator interface {
	Generate(ctx context.Context, record storage.Record, findings []anomaly.Finding) (string, error)
}

// OpenAIOptions parameterise the OpenAI-backed generator.
type OpenAIOptions struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// OpenAI generates summaries via the chat completions API.
type OpenAI struct {
	client *openai.Client
	opts   OpenAIOptions
	logger zerolog.Logger
}

// NewOpenAI constructs an OpenAI generator.
func NewOpenAI(opts OpenAIOptions, logger zerolog.Logger) *OpenAI {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 250
	}

	return &OpenAI{
		client: openai.NewClient(opts.APIKey),
		opts:   opts,
		logger: logger.With().Str("component", "narrative_openai").Logger(),
	}
}

// Generate asks the model for a short analyst summary. Failures (quota,
// network) surface to the caller; the orchestrator treats them as fatal.
func (g *OpenAI) Generate(ctx context.Context, record storage.Record, findings []anomaly.Finding) (string, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	prompt, err := buildPrompt(record, findings)
	if err != nil {
		return "", err
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.opts.Model,
		MaxTokens: g.opts.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate summary: empty completion")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	g.logger.Debug().Str("date", record.Date).Int("length", len(summary)).Msg("summary generated")
	return summary, nil
}

func buildPrompt(record storage.Record, findings []anomaly.Finding) (string, error) {
	recordJSON, err := json.MarshalIndent(recordView(record), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record for prompt: %w", err)
	}

	findingsJSON, err := json.MarshalIndent(findingsView(findings), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal findings for prompt: %w", err)
	}

	builder := strings.Builder{}
	builder.WriteString("You are a data analyst. Analyze the following cryptocurrency daily metrics and write a short, clear summary.\n\n")
	builder.WriteString("=== Today's Clean Data ===\n")
	builder.Write(recordJSON)
	builder.WriteString("\n\n=== Detected Anomalies ===\n")
	builder.Write(findingsJSON)
	builder.WriteString("\n\nWrite a concise 4-8 sentence summary explaining:\n")
	builder.WriteString("- The overall price trend today\n")
	builder.WriteString("- How today's metrics compare to normal days\n")
	builder.WriteString("- Any anomalies and potential reasons\n")
	builder.WriteString("- Whether the market appears bullish, bearish, or neutral\n")

	return builder.String(), nil
}

func recordView(record storage.Record) map[string]any {
	view := map[string]any{
		"date": record.Date,
		"coin": record.Coin,
	}
	if record.PriceUSD != nil {
		view["price_usd"] = record.PriceUSD.String()
	}
	if record.MarketCapUSD != nil {
		view["market_cap_usd"] = record.MarketCapUSD.String()
	}
	if record.Volume24hUSD != nil {
		view["volume_24h_usd"] = record.Volume24hUSD.String()
	}
	if record.PriceChangePct24h != nil {
		view["price_change_pct_24h"] = record.PriceChangePct24h.String()
	}
	return view
}

func findingsView(findings []anomaly.Finding) []map[string]any {
	views := make([]map[string]any, 0, len(findings))
	for _, f := range findings {
		views = append(views, map[string]any{
			"metric":     string(f.Metric),
			"today":      f.TodayValue.String(),
			"yesterday":  f.YesterdayValue.String(),
			"change_pct": f.ChangePct.String(),
			"note":       f.Note,
		})
	}
	return views
}

var _ Generator = (*OpenAI)(nil)
