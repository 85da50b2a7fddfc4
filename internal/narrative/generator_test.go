package narrative

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"daily-coin-report/internal/anomaly"
	"daily-coin-report/internal/storage"
)

func testRecord() storage.Record {
	price := decimal.NewFromInt(60000)
	volume := decimal.NewFromFloat(3.1e10)
	return storage.Record{
		Date:         "2025-03-01",
		Coin:         "bitcoin",
		PriceUSD:     &price,
		Volume24hUSD: &volume,
	}
}

func testFindings() []anomaly.Finding {
	return []anomaly.Finding{{
		Metric:         anomaly.MetricPrice,
		TodayValue:     decimal.NewFromInt(60000),
		YesterdayValue: decimal.NewFromInt(53000),
		ChangePct:      decimal.NewFromFloat(13.21),
		Note:           "Unusual price movement (>10%)",
	}}
}

func TestBuildPromptContainsData(t *testing.T) {
	prompt, err := buildPrompt(testRecord(), testFindings())
	if err != nil {
		t.Fatalf("buildPrompt failed: %v", err)
	}

	for _, want := range []string{"2025-03-01", "bitcoin", "60000", "13.21", "Unusual price movement"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.Contains(prompt, "Detected Anomalies") {
		t.Fatal("prompt should delimit the anomalies section")
	}
}

func TestBuildPromptNoFindings(t *testing.T) {
	prompt, err := buildPrompt(testRecord(), nil)
	if err != nil {
		t.Fatalf("buildPrompt failed: %v", err)
	}
	if !strings.Contains(prompt, "[]") {
		t.Fatal("empty findings should render as an empty list")
	}
}

func TestStaticGeneratorDeterministic(t *testing.T) {
	gen := NewStatic()

	first, err := gen.Generate(context.Background(), testRecord(), testFindings())
	if err != nil {
		t.Fatalf("static generate failed: %v", err)
	}
	second, err := gen.Generate(context.Background(), testRecord(), testFindings())
	if err != nil {
		t.Fatalf("static generate failed: %v", err)
	}

	if first != second {
		t.Fatal("static generator must be deterministic")
	}
	if !strings.Contains(first, "2025-03-01") || !strings.Contains(first, "bitcoin") {
		t.Fatalf("summary missing record basics: %q", first)
	}
	if !strings.Contains(first, "Unusual price movement") {
		t.Fatalf("summary should mention the finding: %q", first)
	}
}

func TestStaticGeneratorStableStatement(t *testing.T) {
	summary, err := NewStatic().Generate(context.Background(), testRecord(), nil)
	if err != nil {
		t.Fatalf("static generate failed: %v", err)
	}
	if !strings.Contains(summary, "stable") {
		t.Fatalf("no-findings summary should state stability: %q", summary)
	}
}
