package report

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"daily-coin-report/internal/anomaly"
	"daily-coin-report/internal/storage"
)

func TestRenderWithAnomalies(t *testing.T) {
	renderer, err := NewHTMLRenderer()
	if err != nil {
		t.Fatalf("renderer construction failed: %v", err)
	}

	price := decimal.NewFromInt(53000)
	record := storage.Record{Date: "2025-03-02", Coin: "bitcoin", PriceUSD: &price}
	findings := []anomaly.Finding{{
		Metric:         anomaly.MetricPrice,
		TodayValue:     decimal.NewFromInt(53000),
		YesterdayValue: decimal.NewFromInt(60000),
		ChangePct:      decimal.NewFromFloat(11.67),
		Note:           "Unusual price movement (>10%)",
	}}

	doc, err := renderer.Render("2025-03-02", record, findings, "Price fell sharply today.")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	html := string(doc)
	for _, want := range []string{"2025-03-02", "bitcoin", "53000", "11.67", "Unusual price movement", "Price fell sharply today."} {
		if !strings.Contains(html, want) {
			t.Fatalf("report missing %q", want)
		}
	}
}

func TestRenderStable(t *testing.T) {
	renderer, err := NewHTMLRenderer()
	if err != nil {
		t.Fatalf("renderer construction failed: %v", err)
	}

	record := storage.Record{Date: "2025-03-02", Coin: "bitcoin"}
	doc, err := renderer.Render("2025-03-02", record, nil, "Quiet day.")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	html := string(doc)
	if !strings.Contains(html, "No anomalies detected") {
		t.Fatal("stable report should carry the explicit stable statement")
	}
	if !strings.Contains(html, "n/a") {
		t.Fatal("missing metrics should render as n/a")
	}
}

func TestRenderEscapesSummary(t *testing.T) {
	renderer, err := NewHTMLRenderer()
	if err != nil {
		t.Fatalf("renderer construction failed: %v", err)
	}

	doc, err := renderer.Render("2025-03-02", storage.Record{Coin: "bitcoin"}, nil, `<script>alert("x")</script>`)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(string(doc), "<script>") {
		t.Fatal("summary text must be HTML-escaped")
	}
}
