// Package report renders the daily HTML report document.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"daily-coin-report/internal/anomaly"
	"daily-coin-report/internal/storage"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

// Renderer produces the per-date report document.
type Renderer interface {
	Render(date string, record storage.Record, findings []anomaly.Finding, summary string) ([]byte, error)
}

// HTMLRenderer renders the embedded HTML template.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer parses the embedded template. The template ships with the
// binary, so a parse failure is a programming error.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

type reportData struct {
	Date              string
	Coin              string
	PriceUSD          string
	MarketCapUSD      string
	Volume24hUSD      string
	PriceChangePct24h string
	Anomalies         []anomalyData
	Summary           string
}

type anomalyData struct {
	Metric         string
	TodayValue     string
	YesterdayValue string
	ChangePct      string
	Note           string
}

// Render produces the report document bytes for one date.
func (r *HTMLRenderer) Render(date string, record storage.Record, findings []anomaly.Finding, summary string) ([]byte, error) {
	data := reportData{
		Date:    date,
		Coin:    record.Coin,
		Summary: summary,
	}
	if record.PriceUSD != nil {
		data.PriceUSD = record.PriceUSD.String()
	}
	if record.MarketCapUSD != nil {
		data.MarketCapUSD = record.MarketCapUSD.String()
	}
	if record.Volume24hUSD != nil {
		data.Volume24hUSD = record.Volume24hUSD.String()
	}
	if record.PriceChangePct24h != nil {
		data.PriceChangePct24h = record.PriceChangePct24h.String()
	}

	for _, f := range findings {
		data.Anomalies = append(data.Anomalies, anomalyData{
			Metric:         string(f.Metric),
			TodayValue:     f.TodayValue.String(),
			YesterdayValue: f.YesterdayValue.String(),
			ChangePct:      f.ChangePct.String(),
			Note:           f.Note,
		})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

var _ Renderer = (*HTMLRenderer)(nil)
