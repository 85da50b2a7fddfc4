package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"daily-coin-report/internal/storage"
)

// Export renders historical records as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListRecords(ctx)
	if err != nil {
		return err
	}

	records, err = filterRecords(records, opts.From, opts.To)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no records found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting records")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func filterRecords(records []storage.Record, from, to *time.Time) ([]storage.Record, error) {
	if from != nil && to != nil && !from.Before(*to) {
		return nil, errors.New("from must be before to")
	}

	result := make([]storage.Record, 0, len(records))
	for _, record := range records {
		day, err := time.Parse(storage.DateLayout, record.Date)
		if err != nil {
			continue
		}
		if from != nil && day.Before(from.UTC().Truncate(24*time.Hour)) {
			continue
		}
		if to != nil && day.After(to.UTC()) {
			continue
		}
		result = append(result, record)
	}
	return result, nil
}

func downsampleRecords(records []storage.Record, max int) []storage.Record {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.Record, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []storage.Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "coin", "price_usd", "market_cap_usd", "volume_24h_usd", "price_change_pct_24h"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		row := []string{
			record.Date,
			record.Coin,
			decimalField(record.PriceUSD),
			decimalField(record.MarketCapUSD),
			decimalField(record.Volume24hUSD),
			decimalField(record.PriceChangePct24h),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRecordsPNG(path string, records []storage.Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(records))
	price := make([]float64, 0, len(records))
	marketCap := make([]float64, 0, len(records))

	for _, record := range records {
		day, err := time.Parse(storage.DateLayout, record.Date)
		if err != nil {
			continue
		}
		x = append(x, day)
		price = append(price, decimalFloat(record.PriceUSD))
		marketCap = append(marketCap, decimalFloat(record.MarketCapUSD))
	}
	if len(x) < 2 {
		return errors.New("need at least two records to render a chart")
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Market Cap (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price",
				XValues: x,
				YValues: price,
			},
			chart.TimeSeries{
				Name:    "Market Cap",
				XValues: x,
				YValues: marketCap,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func decimalField(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func decimalFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
