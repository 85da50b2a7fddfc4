package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
)

// Show prints recent daily records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListRecentRecords(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tCoin\tPrice (USD)\tMarket Cap (USD)\tVolume 24h (USD)\tChg 24h%")

	for _, record := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			record.Date,
			record.Coin,
			formatDecimal(record.PriceUSD, 2),
			formatDecimal(record.MarketCapUSD, 0),
			formatDecimal(record.Volume24hUSD, 0),
			formatDecimal(record.PriceChangePct24h, 2),
		)
	}

	writer.Flush()
	return nil
}

func formatDecimal(d *decimal.Decimal, places int32) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(places)
}
