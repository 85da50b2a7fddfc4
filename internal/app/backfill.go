package app

import (
	"context"
	"errors"
	"time"

	"daily-coin-report/internal/normalize"
	"daily-coin-report/internal/storage"
)

// Backfill fetches historical snapshots for a date range and stores them as
// daily records. Detection and reporting are left to regular runs.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	from := opts.From.UTC().Truncate(24 * time.Hour)
	to := opts.To.UTC().Truncate(24 * time.Hour)
	if from.After(to) {
		return errors.New("backfill range is empty, check --from/--to")
	}

	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run, nothing will be written")
	} else {
		var closeStore func()
		var err error
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()
	}

	fetch := a.newFetcher()
	coin := a.Config.CoinGecko.CoinID

	processed := 0
	failed := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		date := day.Format(storage.DateLayout)

		raw, err := fetch.FetchHistorical(ctx, date)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("date", date).Msg("backfill fetch failed")
			continue
		}

		record, err := normalize.Normalize(raw, date, coin)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Str("date", date).Msg("backfill normalize failed")
			continue
		}

		if store != nil {
			if err := store.UpsertRecord(ctx, record); err != nil {
				failed++
				a.Logger.Error().Err(err).Str("date", date).Msg("backfill store failed")
				continue
			}
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill finished")
	if failed > 0 {
		return errors.New("some dates failed to backfill, check logs")
	}
	return nil
}
