package fetcher

import (
	"context"
	"encoding/json"
)

// SnapshotFetcher retrieves market snapshots for the tracked coin.
type SnapshotFetcher interface {
	// FetchDaily returns the current full snapshot.
	FetchDaily(ctx context.Context) (json.RawMessage, error)
	// FetchHistorical returns the snapshot for a past date (YYYY-MM-DD).
	FetchHistorical(ctx context.Context, date string) (json.RawMessage, error)
}
