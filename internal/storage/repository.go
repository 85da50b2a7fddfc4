package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = errors.New("storage: not found")
)

const (
	upsertRecordSQL = `INSERT INTO records (
        record_date,
        coin,
        price_usd,
        market_cap_usd,
        volume_24h_usd,
        price_change_pct_24h,
        raw
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (record_date) DO UPDATE
    SET
        coin                 = EXCLUDED.coin,
        price_usd            = EXCLUDED.price_usd,
        market_cap_usd       = EXCLUDED.market_cap_usd,
        volume_24h_usd       = EXCLUDED.volume_24h_usd,
        price_change_pct_24h = EXCLUDED.price_change_pct_24h,
        raw                  = EXCLUDED.raw;`

	selectRecordColumns = `SELECT
        record_date,
        coin,
        price_usd,
        market_cap_usd,
        volume_24h_usd,
        price_change_pct_24h,
        raw,
        created_at
    FROM records`

	getRecordSQL = selectRecordColumns + `
    WHERE record_date = $1;`

	listRecordsSQL = selectRecordColumns + `
    ORDER BY record_date;`

	listRecentRecordsSQL = selectRecordColumns + `
    ORDER BY record_date DESC
    LIMIT $1;`

	countRecordsSQL = `SELECT COUNT(*) FROM records;`

	latestDateSQL = `SELECT record_date FROM records ORDER BY record_date DESC LIMIT 1;`

	deleteAnomaliesForDateSQL = `DELETE FROM anomalies WHERE record_date = $1;`

	insertAnomalySQL = `INSERT INTO anomalies (
        record_date,
        metric,
        today_value,
        yesterday_value,
        change_pct,
        note
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	listAnomaliesSQL = `SELECT
        record_date,
        metric,
        today_value,
        yesterday_value,
        change_pct,
        note,
        created_at
    FROM anomalies
    WHERE record_date = $1
    ORDER BY CASE metric
        WHEN 'price' THEN 1
        WHEN 'volume' THEN 2
        WHEN 'market_cap' THEN 3
        ELSE 4
    END;`

	upsertSummarySQL = `INSERT INTO summaries (record_date, summary)
    VALUES ($1, $2)
    ON CONFLICT (record_date) DO UPDATE SET summary = EXCLUDED.summary;`

	getSummarySQL = `SELECT summary FROM summaries WHERE record_date = $1;`

	upsertReportSQL = `INSERT INTO reports (record_date, document)
    VALUES ($1, $2)
    ON CONFLICT (record_date) DO UPDATE SET document = EXCLUDED.document;`

	getReportSQL = `SELECT document FROM reports WHERE record_date = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RecordStore defines operations for daily record persistence.
type RecordStore interface {
	UpsertRecord(ctx context.Context, record Record) error
	GetRecord(ctx context.Context, date string) (Record, error)
	ListRecords(ctx context.Context) ([]Record, error)
	ListRecentRecords(ctx context.Context, limit int) ([]Record, error)
	CountRecords(ctx context.Context) (int64, error)
	LatestDate(ctx context.Context) (string, error)
}

// AnomalyStore defines operations for the date-keyed anomaly sets.
type AnomalyStore interface {
	ReplaceAnomalies(ctx context.Context, date string, rows []AnomalyRecord) error
	ListAnomalies(ctx context.Context, date string) ([]AnomalyRecord, error)
}

// ArtifactStore defines operations for per-date summary and report artifacts.
type ArtifactStore interface {
	UpsertSummary(ctx context.Context, date, summary string) error
	GetSummary(ctx context.Context, date string) (string, error)
	UpsertReport(ctx context.Context, date string, document []byte) error
	GetReport(ctx context.Context, date string) ([]byte, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to records, anomalies, and artifacts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema applies the embedded DDL. All statements are idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertRecord persists or overwrites the record for its date.
func (s *Store) UpsertRecord(ctx context.Context, record Record) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	date, err := parseDate(record.Date)
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertRecordSQL,
		date,
		record.Coin,
		decimalArg(record.PriceUSD),
		decimalArg(record.MarketCapUSD),
		decimalArg(record.Volume24hUSD),
		decimalArg(record.PriceChangePct24h),
		[]byte(record.Raw),
	)
	if execErr != nil {
		return fmt.Errorf("upsert record: %w", execErr)
	}
	return nil
}

// GetRecord fetches the record for a date, or ErrNotFound.
func (s *Store) GetRecord(ctx context.Context, date string) (Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return Record{}, err
	}

	day, err := parseDate(date)
	if err != nil {
		return Record{}, err
	}

	rows, queryErr := pool.Query(ctx, getRecordSQL, day)
	if queryErr != nil {
		return Record{}, fmt.Errorf("get record: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return Record{}, rows.Err()
		}
		return Record{}, ErrNotFound
	}
	return scanRecord(rows)
}

// ListRecords returns all records ordered by ascending date.
func (s *Store) ListRecords(ctx context.Context) ([]Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecordsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list records: %w", queryErr)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListRecentRecords returns the most recent records ordered by descending date.
func (s *Store) ListRecentRecords(ctx context.Context, limit int) ([]Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRecordsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent records: %w", queryErr)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountRecords counts stored records.
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countRecordsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count records: %w", scanErr)
	}
	return count, nil
}

// LatestDate returns the most recent record date, or ErrNotFound when empty.
func (s *Store) LatestDate(ctx context.Context) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}
	var day time.Time
	if scanErr := pool.QueryRow(ctx, latestDateSQL).Scan(&day); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("latest date: %w", scanErr)
	}
	return day.Format(DateLayout), nil
}

// ReplaceAnomalies swaps the anomaly set for a date in one transaction.
func (s *Store) ReplaceAnomalies(ctx context.Context, date string, anomalies []AnomalyRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	day, err := parseDate(date)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace anomalies: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, execErr := tx.Exec(ctx, deleteAnomaliesForDateSQL, day); execErr != nil {
		return fmt.Errorf("delete anomalies: %w", execErr)
	}

	for _, anomaly := range anomalies {
		if _, execErr := tx.Exec(ctx, insertAnomalySQL,
			day,
			anomaly.Metric,
			anomaly.TodayValue.String(),
			anomaly.YesterdayValue.String(),
			anomaly.ChangePct.String(),
			anomaly.Note,
		); execErr != nil {
			return fmt.Errorf("insert anomaly: %w", execErr)
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit replace anomalies: %w", commitErr)
	}
	return nil
}

// ListAnomalies lists the anomaly set for a date in metric order.
func (s *Store) ListAnomalies(ctx context.Context, date string) ([]AnomalyRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAnomaliesSQL, day)
	if queryErr != nil {
		return nil, fmt.Errorf("list anomalies: %w", queryErr)
	}
	defer rows.Close()

	anomalies := make([]AnomalyRecord, 0)
	for rows.Next() {
		var (
			rec          AnomalyRecord
			recDay       time.Time
			todayStr     string
			yesterdayStr string
			changeStr    string
		)
		if err := rows.Scan(
			&recDay,
			&rec.Metric,
			&todayStr,
			&yesterdayStr,
			&changeStr,
			&rec.Note,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Date = recDay.Format(DateLayout)

		var convErr error
		rec.TodayValue, convErr = decimal.NewFromString(todayStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse today value: %w", convErr)
		}
		rec.YesterdayValue, convErr = decimal.NewFromString(yesterdayStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse yesterday value: %w", convErr)
		}
		rec.ChangePct, convErr = decimal.NewFromString(changeStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse change pct: %w", convErr)
		}

		anomalies = append(anomalies, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return anomalies, nil
}

// UpsertSummary persists or overwrites the summary for a date.
func (s *Store) UpsertSummary(ctx context.Context, date, summary string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	day, err := parseDate(date)
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertSummarySQL, day, summary); execErr != nil {
		return fmt.Errorf("upsert summary: %w", execErr)
	}
	return nil
}

// GetSummary fetches the summary for a date, or ErrNotFound.
func (s *Store) GetSummary(ctx context.Context, date string) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}
	day, err := parseDate(date)
	if err != nil {
		return "", err
	}
	var summary string
	if scanErr := pool.QueryRow(ctx, getSummarySQL, day).Scan(&summary); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get summary: %w", scanErr)
	}
	return summary, nil
}

// UpsertReport persists or overwrites the report document for a date.
func (s *Store) UpsertReport(ctx context.Context, date string, document []byte) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	day, err := parseDate(date)
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertReportSQL, day, document); execErr != nil {
		return fmt.Errorf("upsert report: %w", execErr)
	}
	return nil
}

// GetReport fetches the report document for a date, or ErrNotFound.
func (s *Store) GetReport(ctx context.Context, date string) ([]byte, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	var document []byte
	if scanErr := pool.QueryRow(ctx, getReportSQL, day).Scan(&document); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get report: %w", scanErr)
	}
	return document, nil
}

func parseDate(date string) (time.Time, error) {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return day, nil
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanRecord(rows pgx.Rows) (Record, error) {
	var (
		day       time.Time
		coin      string
		price     sql.NullString
		marketCap sql.NullString
		volume    sql.NullString
		changePct sql.NullString
		raw       json.RawMessage
		createdAt time.Time
	)

	if err := rows.Scan(
		&day,
		&coin,
		&price,
		&marketCap,
		&volume,
		&changePct,
		&raw,
		&createdAt,
	); err != nil {
		return Record{}, err
	}

	record := Record{
		Date:      day.Format(DateLayout),
		Coin:      coin,
		Raw:       raw,
		CreatedAt: createdAt,
	}

	var err error
	if record.PriceUSD, err = nullDecimal(price); err != nil {
		return Record{}, fmt.Errorf("parse price: %w", err)
	}
	if record.MarketCapUSD, err = nullDecimal(marketCap); err != nil {
		return Record{}, fmt.Errorf("parse market cap: %w", err)
	}
	if record.Volume24hUSD, err = nullDecimal(volume); err != nil {
		return Record{}, fmt.Errorf("parse volume: %w", err)
	}
	if record.PriceChangePct24h, err = nullDecimal(changePct); err != nil {
		return Record{}, fmt.Errorf("parse price change pct: %w", err)
	}

	return record, nil
}

func nullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
