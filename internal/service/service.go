// Package service sequences the daily pipeline.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"daily-coin-report/internal/alerting"
	"daily-coin-report/internal/anomaly"
	"daily-coin-report/internal/config"
	"daily-coin-report/internal/fetcher"
	"daily-coin-report/internal/narrative"
	"daily-coin-report/internal/normalize"
	"daily-coin-report/internal/report"
	"daily-coin-report/internal/storage"
)

// Service orchestrates fetch, normalization, detection, narrative, report,
// and notification for one calendar day per invocation.
type Service struct {
	fetcher   fetcher.SnapshotFetcher
	records   storage.RecordStore
	anomalies storage.AnomalyStore
	artifacts storage.ArtifactStore
	generator narrative.Generator
	renderer  report.Renderer
	notifier  alerting.Notifier
	logger    zerolog.Logger

	thresholds anomaly.Thresholds
	coin       string
	reportDir  string
	locker     storage.AdvisoryLocker
	lockKey    int64
}

// New constructs the pipeline service. The notifier may be nil; every other
// collaborator is required for a full run.
func New(
	cfg *config.Config,
	fetch fetcher.SnapshotFetcher,
	records storage.RecordStore,
	anomalies storage.AnomalyStore,
	artifacts storage.ArtifactStore,
	generator narrative.Generator,
	renderer report.Renderer,
	notifier alerting.Notifier,
	logger zerolog.Logger,
) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := records.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		fetcher:    fetch,
		records:    records,
		anomalies:  anomalies,
		artifacts:  artifacts,
		generator:  generator,
		renderer:   renderer,
		notifier:   notifier,
		logger:     logger.With().Str("component", "service").Logger(),
		thresholds: anomaly.ThresholdsFromFloats(cfg.Pipeline.PriceThreshold, cfg.Pipeline.VolumeThreshold, cfg.Pipeline.MarketCapThreshold),
		coin:       cfg.CoinGecko.CoinID,
		reportDir:  cfg.Report.OutputDir,
		locker:     locker,
		lockKey:    cfg.Pipeline.AdvisoryLockKey,
	}
}

// stage is one pipeline step with an explicit failure policy. A fatal stage
// aborts the remainder of the run; a non-fatal one is logged and skipped.
type stage struct {
	name  string
	fatal bool
	run   func(ctx context.Context) error
}

// dailyRun carries intermediate state across the stages of one invocation.
type dailyRun struct {
	date     string
	raw      json.RawMessage
	record   storage.Record
	history  []storage.Record
	findings []anomaly.Finding
	summary  string
	document []byte
}

// RunDaily executes the full pipeline for one date. Re-running the same date
// overwrites its artifacts deterministically; completed artifacts from a
// partially failed run are never rolled back. When another invocation holds
// the run guard the call is a logged no-op.
func (s *Service) RunDaily(ctx context.Context, date string) error {
	if s.fetcher == nil || s.records == nil || s.anomalies == nil || s.artifacts == nil {
		return fmt.Errorf("pipeline collaborators not configured")
	}
	if s.generator == nil || s.renderer == nil {
		return fmt.Errorf("narrative generator and report renderer required")
	}
	if _, err := time.Parse(storage.DateLayout, date); err != nil {
		return fmt.Errorf("invalid run date %q: %w", date, err)
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Warn().Str("date", date).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	run := &dailyRun{date: date}
	for _, st := range s.stages(run) {
		s.logger.Info().Str("date", date).Str("stage", st.name).Msg("executing stage")
		if err := st.run(ctx); err != nil {
			if st.fatal {
				s.logger.Error().Err(err).Str("date", date).Str("stage", st.name).Msg("fatal stage failure, aborting run")
				return fmt.Errorf("stage %s: %w", st.name, err)
			}
			s.logger.Error().Err(err).Str("date", date).Str("stage", st.name).Msg("non-fatal stage failure, continuing")
		}
	}

	s.logger.Info().Str("date", date).Int("anomalies", len(run.findings)).Msg("daily pipeline complete")
	return nil
}

// stages returns the ordered stage table. Only notification is non-fatal:
// once the artifacts are persisted, distribution is best-effort.
func (s *Service) stages(run *dailyRun) []stage {
	return []stage{
		{name: "fetch", fatal: true, run: func(ctx context.Context) error {
			raw, err := s.fetcher.FetchDaily(ctx)
			if err != nil {
				return err
			}
			run.raw = raw
			return nil
		}},
		{name: "normalize", fatal: true, run: func(ctx context.Context) error {
			record, err := normalize.Normalize(run.raw, run.date, s.coin)
			if err != nil {
				return err
			}
			if err := s.records.UpsertRecord(ctx, record); err != nil {
				return err
			}
			run.record = record
			return nil
		}},
		{name: "load_history", fatal: true, run: func(ctx context.Context) error {
			history, err := s.records.ListRecords(ctx)
			if err != nil {
				return err
			}
			run.history = history
			return nil
		}},
		{name: "detect", fatal: true, run: func(ctx context.Context) error {
			run.findings = anomaly.Detect(run.history, s.thresholds)
			return s.anomalies.ReplaceAnomalies(ctx, run.date, findingsToRecords(run.date, run.findings))
		}},
		{name: "summarize", fatal: true, run: func(ctx context.Context) error {
			summary, err := s.generator.Generate(ctx, run.record, run.findings)
			if err != nil {
				return err
			}
			if err := s.artifacts.UpsertSummary(ctx, run.date, summary); err != nil {
				return err
			}
			run.summary = summary
			return nil
		}},
		{name: "render", fatal: true, run: func(ctx context.Context) error {
			document, err := s.renderer.Render(run.date, run.record, run.findings, run.summary)
			if err != nil {
				return err
			}
			if err := s.artifacts.UpsertReport(ctx, run.date, document); err != nil {
				return err
			}
			if err := s.writeReportFile(run.date, document); err != nil {
				return err
			}
			run.document = document
			return nil
		}},
		{name: "notify", fatal: false, run: func(ctx context.Context) error {
			if s.notifier == nil {
				s.logger.Debug().Str("date", run.date).Msg("no notifier configured, skipping delivery")
				return nil
			}
			return s.notifier.Notify(ctx, alerting.Notification{
				Date:       run.date,
				Record:     run.record,
				Findings:   run.findings,
				Summary:    run.summary,
				ReportName: reportFileName(run.date),
				Report:     run.document,
			})
		}},
	}
}

// SimulateDetection feeds a synthetic two-day price history through the real
// detector and, when configured, the notifier. No network fetch, no
// persistence.
func (s *Service) SimulateDetection(ctx context.Context, prevPrice, todayPrice decimal.Decimal) ([]anomaly.Finding, error) {
	today := time.Now().UTC()
	prevDate := today.AddDate(0, 0, -1).Format(storage.DateLayout)
	todayDate := today.Format(storage.DateLayout)

	history := []storage.Record{
		{Date: prevDate, Coin: s.coin, PriceUSD: &prevPrice},
		{Date: todayDate, Coin: s.coin, PriceUSD: &todayPrice},
	}

	findings := anomaly.Detect(history, s.thresholds)

	if s.notifier != nil {
		summary := fmt.Sprintf("Simulated detection for %s: price %s -> %s, %d finding(s).",
			s.coin, prevPrice.String(), todayPrice.String(), len(findings))
		if err := s.notifier.Notify(ctx, alerting.Notification{
			Date:     todayDate,
			Record:   history[1],
			Findings: findings,
			Summary:  summary,
		}); err != nil {
			return findings, fmt.Errorf("simulated notification: %w", err)
		}
	}

	return findings, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// writeReportFile mirrors the report document to the output directory using
// a temp file and atomic rename, so a concurrent reader never observes a
// partially written report.
func (s *Service) writeReportFile(date string, document []byte) error {
	if s.reportDir == "" {
		return nil
	}

	if err := os.MkdirAll(s.reportDir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	target := filepath.Join(s.reportDir, reportFileName(date))
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, document, 0o644); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("publish report file: %w", err)
	}
	return nil
}

func reportFileName(date string) string {
	return fmt.Sprintf("report_%s.html", date)
}

func findingsToRecords(date string, findings []anomaly.Finding) []storage.AnomalyRecord {
	rows := make([]storage.AnomalyRecord, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, storage.AnomalyRecord{
			Date:           date,
			Metric:         string(f.Metric),
			TodayValue:     f.TodayValue,
			YesterdayValue: f.YesterdayValue,
			ChangePct:      f.ChangePct,
			Note:           f.Note,
		})
	}
	return rows
}
