// Package server exposes the read-only query API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"daily-coin-report/internal/config"
	"daily-coin-report/internal/storage"
)

// summaryPending is served when the latest record exists but its summary
// stage has not completed yet.
const summaryPending = "Summary not generated yet."

// Server serves the latest completed run's artifacts. It never writes.
type Server struct {
	cfg       config.ServerConfig
	records   storage.RecordStore
	anomalies storage.AnomalyStore
	artifacts storage.ArtifactStore
	logger    zerolog.Logger
	engine    *gin.Engine
}

// New constructs the query server and registers its routes.
func New(cfg config.ServerConfig, records storage.RecordStore, anomalies storage.AnomalyStore, artifacts storage.ArtifactStore, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:       cfg,
		records:   records,
		anomalies: anomalies,
		artifacts: artifacts,
		logger:    logger.With().Str("component", "query_server").Logger(),
		engine:    engine,
	}

	engine.GET("/latest", s.handleLatest)
	engine.GET("/healthz", s.handleHealth)

	return s
}

// Run blocks serving requests until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("query server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type latestResponse struct {
	Date              string            `json:"date"`
	Coin              string            `json:"coin"`
	PriceUSD          *string           `json:"price_usd"`
	MarketCapUSD      *string           `json:"market_cap_usd"`
	Volume24hUSD      *string           `json:"volume_24h_usd"`
	PriceChangePct24h *string           `json:"price_change_pct_24h"`
	Summary           string            `json:"summary"`
	Anomalies         []anomalyResponse `json:"anomalies"`
}

type anomalyResponse struct {
	Metric         string `json:"metric"`
	TodayValue     string `json:"today_value"`
	YesterdayValue string `json:"yesterday_value"`
	ChangePct      string `json:"change_pct"`
	Note           string `json:"note"`
}

func (s *Server) handleLatest(c *gin.Context) {
	ctx := c.Request.Context()

	date, err := s.records.LatestDate(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no data available"})
			return
		}
		s.fail(c, err)
		return
	}

	record, err := s.records.GetRecord(ctx, date)
	if err != nil {
		// A record listed a moment ago may vanish only on storage faults;
		// treat a race against an in-flight overwrite as absent.
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no data available"})
			return
		}
		s.fail(c, err)
		return
	}

	summary, err := s.artifacts.GetSummary(ctx, date)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.fail(c, err)
			return
		}
		summary = summaryPending
	}

	rows, err := s.anomalies.ListAnomalies(ctx, date)
	if err != nil {
		s.fail(c, err)
		return
	}

	response := latestResponse{
		Date:              record.Date,
		Coin:              record.Coin,
		PriceUSD:          decimalString(record.PriceUSD),
		MarketCapUSD:      decimalString(record.MarketCapUSD),
		Volume24hUSD:      decimalString(record.Volume24hUSD),
		PriceChangePct24h: decimalString(record.PriceChangePct24h),
		Summary:           summary,
		Anomalies:         make([]anomalyResponse, 0, len(rows)),
	}
	for _, row := range rows {
		response.Anomalies = append(response.Anomalies, anomalyResponse{
			Metric:         row.Metric,
			TodayValue:     row.TodayValue.String(),
			YesterdayValue: row.YesterdayValue.String(),
			ChangePct:      row.ChangePct.String(),
			Note:           row.Note,
		})
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("query failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	value := d.String()
	return &value
}
