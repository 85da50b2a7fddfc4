package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"daily-coin-report/internal/alerting"
	"daily-coin-report/internal/config"
	"daily-coin-report/internal/fetcher"
	"daily-coin-report/internal/narrative"
	"daily-coin-report/internal/report"
	"daily-coin-report/internal/server"
	"daily-coin-report/internal/service"
	"daily-coin-report/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.SnapshotFetcher {
	return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:      a.Config.CoinGecko.BaseURL,
		CoinID:       a.Config.CoinGecko.CoinID,
		APIKey:       a.Config.CoinGecko.APIKey,
		Timeout:      a.Config.CoinGecko.RequestTimeout,
		UserAgent:    a.Config.CoinGecko.UserAgent,
		FetchLogPath: a.Config.CoinGecko.FetchLogPath,
	}, a.Logger)
}

func (a *App) newGenerator() narrative.Generator {
	if a.Config.OpenAI.Enabled {
		return narrative.NewOpenAI(narrative.OpenAIOptions{
			APIKey:    a.Config.OpenAI.APIKey,
			Model:     a.Config.OpenAI.Model,
			MaxTokens: a.Config.OpenAI.MaxTokens,
			Timeout:   a.Config.OpenAI.RequestTimeout,
		}, a.Logger)
	}
	return narrative.NewStatic()
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Email.Enabled {
		return nil
	}
	cfg := a.Config.Email
	return alerting.NewEmailNotifier(alerting.EmailOptions{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		To:       cfg.To,
		Timeout:  cfg.Timeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store) (*service.Service, error) {
	renderer, err := report.NewHTMLRenderer()
	if err != nil {
		return nil, err
	}

	return service.New(
		a.Config,
		a.newFetcher(),
		store,
		store,
		store,
		a.newGenerator(),
		renderer,
		a.newNotifier(),
		a.Logger,
	), nil
}

// RunOptions configure a single pipeline invocation.
type RunOptions struct {
	Date string
}

// RunDaily executes the pipeline once for the given (or current) date.
func (a *App) RunDaily(ctx context.Context, opts RunOptions) error {
	date := opts.Date
	if date == "" {
		date = time.Now().UTC().Format(storage.DateLayout)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	a.Logger.Info().Str("date", date).Msg("starting daily pipeline")
	return svc.RunDaily(ctx, date)
}

// Serve runs the query API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := server.New(a.Config.Server, store, store, store, a.Logger)

	err = srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("query server terminated with error")
		return err
	}

	a.Logger.Info().Msg("query server stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical records.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}
