package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/api"
	"llmstxt-crawler/internal/app"
	"llmstxt-crawler/internal/jobs"
	"llmstxt-crawler/internal/liveness"
	"llmstxt-crawler/internal/logging"
	"llmstxt-crawler/internal/metrics"
	"llmstxt-crawler/internal/storage"
)

type serveFlags struct {
	configPath     string
	addr           string
	maxConcurrency int
}

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags serveFlags
	root := &cobra.Command{
		Use:           "llmstxt-api",
		Short:         "HTTP service that crawls websites and generates llms.txt",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the crawl API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	serveCmd.Flags().StringVar(&flags.configPath, "config", "", "path to a YAML config file (defaults are used when empty)")
	serveCmd.Flags().StringVar(&flags.addr, "addr", "", "HTTP listen address, overrides server.addr")
	serveCmd.Flags().IntVar(&flags.maxConcurrency, "max-concurrency", 0, "maximum concurrent crawl jobs, overrides server.max_concurrency")
	root.AddCommand(serveCmd)
	return root
}

func runServe(parent context.Context, flags serveFlags) error {
	cfg, err := app.LoadConfig(flags.configPath, os.LookupEnv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.addr != "" {
		cfg.Server.Addr = flags.addr
	}
	if flags.maxConcurrency > 0 {
		cfg.Server.MaxConcurrency = flags.maxConcurrency
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.NewRegistry())

	engine, err := app.NewEngine(cfg, m, logger)
	if err != nil {
		return err
	}
	synthesizer, err := app.NewSynthesizer(cfg.LLM, m, logger)
	if err != nil {
		return err
	}

	var db *storage.Store
	if cfg.DB.Enabled() {
		db, err = storage.Open(ctx, cfg.DB, logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
	} else {
		logger.Warn("no database configured, results are not persisted and domain status is disabled")
	}

	store, err := app.OpenJobStore(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("job store: %w", err)
	}
	defer store.Close()

	pool, err := jobs.NewWorkerPool(ctx, cfg.Server.MaxConcurrency, cfg.Server.QueueSize)
	if err != nil {
		return err
	}

	managerOpts := jobs.ManagerOptions{
		Store:          store,
		Pool:           pool,
		Crawler:        engine,
		Synthesizer:    synthesizer,
		Observer:       m,
		Logger:         logger,
		Timeout:        cfg.Jobs.Timeout.Duration,
		PollRetries:    cfg.Jobs.PollRetries,
		PollRetryDelay: cfg.Jobs.PollRetryDelay.Duration,
	}
	if db != nil {
		managerOpts.Results = db
	}
	manager, err := jobs.NewManager(managerOpts)
	if err != nil {
		return err
	}

	reaper := jobs.NewReaper(store, cfg.Jobs.Retention.Duration, logger)
	if err := reaper.Start(ctx, cfg.Jobs.CleanupSchedule); err != nil {
		return fmt.Errorf("schedule job cleanup: %w", err)
	}
	defer reaper.Stop()

	serverOpts := api.Options{
		Jobs:       manager,
		Metrics:    m.Handler(),
		Logger:     logger,
		StaleAfter: cfg.Liveness.StaleAfter.Duration,
	}
	if db != nil {
		checker := liveness.NewChecker(db, liveness.Options{
			Timeout:     cfg.Liveness.Timeout.Duration,
			Concurrency: cfg.Liveness.Concurrency,
			UserAgent:   cfg.Crawl.UserAgent,
			Observer:    m,
			Logger:      logger,
		})
		if cfg.Liveness.Enabled {
			if err := checker.Start(ctx, cfg.Liveness.Schedule); err != nil {
				return fmt.Errorf("schedule domain checks: %w", err)
			}
			defer checker.Stop()
		}
		serverOpts.Results = db
		serverOpts.Checker = checker
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(serverOpts),
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", zap.Error(err))
		}
	}()

	logger.Info("api server listening",
		zap.String("addr", cfg.Server.Addr),
		zap.Int("max_concurrency", cfg.Server.MaxConcurrency),
		zap.Int("queue_size", cfg.Server.QueueSize),
		zap.String("jobs_backend", cfg.Jobs.Backend),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-stopped
		pool.Close()
		return fmt.Errorf("server error: %w", err)
	}
	<-stopped
	pool.Close()
	logger.Info("api server stopped")
	return nil
}
