// Package app assembles the crawler, synthesizer, and job stores from configuration so the
// server and the one-shot CLI share one wiring path.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"llmstxt-crawler/internal/classifier"
	"llmstxt-crawler/internal/config"
	"llmstxt-crawler/internal/crawler"
	"llmstxt-crawler/internal/extractor"
	"llmstxt-crawler/internal/fetcher"
	"llmstxt-crawler/internal/jobs"
	"llmstxt-crawler/internal/llm"
	"llmstxt-crawler/internal/logging"
	"llmstxt-crawler/internal/robots"
	"llmstxt-crawler/internal/storage"
	"llmstxt-crawler/internal/synth"
)

// LoadConfig reads path (defaults when empty) and overlays the environment.
func LoadConfig(path string, lookup config.LookupFunc) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewEngine builds the crawl engine with its browser, extractor, classifier and robots agent.
func NewEngine(cfg *config.Config, observer crawler.Observer, logger *zap.Logger) (*crawler.Engine, error) {
	logger = logging.OrNop(logger)
	browser, err := fetcher.New(fetcher.OptionsFromConfig(cfg.Rendering, cfg.Crawl), logger)
	if err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	if hb, ok := browser.(*fetcher.HTTPBrowser); ok {
		client = hb.Client()
	}
	robotsAgent := robots.NewAgent(cfg.Robots, client, logger)
	return crawler.NewEngine(cfg.Crawl, crawler.Options{
		Browser:    browser,
		Extractor:  extractor.New(cfg.Extract),
		Classifier: classifier.New(nil),
		Robots:     robotsAgent,
		Observer:   observer,
		Logger:     logger,
	})
}

// NewSynthesizer picks the configured generator. Without one, synthesis stays heuristic.
func NewSynthesizer(cfg config.LLMConfig, observer synth.Observer, logger *zap.Logger) (*synth.Synthesizer, error) {
	gen, err := llm.New(cfg, logger)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		logging.OrNop(logger).Info("no llm provider configured, using heuristic llms.txt")
		gen = nil
	case err != nil:
		return nil, err
	}
	return synth.New(gen, synth.Options{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Observer:    observer,
		Logger:      logger,
	}), nil
}

// JobStore is a job store plus whatever must be closed with it.
type JobStore struct {
	jobs.Store
	closer io.Closer
}

// Close releases the backing connection, if any.
func (s JobStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpenJobStore selects the progress backend named by cfg.Jobs.Backend. db is only consulted
// for the sql backend and must then be non-nil.
func OpenJobStore(ctx context.Context, cfg *config.Config, db *storage.Store) (JobStore, error) {
	switch cfg.Jobs.Backend {
	case "memory":
		return JobStore{Store: jobs.NewMemoryStore()}, nil
	case "redis":
		client, err := jobs.DialRedis(ctx, cfg.Redis)
		if err != nil {
			return JobStore{}, err
		}
		return JobStore{Store: jobs.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Jobs.Retention.Duration), closer: client}, nil
	case "sql":
		if db == nil {
			return JobStore{}, errors.New("sql job backend requires a database")
		}
		return JobStore{Store: db.Progress()}, nil
	default:
		return JobStore{}, fmt.Errorf("unsupported jobs.backend %q", cfg.Jobs.Backend)
	}
}
