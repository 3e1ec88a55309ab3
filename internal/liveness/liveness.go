// Package liveness probes crawled domains for a published /llms.txt.
package liveness

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"llmstxt-crawler/internal/jobs"
	"llmstxt-crawler/internal/logging"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultConcurrency = 8
)

// DomainStore lists crawled domains and records probe results. *storage.Store satisfies it.
type DomainStore interface {
	Domains(ctx context.Context) ([]string, error)
	UpsertDomainStatus(ctx context.Context, domain string, hasLlmsTxt bool, checkedAt time.Time) error
}

// Observer is told about each probe.
type Observer interface {
	DomainChecked(hasLlmsTxt bool)
}

type nopObserver struct{}

func (nopObserver) DomainChecked(bool) {}

// Result is the outcome for one domain.
type Result struct {
	Domain      string    `json:"domain"`
	HasLlmsTxt  bool      `json:"hasLlmsTxt"`
	LastChecked time.Time `json:"lastChecked"`
}

// Report is the outcome of a full sweep.
type Report struct {
	Checked int      `json:"checked"`
	Results []Result `json:"results"`
}

// Options configures a Checker.
type Options struct {
	Timeout     time.Duration
	Concurrency int
	UserAgent   string
	Client      *http.Client
	Observer    Observer
	Logger      *zap.Logger
}

// Checker sends HEAD https://{domain}/llms.txt for every crawled domain.
type Checker struct {
	store       DomainStore
	client      *http.Client
	timeout     time.Duration
	concurrency int
	userAgent   string
	observer    Observer
	logger      *zap.Logger
	now         func() time.Time
	probeURL    func(domain string) string

	mu   sync.Mutex
	cron *cron.Cron
}

// NewChecker applies defaults to opts.
func NewChecker(store DomainStore, opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Checker{
		store:       store,
		client:      opts.Client,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		userAgent:   opts.UserAgent,
		observer:    opts.Observer,
		logger:      logging.OrNop(opts.Logger).With(zap.String("component", "liveness")),
		now:         time.Now,
		probeURL:    func(domain string) string { return "https://" + domain + "/llms.txt" },
	}
}

// Probe reports whether domain serves llms.txt with a 2xx status. Any failure counts as absent.
func (c *Checker) Probe(ctx context.Context, domain string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.probeURL(domain), nil)
	if err != nil {
		return false
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("llms.txt probe failed", zap.String("domain", domain), zap.Error(err))
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// CheckAll probes every crawled domain and stores the results. Probe and upsert failures do
// not stop the sweep; only listing the domains can fail it.
func (c *Checker) CheckAll(ctx context.Context) (Report, error) {
	domains, err := c.store.Domains(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list domains: %w", err)
	}

	results := make([]Result, len(domains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, domain := range domains {
		g.Go(func() error {
			has := c.Probe(gctx, domain)
			checked := c.now()
			c.observer.DomainChecked(has)
			if err := c.store.UpsertDomainStatus(gctx, domain, has, checked); err != nil {
				c.logger.Warn("storing domain status failed", zap.String("domain", domain), zap.Error(err))
			}
			results[i] = Result{Domain: domain, HasLlmsTxt: has, LastChecked: checked}
			return nil
		})
	}
	_ = g.Wait()

	c.logger.Info("domain sweep finished", zap.Int("checked", len(results)))
	return Report{Checked: len(results), Results: results}, nil
}

// Start runs CheckAll on spec until Stop.
func (c *Checker) Start(ctx context.Context, spec string) error {
	cr := cron.New(cron.WithParser(jobs.CronParser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := cr.AddFunc(spec, func() {
		if _, err := c.CheckAll(ctx); err != nil {
			c.logger.Warn("scheduled domain sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule domain sweep %q: %w", spec, err)
	}
	c.mu.Lock()
	c.cron = cr
	c.mu.Unlock()
	cr.Start()
	c.logger.Info("domain sweep scheduled", zap.String("schedule", spec))
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (c *Checker) Stop() {
	c.mu.Lock()
	cr := c.cron
	c.mu.Unlock()
	if cr != nil {
		<-cr.Stop().Done()
	}
}
