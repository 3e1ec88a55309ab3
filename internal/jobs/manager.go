package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"llmstxt-crawler/internal/crawler"
	"llmstxt-crawler/internal/logging"
	"llmstxt-crawler/internal/synth"
	"llmstxt-crawler/pkg/types"
)

const (
	processingMessage = "Generating llms.txt..."
	completedMessage  = "Completed"
	storeWriteTimeout = 5 * time.Second
	persistTimeout    = 10 * time.Second
)

var (
	// ErrNotRunning is returned when cancelling a job that has no active run.
	ErrNotRunning = errors.New("job is not running")

	errCancelled = errors.New("crawl cancelled")
	errTimedOut  = errors.New("crawl timed out")
)

// Crawler runs one crawl. *crawler.Engine satisfies it.
type Crawler interface {
	Crawl(ctx context.Context, req types.CrawlRequest, sink crawler.ProgressSink) (*crawler.Result, error)
}

// Synthesizer builds the generated content for a finished crawl. *synth.Synthesizer satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, siteURL string, pages []types.ProcessedPage) *types.LlmsTxtContent
}

// ResultSink persists the documents of a completed job.
type ResultSink interface {
	SaveResult(ctx context.Context, res types.CrawlResult) error
}

// Observer is told when a job reaches a terminal state.
type Observer interface {
	JobFinished(status Status, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) JobFinished(Status, time.Duration) {}

// ManagerOptions wires a Manager.
type ManagerOptions struct {
	Store          Store
	Pool           *WorkerPool
	Crawler        Crawler
	Synthesizer    Synthesizer
	Results        ResultSink
	Broker         *Broker
	Observer       Observer
	Logger         *zap.Logger
	Timeout        time.Duration
	PollRetries    int
	PollRetryDelay time.Duration
}

// Manager accepts crawl requests, runs them on the worker pool, and keeps the job record
// current for pollers.
type Manager struct {
	store          Store
	pool           *WorkerPool
	crawler        Crawler
	synth          Synthesizer
	results        ResultSink
	broker         *Broker
	observer       Observer
	logger         *zap.Logger
	timeout        time.Duration
	pollRetries    int
	pollRetryDelay time.Duration
	now            func() time.Time

	mu   sync.Mutex
	runs map[string]*runHandle
}

// runHandle lets Cancel reach a job that is still queued; the cause is applied once the run
// attaches its context.
type runHandle struct {
	mu     sync.Mutex
	cancel context.CancelCauseFunc
	cause  error
}

func (h *runHandle) attach(cancel context.CancelCauseFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancel = cancel
	if h.cause != nil {
		cancel(h.cause)
	}
}

func (h *runHandle) stop(cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cause = cause
	if h.cancel != nil {
		h.cancel(cause)
	}
}

// NewManager validates the wiring and applies defaults.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("job manager requires a store")
	}
	if opts.Pool == nil {
		return nil, errors.New("job manager requires a worker pool")
	}
	if opts.Crawler == nil {
		return nil, errors.New("job manager requires a crawler")
	}
	if opts.Synthesizer == nil {
		return nil, errors.New("job manager requires a synthesizer")
	}
	if opts.Broker == nil {
		opts.Broker = NewBroker(0)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.PollRetries < 0 {
		opts.PollRetries = 0
	}
	if opts.PollRetryDelay <= 0 {
		opts.PollRetryDelay = 100 * time.Millisecond
	}
	return &Manager{
		store:          opts.Store,
		pool:           opts.Pool,
		crawler:        opts.Crawler,
		synth:          opts.Synthesizer,
		results:        opts.Results,
		broker:         opts.Broker,
		observer:       opts.Observer,
		logger:         logging.OrNop(opts.Logger).With(zap.String("component", "jobs")),
		timeout:        opts.Timeout,
		pollRetries:    opts.PollRetries,
		pollRetryDelay: opts.PollRetryDelay,
		now:            time.Now,
		runs:           make(map[string]*runHandle),
	}, nil
}

// Submit validates req, records the job as crawling and queues the run. The id is returned
// before any page is fetched.
func (m *Manager) Submit(ctx context.Context, req types.CrawlRequest, clientIP string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	req.URL = strings.TrimSpace(req.URL)
	if clientIP == "" {
		clientIP = "unknown"
	}
	id := NewID(m.now())
	if err := m.store.Create(ctx, NewJob(id, m.now())); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	if _, err := m.update(ctx, id, Update{
		Status:                 Ptr(StatusCrawling),
		TotalPages:             Ptr(0),
		ProcessedPages:         Ptr(0),
		CurrentPage:            Ptr(req.URL),
		Errors:                 []types.CrawlError{},
		EstimatedTimeRemaining: Ptr(0),
	}, EventStatus); err != nil {
		return "", err
	}

	handle := &runHandle{}
	m.mu.Lock()
	m.runs[id] = handle
	m.mu.Unlock()

	err := m.pool.TrySubmit(func(poolCtx context.Context) {
		m.run(poolCtx, id, req, clientIP, handle)
	})
	if err != nil {
		m.forget(id)
		m.fail(id, req.URL, nil, err.Error())
		return "", err
	}
	m.logger.Info("crawl job queued", zap.String("job_id", id), zap.String("url", req.URL), zap.String("client_ip", clientIP))
	return id, nil
}

// Get returns the job, retrying a few times on not-found so a poll racing the creating write
// still sees it.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	for attempt := 0; ; attempt++ {
		job, err := m.store.Get(ctx, id)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, ErrNotFound) || attempt >= m.pollRetries {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.pollRetryDelay):
		}
	}
}

// Cancel stops an active run at its next suspension point.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	handle, ok := m.runs[id]
	m.mu.Unlock()
	if ok {
		handle.stop(errCancelled)
		return nil
	}
	if _, err := m.store.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotRunning
}

// Subscribe streams changes to job id.
func (m *Manager) Subscribe(id string) (<-chan Event, func()) {
	return m.broker.Subscribe(id)
}

// Running reports how many jobs are queued or in flight on this instance.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *Manager) run(poolCtx context.Context, id string, req types.CrawlRequest, clientIP string, handle *runHandle) {
	started := m.now()
	logger := m.logger.With(zap.String("job_id", id), zap.String("url", req.URL))

	runCtx, cancel := context.WithCancelCause(poolCtx)
	defer cancel(nil)
	ctx, cancelTimeout := context.WithTimeoutCause(runCtx, m.timeout, errTimedOut)
	defer cancelTimeout()

	handle.attach(cancel)
	defer m.forget(id)

	writer := newProgressWriter(m, id, started)
	result, err := m.crawler.Crawl(ctx, req, writer)
	writer.close()

	var crawlErrors []types.CrawlError
	if result != nil {
		crawlErrors = result.Errors
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		msg := m.failureMessage(ctx, err)
		logger.Warn("crawl job failed", zap.String("reason", msg), zap.Error(err))
		m.fail(id, req.URL, crawlErrors, msg)
		m.observer.JobFinished(StatusError, m.now().Sub(started))
		return
	}

	logger.Info("crawl finished", zap.Int("pages", len(result.Pages)), zap.Int("errors", len(result.Errors)), zap.String("phase", string(result.Phase)))
	if _, err := m.update(context.Background(), id, Update{
		Status:      Ptr(StatusProcessing),
		CurrentPage: Ptr(processingMessage),
	}, EventStatus); err != nil {
		logger.Warn("job update rejected", zap.Error(err))
	}

	content := m.synth.Synthesize(ctx, req.URL, result.Pages)
	if ctx.Err() != nil {
		msg := m.failureMessage(ctx, ctx.Err())
		logger.Warn("crawl job failed during synthesis", zap.String("reason", msg))
		m.fail(id, req.URL, result.Errors, msg)
		m.observer.JobFinished(StatusError, m.now().Sub(started))
		return
	}
	m.persist(ctx, logger, types.CrawlResult{
		URL:         req.URL,
		LlmsTxt:     synth.Summary(content),
		LlmsFullTxt: synth.Full(content),
		IPAddress:   clientIP,
		CreatedAt:   m.now(),
	})

	if _, err := m.update(context.Background(), id, Update{
		Status:                 Ptr(StatusCompleted),
		ProcessedPages:         Ptr(len(result.Pages)),
		CurrentPage:            Ptr(completedMessage),
		Errors:                 nonNilErrors(result.Errors),
		EstimatedTimeRemaining: Ptr(0),
		GeneratedContent:       content,
	}, EventCompleted); err != nil {
		logger.Warn("job update rejected", zap.Error(err))
	}
	m.observer.JobFinished(StatusCompleted, m.now().Sub(started))
	logger.Info("crawl job completed", zap.Duration("elapsed", m.now().Sub(started)))
}

// persist writes the result record. Failures are logged and never fail the job.
func (m *Manager) persist(ctx context.Context, logger *zap.Logger, res types.CrawlResult) {
	if m.results == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.results.SaveResult(pctx, res); err != nil {
		logger.Error("saving crawl result failed", zap.Error(err))
	}
}

func (m *Manager) failureMessage(ctx context.Context, err error) string {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errTimedOut):
		return fmt.Sprintf("Crawl operation timed out after %s", humanDuration(m.timeout))
	case errors.Is(cause, errCancelled):
		return errCancelled.Error()
	case errors.Is(err, context.Canceled):
		return "crawl interrupted by shutdown"
	default:
		return err.Error()
	}
}

// fail moves the job to error, keeping per-page errors and appending the fatal one.
func (m *Manager) fail(id, url string, crawlErrors []types.CrawlError, msg string) {
	errs := append(append([]types.CrawlError{}, crawlErrors...), types.CrawlError{
		URL:       url,
		Error:     msg,
		Timestamp: m.now(),
	})
	if _, err := m.update(context.Background(), id, Update{
		Status:                 Ptr(StatusError),
		Errors:                 errs,
		EstimatedTimeRemaining: Ptr(0),
	}, EventError); err != nil {
		m.logger.Warn("job update rejected", zap.String("job_id", id), zap.Error(err))
	}
}

func (m *Manager) update(ctx context.Context, id string, upd Update, evt EventType) (*Job, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()
	job, err := m.store.Update(wctx, id, upd)
	if err != nil {
		return nil, err
	}
	m.broker.Publish(Event{Type: evt, Timestamp: job.Timestamp, Job: job})
	return job, nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.runs, id)
	m.mu.Unlock()
}

// EstimateRemaining extrapolates seconds left from the processing rate so far. The total is
// assumed to be at least twice what has been processed.
func EstimateRemaining(p types.Progress, elapsed time.Duration) int {
	secs := elapsed.Seconds()
	if secs <= 0 || p.ProcessedPages <= 0 {
		return 0
	}
	rate := float64(p.ProcessedPages) / secs
	total := max(p.TotalPages, p.ProcessedPages*2)
	remaining := float64(total - p.ProcessedPages)
	return int(math.Round(remaining / rate))
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
	return d.String()
}

func nonNilErrors(errs []types.CrawlError) []types.CrawlError {
	if errs == nil {
		return []types.CrawlError{}
	}
	return errs
}
