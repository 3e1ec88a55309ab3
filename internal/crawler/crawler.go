package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"llmstxt-crawler/internal/classifier"
	"llmstxt-crawler/internal/config"
	"llmstxt-crawler/internal/extractor"
	"llmstxt-crawler/internal/fetcher"
	robotsclient "llmstxt-crawler/internal/robots"
	"llmstxt-crawler/pkg/types"
)

// Word-count thresholds used when the configuration leaves them unset.
const (
	defaultHomepageMinWords = 200
	defaultKeyPageMinWords  = 100
)

// Observer receives per-render and per-page notifications, e.g. for metrics.
type Observer interface {
	RenderFinished(phase Phase, latency time.Duration, err error)
	PageRecorded(phase Phase, category types.Category)
}

type nopObserver struct{}

func (nopObserver) RenderFinished(Phase, time.Duration, error) {}
func (nopObserver) PageRecorded(Phase, types.Category)         {}

// Options carries the collaborators of an Engine.
type Options struct {
	Browser    fetcher.Browser
	Extractor  *extractor.Extractor
	Classifier *classifier.Classifier
	Robots     *robotsclient.Agent
	Observer   Observer
	Logger     *zap.Logger
}

// Engine runs the two-phase crawl: homepage first, then either key-page probing or a
// depth-bounded fallback traversal.
type Engine struct {
	cfg        config.CrawlConfig
	browser    fetcher.Browser
	extractor  *extractor.Extractor
	classifier *classifier.Classifier
	robots     *robotsclient.Agent
	observer   Observer
	logger     *zap.Logger
	now        func() time.Time
}

// Result is the outcome of one crawl.
type Result struct {
	Pages   []types.ProcessedPage
	Errors  []types.CrawlError
	Phase   Phase
	Visited int
}

// NewEngine builds an engine from the crawl configuration.
func NewEngine(cfg config.CrawlConfig, opts Options) (*Engine, error) {
	if opts.Browser == nil {
		return nil, errors.New("crawler requires a browser")
	}
	if opts.Extractor == nil {
		opts.Extractor = extractor.New(config.ExtractConfig{})
	}
	if opts.Classifier == nil {
		opts.Classifier = classifier.New(nil)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if cfg.HomepageMinWords <= 0 {
		cfg.HomepageMinWords = defaultHomepageMinWords
	}
	if cfg.KeyPageMinWords <= 0 {
		cfg.KeyPageMinWords = defaultKeyPageMinWords
	}
	return &Engine{
		cfg:        cfg,
		browser:    opts.Browser,
		extractor:  opts.Extractor,
		classifier: opts.Classifier,
		robots:     opts.Robots,
		observer:   opts.Observer,
		logger:     opts.Logger,
		now:        time.Now,
	}, nil
}

func (e *Engine) keyPagePaths() []string {
	if len(e.cfg.KeyPagePaths) > 0 {
		return e.cfg.KeyPagePaths
	}
	return config.DefaultKeyPagePaths
}

// Crawl runs one crawl. The browser session it opens is closed on every return path. When ctx
// ends early the pages gathered so far are returned together with ctx.Err().
func (e *Engine) Crawl(ctx context.Context, req types.CrawlRequest, sink ProgressSink) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.WithDefaults(e.cfg.DefaultMaxDepth)
	root, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	filter, err := NewLinkFilter(root.Hostname(), req)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = nopSink{}
	}

	session, err := e.browser.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.Warn("close browser session", zap.Error(cerr))
		}
	}()

	run := &crawlRun{
		engine:  e,
		req:     req,
		root:    root,
		filter:  filter,
		session: session,
		limiter: NewDomainLimiter(e.cfg),
		visited: NewVisitedSet(),
		sink:    sink,
		logger:  e.logger.With(zap.String("site", root.Hostname())),
	}
	if req.RespectRobotsTxt && e.robots != nil {
		run.robots = e.robots.Policy(ctx, root)
		if delay := run.robots.CrawlDelay(); delay > 0 {
			run.limiter.AtLeast(delay)
			run.logger.Info("honouring robots.txt crawl delay", zap.Duration("delay", delay))
		}
	}

	run.runHomepage(ctx)
	result := &Result{}
	if home := run.homepage(); home != nil && home.WordCount > e.cfg.HomepageMinWords {
		result.Phase = PhaseKeyPages
		run.logger.Info("homepage is substantial, probing key pages", zap.Int("words", home.WordCount))
		run.runKeyPages(ctx)
	} else {
		result.Phase = PhaseFallback
		depth := e.cfg.FallbackMaxDepth
		if depth <= 0 {
			depth = 1
		}
		run.logger.Info("homepage is thin, running limited traversal", zap.Int("max_depth", depth))
		run.runTraversal(ctx, filter.WithMaxDepth(depth))
	}

	result.Pages = run.pages
	result.Errors = run.errors
	result.Visited = run.visited.Len()
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// crawlRun is the mutable state of one crawl; it is confined to the crawl's goroutine.
type crawlRun struct {
	engine  *Engine
	req     types.CrawlRequest
	root    *url.URL
	filter  *LinkFilter
	session fetcher.Session
	limiter *DomainLimiter
	robots  *robotsclient.Policy
	visited *VisitedSet
	sink    ProgressSink
	logger  *zap.Logger

	pages  []types.ProcessedPage
	errors []types.CrawlError
}

func (r *crawlRun) runHomepage(ctx context.Context) {
	target := r.req.URL
	r.report(PhaseHomepage, target, 1)
	if !r.allowedByRobots(target) {
		r.fail(target, errors.New("disallowed by robots.txt"))
		return
	}

	page, err := r.render(ctx, target, r.engine.cfg.HomepageTimeout.Duration, PhaseHomepage)
	if err != nil {
		r.fail(target, err)
		return
	}
	processed, err := r.process(target, page)
	if err != nil {
		r.extractionFailed(target, err)
		return
	}
	r.record(processed, PhaseHomepage)
	r.visited.Add(target)
	r.report(PhaseHomepage, target, 1)
}

func (r *crawlRun) homepage() *types.ProcessedPage {
	key := visitedKey(r.req.URL)
	for i := range r.pages {
		if visitedKey(r.pages[i].URL) == key {
			return &r.pages[i]
		}
	}
	return nil
}

type frontierItem struct {
	url   string
	depth int
}

// runTraversal is a depth-first walk over an explicit stack. Children are pushed in reverse
// so they are visited in document order.
func (r *crawlRun) runTraversal(ctx context.Context, filter *LinkFilter) {
	stack := []frontierItem{{url: r.req.URL, depth: 0}}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !filter.Eligible(item.url, r.visited, item.depth) {
			continue
		}
		r.visited.Add(item.url)

		if !r.allowedByRobots(item.url) {
			r.fail(item.url, errors.New("disallowed by robots.txt"))
			continue
		}
		page, err := r.render(ctx, item.url, r.engine.cfg.PageTimeout.Duration, PhaseFallback)
		if err != nil {
			r.fail(item.url, err)
			continue
		}
		if processed, err := r.process(item.url, page); err != nil {
			r.extractionFailed(item.url, err)
		} else {
			r.record(processed, PhaseFallback)
			r.report(PhaseFallback, item.url, r.visited.Len())
		}

		links := filter.extractLinks(page, r.engine.cfg.MaxLinksPerPage)
		for i := len(links) - 1; i >= 0; i-- {
			stack = append(stack, frontierItem{url: links[i], depth: item.depth + 1})
		}
	}
}

func (r *crawlRun) render(ctx context.Context, target string, timeout time.Duration, phase Phase) (*types.RenderedPage, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &fetcher.RenderError{Kind: fetcher.KindNavigation, URL: target, Cause: err}
	}
	if err := r.limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, &fetcher.RenderError{Kind: fetcher.KindCancelled, URL: target, Cause: err}
	}
	start := time.Now()
	page, err := r.session.Render(ctx, target, fetcher.RenderOptions{
		Timeout:   timeout,
		UserAgent: r.engine.cfg.UserAgent,
	})
	r.engine.observer.RenderFinished(phase, time.Since(start), err)
	return page, err
}

func (r *crawlRun) process(target string, page *types.RenderedPage) (types.ProcessedPage, error) {
	doc, err := r.engine.extractor.Extract(target, page.Title, page.HTML)
	if err != nil {
		return types.ProcessedPage{}, err
	}
	category, importance := r.engine.classifier.Assess(target, doc.Title, doc.Content, doc.WordCount)
	return types.ProcessedPage{
		URL:          target,
		Title:        doc.Title,
		Content:      doc.Content,
		Category:     category,
		Importance:   importance,
		WordCount:    doc.WordCount,
		LastModified: doc.LastModified,
	}, nil
}

func (r *crawlRun) record(page types.ProcessedPage, phase Phase) {
	r.pages = append(r.pages, page)
	r.engine.observer.PageRecorded(phase, page.Category)
	r.logger.Debug("page recorded",
		zap.String("url", page.URL),
		zap.String("category", string(page.Category)),
		zap.Float64("importance", page.Importance),
		zap.Int("words", page.WordCount),
	)
}

func (r *crawlRun) fail(target string, err error) {
	r.logger.Warn("page failed", zap.String("url", target), zap.Error(err))
	r.errors = append(r.errors, types.CrawlError{
		URL:       target,
		Error:     err.Error(),
		Timestamp: r.engine.now(),
	})
}

// extractionFailed records parse failures; thin pages are dropped without an error entry.
func (r *crawlRun) extractionFailed(target string, err error) {
	if errors.Is(err, extractor.ErrInsufficientContent) {
		r.logger.Debug("page below content threshold", zap.String("url", target), zap.Error(err))
		return
	}
	r.fail(target, err)
}

func (r *crawlRun) allowedByRobots(target string) bool {
	if r.robots == nil {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return r.robots.Allowed(u)
}

func (r *crawlRun) report(phase Phase, current string, total int) {
	errs := make([]types.CrawlError, len(r.errors))
	copy(errs, r.errors)
	r.sink.Report(ProgressEvent{
		Progress: types.Progress{
			ProcessedPages: len(r.pages),
			CurrentPage:    current,
			TotalPages:     total,
		},
		Phase:  phase,
		Errors: errs,
	})
}
