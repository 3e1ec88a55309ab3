package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/config"
	"llmstxt-crawler/pkg/types"
)

// RenderOptions are the per-request settings passed to Session.Render.
type RenderOptions struct {
	Timeout   time.Duration
	UserAgent string
}

// Session is one browser session owned by a single crawl. Close must be called on every exit path.
type Session interface {
	Render(ctx context.Context, target string, opts RenderOptions) (*types.RenderedPage, error)
	Close() error
}

// Browser opens sessions for crawl jobs.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Options configures every Browser implementation.
type Options struct {
	Engine             string
	UserAgent          string
	Headers            map[string]string
	ProxyURL           string
	MaxBodyBytes       int64
	WaitForSelector    string
	WaitForDOMReady    bool
	CaptureDelay       time.Duration
	DisableHeadless    bool
	ConcurrentSessions int
	BlockResources     bool
}

// OptionsFromConfig flattens the crawl and rendering sections.
func OptionsFromConfig(rendering config.RenderingConfig, crawl config.CrawlConfig) Options {
	return Options{
		Engine:             rendering.Engine,
		UserAgent:          crawl.UserAgent,
		Headers:            crawl.Headers,
		ProxyURL:           crawl.ProxyURL,
		MaxBodyBytes:       crawl.MaxBodyBytes,
		WaitForSelector:    rendering.WaitForSelector,
		WaitForDOMReady:    rendering.WaitForDOMReady,
		CaptureDelay:       rendering.CaptureDelay.Duration,
		DisableHeadless:    rendering.DisableHeadless,
		ConcurrentSessions: rendering.ConcurrentSessions,
		BlockResources:     rendering.BlockResources,
	}
}

// New builds the Browser selected by opts.Engine.
func New(opts Options, logger *zap.Logger) (Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(opts.Engine) {
	case "chromedp", "chrome", "":
		return NewChromedpBrowser(opts, logger), nil
	case "rod":
		return NewRodBrowser(opts, logger), nil
	case "http":
		return NewHTTPBrowser(opts, logger)
	default:
		return nil, fmt.Errorf("unsupported rendering engine %q", opts.Engine)
	}
}

func selectUserAgent(base string) string {
	if strings.TrimSpace(base) != "" {
		return base
	}
	return "Mozilla/5.0 (compatible; LLMsTxtGenerator/1.0)"
}

// documentTitle returns the text of the first <title> element.
func documentTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

// sessionGate bounds the number of concurrently open browser sessions.
type sessionGate chan struct{}

func newSessionGate(n int) sessionGate {
	if n <= 0 {
		n = 1
	}
	return make(sessionGate, n)
}

func (g sessionGate) acquire(ctx context.Context) error {
	select {
	case g <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g sessionGate) release() {
	select {
	case <-g:
	default:
	}
}
