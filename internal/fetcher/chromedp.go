package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"llmstxt-crawler/pkg/types"
)

var blockedURLPatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*.mp4", "*.webm", "*.mp3",
}

// ChromedpBrowser runs one headless Chrome process per session via chromedp.
type ChromedpBrowser struct {
	opts   Options
	gate   sessionGate
	logger *zap.Logger
}

// NewChromedpBrowser constructs a browser whose concurrent sessions are bounded by opts.ConcurrentSessions.
func NewChromedpBrowser(opts Options, logger *zap.Logger) *ChromedpBrowser {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromedpBrowser{
		opts:   opts,
		gate:   newSessionGate(opts.ConcurrentSessions),
		logger: logger.With(zap.String("engine", "chromedp")),
	}
}

// Open launches Chrome for one crawl job.
func (b *ChromedpBrowser) Open(ctx context.Context) (Session, error) {
	if err := b.gate.acquire(ctx); err != nil {
		return nil, err
	}

	execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	execOpts = append(execOpts,
		chromedp.Flag("headless", !b.opts.DisableHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(1280, 720),
		chromedp.UserAgent(selectUserAgent(b.opts.UserAgent)),
	)
	if strings.TrimSpace(b.opts.ProxyURL) != "" {
		execOpts = append(execOpts, chromedp.ProxyServer(b.opts.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		b.gate.release()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &chromedpSession{
		browser:       b,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type chromedpSession struct {
	browser       *ChromedpBrowser
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closed        bool
}

func (s *chromedpSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.browserCancel()
	s.allocCancel()
	s.browser.gate.release()
	return nil
}

// Render opens a tab, navigates, waits for the configured condition and exports the DOM.
func (s *chromedpSession) Render(parent context.Context, target string, opts RenderOptions) (*types.RenderedPage, error) {
	if s.closed {
		return nil, &RenderError{Kind: KindNavigation, URL: target, Cause: errors.New("session closed")}
	}
	b := s.browser
	logger := b.logger.With(zap.String("url", target), zap.Duration("timeout", opts.Timeout))

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()

	// the tab must also stop when the job context ends
	stop := context.AfterFunc(parent, tabCancel)
	defer stop()

	ctx := tabCtx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(tabCtx, opts.Timeout)
		defer cancel()
	}

	setup := []chromedp.Action{network.Enable()}
	if len(b.opts.Headers) > 0 {
		headers := make(network.Headers, len(b.opts.Headers))
		for k, v := range b.opts.Headers {
			headers[k] = v
		}
		setup = append(setup, network.SetExtraHTTPHeaders(headers))
	}
	if b.opts.BlockResources {
		setup = append(setup, network.SetBlockedURLs(blockedURLPatterns))
	}
	if opts.UserAgent != "" {
		setup = append(setup, network.SetUserAgentOverride(opts.UserAgent))
	}
	if err := chromedp.Run(ctx, setup...); err != nil {
		return nil, wrapError(ctx, target, err)
	}

	start := time.Now()
	resp, err := chromedp.RunResponse(ctx, chromedp.Navigate(target))
	if err != nil {
		logger.Debug("chromedp navigate failed", zap.Error(err))
		return nil, wrapError(ctx, target, err)
	}
	status := 0
	if resp != nil {
		status = int(resp.Status)
	}
	if err := statusError(target, status); err != nil {
		return nil, err
	}

	var (
		html     string
		title    string
		finalURL string
	)
	actions := []chromedp.Action{}
	waitMode := "delay"
	switch {
	case strings.TrimSpace(b.opts.WaitForSelector) != "":
		waitMode = "selector"
		actions = append(actions,
			chromedp.WaitReady(b.opts.WaitForSelector, chromedp.ByQuery),
			chromedp.Sleep(250*time.Millisecond),
		)
	case b.opts.WaitForDOMReady:
		waitMode = "dom_ready"
		actions = append(actions,
			waitForDocumentReady(logger),
			chromedp.Sleep(250*time.Millisecond),
		)
	default:
		delay := b.opts.CaptureDelay
		if delay <= 0 {
			delay = 1500 * time.Millisecond
		}
		actions = append(actions, chromedp.Sleep(delay))
	}
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.Location(&finalURL),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		logger.Debug("chromedp capture failed", zap.String("wait_mode", waitMode), zap.Error(err))
		return nil, wrapError(ctx, target, err)
	}

	if int64(len(html)) > b.opts.MaxBodyBytes {
		html = html[:b.opts.MaxBodyBytes]
	}
	if finalURL == "" {
		finalURL = target
	}

	latency := time.Since(start)
	logger.Debug("chromedp render complete",
		zap.String("wait_mode", waitMode),
		zap.Int("status", status),
		zap.Duration("latency", latency),
		zap.String("final_url", finalURL),
		zap.Int("html_bytes", len(html)),
	)
	return &types.RenderedPage{
		URL:        target,
		FinalURL:   finalURL,
		HTML:       []byte(html),
		Title:      strings.TrimSpace(title),
		StatusCode: status,
		FetchedAt:  time.Now(),
		Latency:    latency,
	}, nil
}

func waitForDocumentReady(logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				logger.Warn("document.readyState evaluate failed", zap.Error(err))
				return err
			}
			if readyState == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}
