package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"llmstxt-crawler/pkg/types"
)

const rodStableDuration = 500 * time.Millisecond

var blockedResourceTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeImage,
	proto.NetworkResourceTypeFont,
	proto.NetworkResourceTypeMedia,
}

// RodBrowser renders pages through a Chromium instance launched by go-rod.
type RodBrowser struct {
	opts   Options
	gate   sessionGate
	logger *zap.Logger
}

// NewRodBrowser constructs a go-rod backed browser.
func NewRodBrowser(opts Options, logger *zap.Logger) *RodBrowser {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodBrowser{
		opts:   opts,
		gate:   newSessionGate(opts.ConcurrentSessions),
		logger: logger.With(zap.String("engine", "rod")),
	}
}

// Open launches Chromium for one crawl job.
func (b *RodBrowser) Open(ctx context.Context) (Session, error) {
	if err := b.gate.acquire(ctx); err != nil {
		return nil, err
	}

	l := launcher.New().
		Context(ctx).
		Headless(!b.opts.DisableHeadless).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")
	if strings.TrimSpace(b.opts.ProxyURL) != "" {
		l = l.Proxy(b.opts.ProxyURL)
	}
	controlURL, err := l.Launch()
	if err != nil {
		b.gate.release()
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		b.gate.release()
		return nil, fmt.Errorf("connect to headless browser: %w", err)
	}
	return &rodSession{owner: b, launcher: l, browser: browser}, nil
}

type rodSession struct {
	owner    *RodBrowser
	launcher *launcher.Launcher
	browser  *rod.Browser
	closed   bool
}

func (s *rodSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.browser.Close()
	s.launcher.Kill()
	s.owner.gate.release()
	return err
}

// Render opens a stealth tab, navigates and waits for the DOM to settle.
func (s *rodSession) Render(parent context.Context, target string, opts RenderOptions) (*types.RenderedPage, error) {
	if s.closed {
		return nil, &RenderError{Kind: KindNavigation, URL: target, Cause: errors.New("session closed")}
	}
	b := s.owner

	ctx := parent
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, opts.Timeout)
		defer cancel()
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, wrapError(ctx, target, fmt.Errorf("create tab: %w", err))
	}
	defer page.Close()
	page = page.Context(ctx)

	ua := selectUserAgent(b.opts.UserAgent)
	if opts.UserAgent != "" {
		ua = opts.UserAgent
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		return nil, wrapError(ctx, target, err)
	}
	if len(b.opts.Headers) > 0 {
		pairs := make([]string, 0, len(b.opts.Headers)*2)
		for k, v := range b.opts.Headers {
			pairs = append(pairs, k, v)
		}
		if _, err := page.SetExtraHeaders(pairs); err != nil {
			return nil, wrapError(ctx, target, err)
		}
	}

	if b.opts.BlockResources {
		router := page.HijackRequests()
		for _, rt := range blockedResourceTypes {
			_ = router.Add("*", rt, func(h *rod.Hijack) {
				h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			})
		}
		go router.Run()
		defer func() { _ = router.Stop() }()
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return nil, wrapError(ctx, target, err)
	}
	status := 0
	waitDocument := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status = e.Response.Status
		return true
	})

	start := time.Now()
	if err := page.Navigate(target); err != nil {
		return nil, wrapError(ctx, target, fmt.Errorf("navigate: %w", err))
	}
	waitDocument()
	if err := ctx.Err(); err != nil {
		return nil, wrapError(ctx, target, err)
	}
	if err := statusError(target, status); err != nil {
		return nil, err
	}

	if sel := strings.TrimSpace(b.opts.WaitForSelector); sel != "" {
		if _, err := page.Element(sel); err != nil {
			return nil, wrapError(ctx, target, err)
		}
	} else {
		_ = page.WaitStable(rodStableDuration)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, wrapError(ctx, target, fmt.Errorf("get html: %w", err))
	}
	info, err := page.Info()
	if err != nil {
		return nil, wrapError(ctx, target, err)
	}

	if int64(len(html)) > b.opts.MaxBodyBytes {
		html = html[:b.opts.MaxBodyBytes]
	}
	finalURL := info.URL
	if finalURL == "" {
		finalURL = target
	}
	latency := time.Since(start)
	b.logger.Debug("rod render complete",
		zap.String("url", target),
		zap.Int("status", status),
		zap.Duration("latency", latency),
		zap.Int("html_bytes", len(html)),
	)
	return &types.RenderedPage{
		URL:        target,
		FinalURL:   finalURL,
		HTML:       []byte(html),
		Title:      strings.TrimSpace(info.Title),
		StatusCode: status,
		FetchedAt:  time.Now(),
		Latency:    latency,
	}, nil
}
