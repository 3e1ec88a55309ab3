package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"llmstxt-crawler/pkg/types"
)

// HTTPBrowser renders pages with a plain HTTP client. It does not execute JavaScript.
type HTTPBrowser struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewHTTPBrowser constructs an HTTP-only browser.
func NewHTTPBrowser(opts Options, logger *zap.Logger) (*HTTPBrowser, error) {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPBrowser{
		client:       &http.Client{Transport: transport},
		userAgent:    selectUserAgent(opts.UserAgent),
		extraHeaders: headers,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       logger.With(zap.String("engine", "http")),
	}, nil
}

// NewHTTPBrowserWithClient is used when the caller owns the client, e.g. in tests.
func NewHTTPBrowserWithClient(client *http.Client, userAgent string, maxBodyBytes int64) *HTTPBrowser {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 5 * 1024 * 1024
	}
	return &HTTPBrowser{
		client:       client,
		userAgent:    selectUserAgent(userAgent),
		extraHeaders: map[string]string{},
		maxBodyBytes: maxBodyBytes,
		logger:       zap.NewNop(),
	}
}

// Client exposes the underlying HTTP client for reuse (robots.txt fetches).
func (b *HTTPBrowser) Client() *http.Client {
	if b == nil {
		return nil
	}
	return b.client
}

// Open returns a session sharing the browser's client; there is nothing to tear down.
func (b *HTTPBrowser) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return httpSession{b}, nil
}

type httpSession struct {
	b *HTTPBrowser
}

func (s httpSession) Close() error { return nil }

func (s httpSession) Render(ctx context.Context, target string, opts RenderOptions) (*types.RenderedPage, error) {
	return s.b.render(ctx, target, opts)
}

func (b *HTTPBrowser) render(parent context.Context, target string, opts RenderOptions) (*types.RenderedPage, error) {
	ctx := parent
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &RenderError{Kind: KindNavigation, URL: target, Cause: fmt.Errorf("build request: %w", err)}
	}
	ua := b.userAgent
	if opts.UserAgent != "" {
		ua = opts.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range b.extraHeaders {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, wrapError(ctx, target, err)
	}
	body, err := b.readBody(resp)
	if err != nil {
		return nil, wrapError(ctx, target, err)
	}
	if err := statusError(target, resp.StatusCode); err != nil {
		return nil, err
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	latency := time.Since(start)
	b.logger.Debug("http render complete",
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", latency),
		zap.Int("html_bytes", len(body)),
	)
	return &types.RenderedPage{
		URL:        target,
		FinalURL:   finalURL,
		HTML:       body,
		Title:      documentTitle(body),
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now(),
		Latency:    latency,
	}, nil
}

func (b *HTTPBrowser) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, b.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > b.maxBodyBytes {
		body = body[:b.maxBodyBytes]
	}
	return body, nil
}
