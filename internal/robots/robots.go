// Package robots resolves the robots.txt policy a crawl must follow for its site.
package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/config"
	"llmstxt-crawler/internal/logging"
)

const (
	defaultCacheTTL = 30 * time.Minute
	// MaxCrawlDelay bounds the Crawl-delay a site can impose on a single crawl.
	MaxCrawlDelay = 10 * time.Second
)

// Agent fetches robots.txt once per site and shares the parsed rules between crawls until
// they age past the cache TTL.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
	overrides map[string]struct{}

	mu    sync.Mutex
	sites map[string]siteRules
}

type siteRules struct {
	fetched time.Time
	group   *robotstxt.Group
}

// NewAgent constructs an agent from configuration.
func NewAgent(cfg config.RobotsConfig, client *http.Client, logger *zap.Logger) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	overrides := make(map[string]struct{}, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
			overrides[host] = struct{}{}
		}
	}
	return &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		logger:    logging.OrNop(logger).With(zap.String("component", "robots")),
		now:       time.Now,
		overrides: overrides,
		sites:     make(map[string]siteRules),
	}
}

// Policy is the robots.txt group that applies to one site. The zero value and a nil Policy
// allow everything.
type Policy struct {
	host  string
	group *robotstxt.Group
}

// Allowed reports whether target may be rendered. URLs on other hosts are not judged here;
// the link filter already keeps a crawl on its own site.
func (p *Policy) Allowed(target *url.URL) bool {
	if p == nil || p.group == nil || target == nil {
		return true
	}
	if !strings.EqualFold(target.Host, p.host) {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return p.group.Test(path)
}

// CrawlDelay is the site's Crawl-delay, capped at MaxCrawlDelay.
func (p *Policy) CrawlDelay() time.Duration {
	if p == nil || p.group == nil {
		return 0
	}
	return min(p.group.CrawlDelay, MaxCrawlDelay)
}

// Policy resolves the rules for root's site. It never fails: an unreachable, missing or
// unparsable robots.txt yields a policy that allows everything.
func (a *Agent) Policy(ctx context.Context, root *url.URL) *Policy {
	if a == nil || root == nil || !root.IsAbs() {
		return &Policy{}
	}
	host := strings.ToLower(root.Host)
	if _, ok := a.overrides[strings.ToLower(root.Hostname())]; ok {
		return &Policy{host: host}
	}

	now := a.now()
	a.mu.Lock()
	cached, ok := a.sites[host]
	a.mu.Unlock()
	if ok && now.Sub(cached.fetched) < a.ttl {
		return &Policy{host: host, group: cached.group}
	}

	group, err := a.fetch(ctx, root.Scheme, host)
	if err != nil {
		a.logger.Debug("robots.txt unavailable, allowing", zap.String("host", host), zap.Error(err))
		return &Policy{host: host}
	}
	a.store(host, siteRules{fetched: now, group: group})
	return &Policy{host: host, group: group}
}

func (a *Agent) fetch(ctx context.Context, scheme, host string) (*robotstxt.Group, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+host+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data.FindGroup(a.userAgent), nil
}

// store records rules for host and drops every entry that has outlived the TTL.
func (a *Agent) store(host string, rules siteRules) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for h, r := range a.sites {
		if rules.fetched.Sub(r.fetched) >= a.ttl {
			delete(a.sites, h)
		}
	}
	a.sites[host] = rules
}
