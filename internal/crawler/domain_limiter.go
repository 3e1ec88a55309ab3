package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"llmstxt-crawler/internal/config"
)

// DomainLimiter spaces renders to the same host: a fixed gap between consecutive
// requests plus an optional token bucket.
type DomainLimiter struct {
	gap    time.Duration
	bucket config.RateLimitConfig

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter builds a limiter from the crawl section.
func NewDomainLimiter(cfg config.CrawlConfig) *DomainLimiter {
	d := &DomainLimiter{
		gap:  cfg.RequestDelay.Duration,
		last: make(map[string]time.Time),
	}
	if cfg.RateLimitPerDomain.Enabled() {
		d.bucket = cfg.RateLimitPerDomain
		d.limiters = make(map[string]*rate.Limiter)
	}
	return d
}

// AtLeast widens the gap between requests to gap when it is longer than the configured one.
func (d *DomainLimiter) AtLeast(gap time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gap > d.gap {
		d.gap = gap
	}
}

// Wait blocks until host may be contacted again, then stamps the request time.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	d.mu.Lock()
	var sleep time.Duration
	if last, ok := d.last[host]; ok && d.gap > 0 {
		sleep = time.Until(last.Add(d.gap))
	}
	limiter := d.limiterLocked(host)
	d.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.last[host] = time.Now()
	d.mu.Unlock()
	return nil
}

func (d *DomainLimiter) limiterLocked(host string) *rate.Limiter {
	if d.limiters == nil {
		return nil
	}
	if l, ok := d.limiters[host]; ok {
		return l
	}
	interval := d.bucket.Window.Duration / time.Duration(d.bucket.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	l := rate.NewLimiter(rate.Every(interval), d.bucket.Requests)
	d.limiters[host] = l
	return l
}
