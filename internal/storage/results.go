package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"llmstxt-crawler/pkg/types"
)

// DefaultResultLimit bounds the admin listing.
const DefaultResultLimit = 100

// Stats summarises a listing of crawl results.
type Stats struct {
	TotalCrawls int `json:"totalCrawls"`
	TodayCrawls int `json:"todayCrawls"`
	UniqueIPs   int `json:"uniqueIPs"`
	UniqueURLs  int `json:"uniqueUrls"`
}

// SaveResult appends one completed crawl.
func (s *Store) SaveResult(ctx context.Context, res types.CrawlResult) error {
	if res.URL == "" {
		return errors.New("save result: missing url")
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = s.now()
	}
	query := s.db.Rebind(`INSERT INTO crawl_results (url, llms_txt, llms_full_txt, ip_address, created_at) VALUES (?, ?, ?, ?, ?)`)
	err := s.withSchemaRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, res.URL, res.LlmsTxt, res.LlmsFullTxt, res.IPAddress, res.CreatedAt.UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("insert crawl result: %w", err)
	}
	return nil
}

// ListResults returns the most recent results, newest first.
func (s *Store) ListResults(ctx context.Context, limit int) ([]types.CrawlResult, error) {
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	query := s.db.Rebind(`SELECT id, url, llms_txt, llms_full_txt, COALESCE(ip_address, '') AS ip_address, created_at
		FROM crawl_results ORDER BY created_at DESC LIMIT ?`)
	results := []types.CrawlResult{}
	err := s.withSchemaRetry(ctx, func() error {
		return s.db.SelectContext(ctx, &results, query, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("list crawl results: %w", err)
	}
	return results, nil
}

// ComputeStats counts the listing: today is measured from local midnight of now.
func ComputeStats(results []types.CrawlResult, now time.Time) Stats {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	ips := make(map[string]struct{})
	urls := make(map[string]struct{})
	stats := Stats{TotalCrawls: len(results)}
	for _, r := range results {
		if !r.CreatedAt.Before(midnight) {
			stats.TodayCrawls++
		}
		ips[r.IPAddress] = struct{}{}
		urls[r.URL] = struct{}{}
	}
	stats.UniqueIPs = len(ips)
	stats.UniqueURLs = len(urls)
	return stats
}

// Domains returns the distinct hostnames of every crawled URL, in first-seen order.
func (s *Store) Domains(ctx context.Context) ([]string, error) {
	var raw []string
	err := s.withSchemaRetry(ctx, func() error {
		return s.db.SelectContext(ctx, &raw, `SELECT DISTINCT url FROM crawl_results ORDER BY url`)
	})
	if err != nil {
		return nil, fmt.Errorf("list crawled urls: %w", err)
	}
	return hostnames(raw), nil
}

func hostnames(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := u.Hostname()
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}
