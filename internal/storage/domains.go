package storage

import (
	"context"
	"fmt"
	"time"
)

// DomainStatus is the last liveness result for one crawled domain. LastChecked is nil for a
// domain that has never been probed.
type DomainStatus struct {
	ID          int64      `json:"id" db:"id"`
	Domain      string     `json:"domain" db:"domain"`
	HasLlmsTxt  bool       `json:"hasLlmsTxt" db:"has_llms_txt"`
	LastChecked *time.Time `json:"lastChecked" db:"last_checked"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
}

// DomainReport backs the domain status endpoint.
type DomainReport struct {
	Domains     []DomainStatus `json:"domains"`
	NeedsUpdate bool           `json:"needsUpdate"`
	LastCheck   *time.Time     `json:"lastCheck"`
}

// UpsertDomainStatus records a probe result.
func (s *Store) UpsertDomainStatus(ctx context.Context, domain string, hasLlmsTxt bool, checkedAt time.Time) error {
	query := s.db.Rebind(`INSERT INTO domain_status (domain, has_llms_txt, last_checked, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (domain) DO UPDATE SET
			has_llms_txt = EXCLUDED.has_llms_txt,
			last_checked = EXCLUDED.last_checked`)
	checkedAt = checkedAt.UTC()
	err := s.withSchemaRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, domain, hasLlmsTxt, checkedAt, checkedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert domain status %s: %w", domain, err)
	}
	return nil
}

// DomainStatuses returns every stored status row keyed by domain.
func (s *Store) DomainStatuses(ctx context.Context) (map[string]DomainStatus, error) {
	var rows []DomainStatus
	err := s.withSchemaRetry(ctx, func() error {
		return s.db.SelectContext(ctx, &rows, `SELECT id, domain, has_llms_txt, last_checked, created_at
			FROM domain_status ORDER BY last_checked DESC`)
	})
	if err != nil {
		return nil, fmt.Errorf("list domain status: %w", err)
	}
	out := make(map[string]DomainStatus, len(rows))
	for _, r := range rows {
		out[r.Domain] = r
	}
	return out, nil
}

// DomainReport joins the crawled domains with their stored status. A domain is stale when it
// was never checked or its last check is older than staleAfter.
func (s *Store) DomainReport(ctx context.Context, staleAfter time.Duration) (DomainReport, error) {
	domains, err := s.Domains(ctx)
	if err != nil {
		return DomainReport{}, err
	}
	statuses, err := s.DomainStatuses(ctx)
	if err != nil {
		return DomainReport{}, err
	}
	return buildReport(domains, statuses, s.now(), staleAfter), nil
}

func buildReport(domains []string, statuses map[string]DomainStatus, now time.Time, staleAfter time.Duration) DomainReport {
	report := DomainReport{Domains: make([]DomainStatus, 0, len(domains))}
	cutoff := now.Add(-staleAfter)
	for _, d := range domains {
		st, ok := statuses[d]
		if !ok {
			st = DomainStatus{Domain: d, CreatedAt: now}
		}
		if st.LastChecked == nil || st.LastChecked.Before(cutoff) {
			report.NeedsUpdate = true
		}
		if st.LastChecked != nil && (report.LastCheck == nil || st.LastChecked.After(*report.LastCheck)) {
			last := *st.LastChecked
			report.LastCheck = &last
		}
		report.Domains = append(report.Domains, st)
	}
	return report
}
