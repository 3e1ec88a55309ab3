package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"llmstxt-crawler/pkg/types"
)

var binaryExtension = regexp.MustCompile(`(?i)\.(pdf|doc|docx|xls|xlsx|ppt|pptx|zip|rar|exe)$`)

// LinkFilter decides whether a discovered URL may be traversed. It is a pure predicate
// over the request's patterns and the caller's visited set.
type LinkFilter struct {
	baseDomain string
	maxDepth   int
	include    []*regexp.Regexp
	exclude    []*regexp.Regexp
}

// NewLinkFilter compiles the request's glob patterns.
func NewLinkFilter(baseDomain string, req types.CrawlRequest) (*LinkFilter, error) {
	include, err := compileGlobs(req.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exclude, err := compileGlobs(req.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	return &LinkFilter{
		baseDomain: strings.ToLower(baseDomain),
		maxDepth:   req.MaxDepth,
		include:    include,
		exclude:    exclude,
	}, nil
}

// WithMaxDepth returns a copy of the filter using a different depth ceiling.
func (f *LinkFilter) WithMaxDepth(maxDepth int) *LinkFilter {
	cp := *f
	cp.maxDepth = maxDepth
	return &cp
}

// Eligible reports whether rawURL at currentDepth should be visited.
func (f *LinkFilter) Eligible(rawURL string, visited *VisitedSet, currentDepth int) bool {
	if currentDepth >= f.maxDepth {
		return false
	}
	if visited.Has(rawURL) {
		return false
	}
	if !f.matchesPatterns(rawURL) {
		return false
	}
	return f.traversable(rawURL)
}

func (f *LinkFilter) matchesPatterns(rawURL string) bool {
	if len(f.include) > 0 {
		matched := false
		for _, pat := range f.include {
			if pat.MatchString(rawURL) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pat := range f.exclude {
		if pat.MatchString(rawURL) {
			return false
		}
	}
	return true
}

// traversable applies the structural checks: same host, no fragments, no mail/tel, no binaries.
func (f *LinkFilter) traversable(rawURL string) bool {
	if strings.Contains(rawURL, "#") || strings.Contains(rawURL, "mailto:") || strings.Contains(rawURL, "tel:") {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return false
	}
	if !strings.EqualFold(u.Hostname(), f.baseDomain) {
		return false
	}
	return !binaryExtension.MatchString(rawURL)
}

// compileGlobs turns "*" globs into unanchored, case-insensitive expressions.
func compileGlobs(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, raw := range patterns {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		pat, err := regexp.Compile("(?i)" + strings.ReplaceAll(raw, "*", ".*"))
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, pat)
	}
	return compiled, nil
}
