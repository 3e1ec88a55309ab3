package types

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Category labels a processed page.
type Category string

const (
	CategoryMainNavigation   Category = "Main Navigation"
	CategoryGettingStarted   Category = "Getting Started"
	CategoryAPIDocumentation Category = "API Documentation"
	CategoryTutorial         Category = "Tutorial"
	CategoryDocumentation    Category = "Documentation"
	CategoryReference        Category = "Reference"
	CategoryBlog             Category = "Blog"
	CategoryLegal            Category = "Legal"
)

// CrawlRequest is the client-supplied description of a crawl. It is not mutated once a crawl starts.
type CrawlRequest struct {
	URL              string   `json:"url"`
	MaxDepth         int      `json:"maxDepth"`
	IncludePatterns  []string `json:"includePatterns"`
	ExcludePatterns  []string `json:"excludePatterns"`
	RespectRobotsTxt bool     `json:"respectRobotsTxt"`
}

// ErrInvalidURL is returned when the request URL is empty or not http(s).
var ErrInvalidURL = errors.New("invalid URL provided")

// Validate performs the submission-time checks on the request.
func (r CrawlRequest) Validate() error {
	raw := strings.TrimSpace(r.URL)
	if raw == "" || !strings.HasPrefix(raw, "http") {
		return ErrInvalidURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if r.MaxDepth < 0 {
		return fmt.Errorf("maxDepth must be >= 0 (got %d)", r.MaxDepth)
	}
	return nil
}

// WithDefaults fills optional fields; maxDepth falls back to def when unset.
func (r CrawlRequest) WithDefaults(def int) CrawlRequest {
	out := r
	out.URL = strings.TrimSpace(r.URL)
	if out.MaxDepth <= 0 {
		out.MaxDepth = def
	}
	out.IncludePatterns = append([]string(nil), r.IncludePatterns...)
	out.ExcludePatterns = append([]string(nil), r.ExcludePatterns...)
	return out
}

// ProcessedPage is one successfully extracted and classified URL.
type ProcessedPage struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Category     Category  `json:"category"`
	Importance   float64   `json:"importance"`
	WordCount    int       `json:"wordCount"`
	LastModified time.Time `json:"lastModified"`
}

// CrawlError records a per-URL failure.
type CrawlError struct {
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// RenderedPage is the output of the render capability.
type RenderedPage struct {
	URL        string
	FinalURL   string
	HTML       []byte
	Title      string
	StatusCode int
	FetchedAt  time.Time
	Latency    time.Duration
}

// BaseURL returns the URL relative links in the page resolve against.
func (p *RenderedPage) BaseURL() (*url.URL, error) {
	if p == nil {
		return nil, errors.New("rendered page is nil")
	}
	raw := p.FinalURL
	if raw == "" {
		raw = p.URL
	}
	return url.Parse(raw)
}

// Progress is the counter snapshot pushed by the orchestrator after each recorded page.
type Progress struct {
	ProcessedPages int    `json:"processedPages"`
	CurrentPage    string `json:"currentPage"`
	TotalPages     int    `json:"totalPages"`
}

// CrawlResult is the durable record written after a successful job.
type CrawlResult struct {
	ID          int64     `json:"id" db:"id"`
	URL         string    `json:"url" db:"url"`
	LlmsTxt     string    `json:"llmsTxt" db:"llms_txt"`
	LlmsFullTxt string    `json:"llmsFullTxt" db:"llms_full_txt"`
	IPAddress   string    `json:"ipAddress" db:"ip_address"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
