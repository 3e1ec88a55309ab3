package api

import (
	"llmstxt-crawler/internal/storage"
	"llmstxt-crawler/pkg/types"
)

// CrawlResponse is returned when a crawl job is accepted.
type CrawlResponse struct {
	JobID string `json:"jobId"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CrawlResultsResponse backs the admin listing.
type CrawlResultsResponse struct {
	Results []types.CrawlResult `json:"results"`
	Stats   storage.Stats       `json:"stats"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}
