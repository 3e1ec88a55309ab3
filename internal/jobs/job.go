package jobs

import (
	"errors"
	"fmt"
	"time"

	"llmstxt-crawler/pkg/types"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCrawling   Status = "crawling"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var (
	// ErrNotFound is returned when a job id is unknown or has expired.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when an update would move a job backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("job already exists")
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusCrawling:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusError:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s.rank() >= 0 }

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusError }

// CanTransition reports whether a job in from may move to to. Non-terminal states may be
// re-entered so progress updates can repeat the current status.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	if to == StatusError {
		return true
	}
	return to.rank() > from.rank()
}

// Job is the progress record polled by clients.
type Job struct {
	JobID                  string                `json:"jobId"`
	Status                 Status                `json:"status"`
	TotalPages             int                   `json:"totalPages"`
	ProcessedPages         int                   `json:"processedPages"`
	CurrentPage            string                `json:"currentPage"`
	Errors                 []types.CrawlError    `json:"errors"`
	EstimatedTimeRemaining int                   `json:"estimatedTimeRemaining"`
	GeneratedContent       *types.LlmsTxtContent `json:"generatedContent,omitempty"`
	Timestamp              time.Time             `json:"timestamp"`
}

// NewJob returns a pending job stamped with now.
func NewJob(id string, now time.Time) *Job {
	return &Job{
		JobID:     id,
		Status:    StatusPending,
		Errors:    []types.CrawlError{},
		Timestamp: now,
	}
}

// Clone returns a copy that shares no slices with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Errors = append([]types.CrawlError(nil), j.Errors...)
	if cp.Errors == nil {
		cp.Errors = []types.CrawlError{}
	}
	return &cp
}

// Update is a partial change to a Job. Nil fields are left untouched; a non-nil Errors slice
// replaces the list.
type Update struct {
	Status                 *Status
	TotalPages             *int
	ProcessedPages         *int
	CurrentPage            *string
	Errors                 []types.CrawlError
	EstimatedTimeRemaining *int
	GeneratedContent       *types.LlmsTxtContent
}

// Ptr returns a pointer to v, for building updates.
func Ptr[T any](v T) *T { return &v }

// Apply merges u into j and bumps the timestamp. ProcessedPages never decreases.
func (u Update) Apply(j *Job, now time.Time) error {
	if u.Status != nil {
		if !CanTransition(j.Status, *u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, *u.Status)
		}
		j.Status = *u.Status
	} else if j.Status.Terminal() {
		return fmt.Errorf("%w: job already %s", ErrInvalidTransition, j.Status)
	}
	if u.TotalPages != nil {
		j.TotalPages = *u.TotalPages
	}
	if u.ProcessedPages != nil && *u.ProcessedPages > j.ProcessedPages {
		j.ProcessedPages = *u.ProcessedPages
	}
	if u.CurrentPage != nil {
		j.CurrentPage = *u.CurrentPage
	}
	if u.Errors != nil {
		j.Errors = append([]types.CrawlError(nil), u.Errors...)
	}
	if u.EstimatedTimeRemaining != nil {
		j.EstimatedTimeRemaining = *u.EstimatedTimeRemaining
	}
	if u.GeneratedContent != nil {
		j.GeneratedContent = u.GeneratedContent
	}
	j.Timestamp = now
	return nil
}
