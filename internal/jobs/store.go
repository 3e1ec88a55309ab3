package jobs

import (
	"context"
	"time"
)

// Store persists job records. Implementations must be safe for concurrent use on
// different ids; a single id has one writer at a time.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, upd Update) (*Job, error)
	Delete(ctx context.Context, id string) error
	// DeleteOlderThan removes jobs whose last update precedes cutoff and reports how many went.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
