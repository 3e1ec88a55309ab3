package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaperSweepUsesRetention(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, NewJob("stale-job-01", now.Add(-3*time.Hour))))
	require.NoError(t, store.Create(ctx, NewJob("fresh-job-01", now.Add(-30*time.Minute))))

	r := NewReaper(store, 2*time.Hour, nil)
	r.now = func() time.Time { return now }

	removed, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestReaperStartRejectsBadSchedule(t *testing.T) {
	r := NewReaper(NewMemoryStore(), time.Hour, nil)
	assert.Error(t, r.Start(context.Background(), "every so often"))
	r.Stop()
}

func TestReaperStartAndStop(t *testing.T) {
	r := NewReaper(NewMemoryStore(), time.Hour, nil)
	require.NoError(t, r.Start(context.Background(), "@every 10m"))
	r.Stop()
}
