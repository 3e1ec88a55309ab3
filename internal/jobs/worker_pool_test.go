package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool, err := NewWorkerPool(context.Background(), 2, 4)
	require.NoError(t, err)
	defer pool.Close()

	var ran atomic.Int32
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.TrySubmit(func(context.Context) {
			ran.Add(1)
			done <- struct{}{}
		}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run")
		}
	}
	assert.Equal(t, int32(3), ran.Load())
}

func TestWorkerPoolTrySubmitQueueFull(t *testing.T) {
	pool, err := NewWorkerPool(context.Background(), 1, 1)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.TrySubmit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, pool.TrySubmit(func(context.Context) {}))
	assert.ErrorIs(t, pool.TrySubmit(func(context.Context) {}), ErrQueueFull)

	close(release)
	pool.Close()
	assert.ErrorIs(t, pool.TrySubmit(func(context.Context) {}), ErrPoolClosed)
}

func TestWorkerPoolCloseCancelsRunningTasks(t *testing.T) {
	pool, err := NewWorkerPool(context.Background(), 1, 1)
	require.NoError(t, err)

	cancelled := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.TrySubmit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	<-started
	pool.Close()
	select {
	case <-cancelled:
	default:
		t.Fatal("running task was not cancelled")
	}
}

func TestNewWorkerPoolValidates(t *testing.T) {
	_, err := NewWorkerPool(context.Background(), 0, 1)
	assert.Error(t, err)
}
