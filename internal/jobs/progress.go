package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"llmstxt-crawler/internal/crawler"
	"llmstxt-crawler/pkg/types"
)

// progressWriter turns crawl progress into job updates on its own goroutine so the crawl never
// waits on the store. Only the latest pending event is kept; each carries full counters and
// the whole error list, so skipping intermediate ones loses nothing.
type progressWriter struct {
	m       *Manager
	id      string
	started time.Time

	mu      sync.Mutex
	pending *crawler.ProgressEvent
	wake    chan struct{}
	done    chan struct{}
	closed  bool
}

func newProgressWriter(m *Manager, id string, started time.Time) *progressWriter {
	w := &progressWriter{
		m:       m,
		id:      id,
		started: started,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// Report implements crawler.ProgressSink.
func (w *progressWriter) Report(ev crawler.ProgressEvent) {
	ev.Errors = append([]types.CrawlError{}, ev.Errors...)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending = &ev
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// close stops accepting events and waits until the last one is written.
func (w *progressWriter) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.wake)
	w.mu.Unlock()
	<-w.done
}

func (w *progressWriter) loop() {
	defer close(w.done)
	for range w.wake {
		w.flush()
	}
	w.flush()
}

func (w *progressWriter) flush() {
	w.mu.Lock()
	ev := w.pending
	w.pending = nil
	w.mu.Unlock()
	if ev == nil {
		return
	}
	eta := EstimateRemaining(ev.Progress, w.m.now().Sub(w.started))
	_, err := w.m.update(context.Background(), w.id, Update{
		TotalPages:             Ptr(ev.TotalPages),
		ProcessedPages:         Ptr(ev.ProcessedPages),
		CurrentPage:            Ptr(ev.CurrentPage),
		Errors:                 ev.Errors,
		EstimatedTimeRemaining: Ptr(eta),
	}, EventProgress)
	if err != nil {
		w.m.logger.Warn("progress update failed", zap.String("job_id", w.id), zap.Error(err))
	}
}
