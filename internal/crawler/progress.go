package crawler

import "llmstxt-crawler/pkg/types"

// Phase names the stage of a crawl.
type Phase string

const (
	PhaseHomepage Phase = "homepage"
	PhaseKeyPages Phase = "key_pages"
	PhaseFallback Phase = "fallback"
)

// ProgressEvent is pushed after every recorded page and before each key-page probe.
type ProgressEvent struct {
	types.Progress
	Phase  Phase
	Errors []types.CrawlError
}

// ProgressSink receives progress from the crawl worker. Implementations must not block.
type ProgressSink interface {
	Report(ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ProgressEvent)

// Report implements ProgressSink.
func (f ProgressFunc) Report(ev ProgressEvent) {
	if f != nil {
		f(ev)
	}
}

type nopSink struct{}

func (nopSink) Report(ProgressEvent) {}
