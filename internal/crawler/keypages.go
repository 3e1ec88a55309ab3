package crawler

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"llmstxt-crawler/internal/fetcher"
	"llmstxt-crawler/pkg/types"
)

// keyPageURLs builds the probe list for root. When the root path starts with /de or /en,
// each candidate is followed by its locale-prefixed variant.
func keyPageURLs(root *url.URL, paths []string) []string {
	origin := root.Scheme + "://" + root.Host
	locale := ""
	if strings.HasPrefix(root.Path, "/de") || strings.HasPrefix(root.Path, "/en") {
		locale = root.Path[:3]
	}
	out := make([]string, 0, len(paths)*2)
	for _, p := range paths {
		out = append(out, origin+p)
		if locale != "" {
			out = append(out, origin+locale+p)
		}
	}
	return out
}

func (e *Engine) keyPageRetryPolicy() retrypolicy.RetryPolicy[*types.RenderedPage] {
	delay := e.cfg.KeyPageRetryDelay.Duration
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return retrypolicy.NewBuilder[*types.RenderedPage]().
		HandleIf(func(_ *types.RenderedPage, err error) bool {
			return err != nil && fetcher.IsRetryable(err)
		}).
		WithMaxRetries(1).
		WithDelay(delay).
		ReturnLastFailure().
		Build()
}

// runKeyPages probes the candidate list until maxKeyPages are accepted. Probe failures of any
// kind are expected and never enter the error list.
func (r *crawlRun) runKeyPages(ctx context.Context) {
	candidates := keyPageURLs(r.root, r.engine.keyPagePaths())
	limit := r.engine.cfg.MaxKeyPages
	if limit <= 0 {
		limit = 3
	}
	minWords := r.engine.cfg.KeyPageMinWords
	policy := r.engine.keyPageRetryPolicy()

	successful := 0
	for _, candidate := range candidates {
		if successful >= limit || ctx.Err() != nil {
			break
		}
		if r.visited.Has(candidate) {
			continue
		}
		r.report(PhaseKeyPages, candidate, len(r.pages)+len(candidates)-successful)

		if !r.allowedByRobots(ctx, candidate) {
			continue
		}

		page, err := failsafe.With(policy).WithContext(ctx).Get(func() (*types.RenderedPage, error) {
			return r.render(ctx, candidate, r.engine.cfg.KeyPageTimeout.Duration, PhaseKeyPages)
		})
		if err != nil {
			r.logger.Debug("key page unavailable",
				zap.String("url", candidate),
				zap.Bool("absent", fetcher.IsAbsent(err)),
				zap.Error(err),
			)
			continue
		}

		processed, err := r.process(candidate, page)
		if err != nil || processed.WordCount <= minWords {
			continue
		}
		r.record(processed, PhaseKeyPages)
		r.visited.Add(candidate)
		successful++
		r.logger.Debug("key page accepted", zap.String("url", candidate), zap.Int("words", processed.WordCount))
		r.report(PhaseKeyPages, candidate, len(r.pages)+len(candidates)-successful)
	}
	r.logger.Info("key page probe finished", zap.Int("accepted", successful))
}
