package synth

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"llmstxt-crawler/internal/llm"
	"llmstxt-crawler/internal/logging"
	"llmstxt-crawler/pkg/types"
)

// Outcome labels a synthesis for metrics.
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeFallback  Outcome = "fallback"
	OutcomeDisabled  Outcome = "disabled"
)

// Observer is notified after every synthesis.
type Observer interface {
	SynthesisFinished(outcome Outcome, latency time.Duration)
}

type nopObserver struct{}

func (nopObserver) SynthesisFinished(Outcome, time.Duration) {}

// Options tunes the generation call.
type Options struct {
	MaxTokens   int
	Temperature float64
	Observer    Observer
	Logger      *zap.Logger
}

// Synthesizer produces LlmsTxtContent, preferring generated prose and falling back to the
// heuristic rendering on any generator failure.
type Synthesizer struct {
	gen      llm.Generator
	opts     Options
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

// New returns a Synthesizer. A nil generator always takes the heuristic path.
func New(gen llm.Generator, opts Options) *Synthesizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1500
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Synthesizer{
		gen:      gen,
		opts:     opts,
		observer: observer,
		logger:   logging.OrNop(opts.Logger).With(zap.String("component", "synth")),
		now:      time.Now,
	}
}

// Synthesize never fails: generator errors are logged and the heuristic content is returned.
func (s *Synthesizer) Synthesize(ctx context.Context, siteURL string, pages []types.ProcessedPage) *types.LlmsTxtContent {
	started := s.now()
	content := Build(siteURL, pages, started)
	if s.gen == nil {
		s.observer.SynthesisFinished(OutcomeDisabled, 0)
		return content
	}

	prompt, err := BuildPrompt(siteURL, content.Pages)
	if err != nil {
		s.logger.Warn("prompt build failed, using heuristic summary", zap.Error(err))
		s.observer.SynthesisFinished(OutcomeFallback, s.now().Sub(started))
		return content
	}
	prose, err := s.gen.Generate(ctx, llm.Request{
		System:      systemInstruction,
		Prompt:      prompt,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	latency := s.now().Sub(started)
	if err != nil || strings.TrimSpace(prose) == "" {
		s.logger.Warn("text generation failed, using heuristic summary",
			zap.String("generator", s.gen.Name()),
			zap.String("url", siteURL),
			zap.Error(err))
		s.observer.SynthesisFinished(OutcomeFallback, latency)
		return content
	}
	s.logger.Debug("summary generated",
		zap.String("generator", s.gen.Name()),
		zap.Int("links", len(MainLinks(prose))),
		zap.Duration("latency", latency))
	s.observer.SynthesisFinished(OutcomeGenerated, latency)
	return WithProse(content, prose)
}
