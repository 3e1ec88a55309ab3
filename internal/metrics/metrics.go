// Package metrics exposes the crawler's prometheus collectors. A single Metrics value
// satisfies the observer interfaces of the crawler, synth, jobs and liveness packages.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmstxt-crawler/internal/crawler"
	"llmstxt-crawler/internal/jobs"
	"llmstxt-crawler/internal/synth"
	"llmstxt-crawler/pkg/types"
)

const namespace = "llmstxt"

// Metrics holds every collector.
type Metrics struct {
	JobsFinished   *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	PagesRecorded  *prometheus.CounterVec
	RenderLatency  *prometheus.HistogramVec
	RenderFailures *prometheus.CounterVec
	Synthesis      *prometheus.CounterVec
	SynthLatency   prometheus.Histogram
	DomainChecks   *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Crawl jobs that reached a terminal status.",
		}, []string{"status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from job start to terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		PagesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_recorded_total",
			Help:      "Pages extracted and classified, by crawl phase and category.",
		}, []string{"phase", "category"}),
		RenderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a page.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		RenderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_failures_total",
			Help:      "Page renders that returned an error.",
		}, []string{"phase"}),
		Synthesis: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Document syntheses by outcome (generated, fallback, disabled).",
		}, []string{"outcome"}),
		SynthLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Time spent synthesizing llms.txt, including text generation.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DomainChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_checks_total",
			Help:      "llms.txt presence probes by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RenderFinished(phase crawler.Phase, latency time.Duration, err error) {
	m.RenderLatency.WithLabelValues(string(phase)).Observe(latency.Seconds())
	if err != nil {
		m.RenderFailures.WithLabelValues(string(phase)).Inc()
	}
}

func (m *Metrics) PageRecorded(phase crawler.Phase, category types.Category) {
	m.PagesRecorded.WithLabelValues(string(phase), string(category)).Inc()
}

func (m *Metrics) SynthesisFinished(outcome synth.Outcome, latency time.Duration) {
	m.Synthesis.WithLabelValues(string(outcome)).Inc()
	m.SynthLatency.Observe(latency.Seconds())
}

func (m *Metrics) JobFinished(status jobs.Status, duration time.Duration) {
	m.JobsFinished.WithLabelValues(string(status)).Inc()
	m.JobDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// DomainChecked counts one liveness probe.
func (m *Metrics) DomainChecked(hasLlmsTxt bool) {
	result := "absent"
	if hasLlmsTxt {
		result = "present"
	}
	m.DomainChecks.WithLabelValues(result).Inc()
}

var (
	_ crawler.Observer = (*Metrics)(nil)
	_ synth.Observer   = (*Metrics)(nil)
	_ jobs.Observer    = (*Metrics)(nil)
)
