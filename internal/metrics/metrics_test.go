package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmstxt-crawler/internal/crawler"
	"llmstxt-crawler/internal/jobs"
	"llmstxt-crawler/internal/synth"
	"llmstxt-crawler/pkg/types"
)

func TestObserversIncrementCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RenderFinished(crawler.PhaseHomepage, 120*time.Millisecond, nil)
	m.RenderFinished(crawler.PhaseKeyPages, time.Second, errors.New("timeout"))
	m.PageRecorded(crawler.PhaseHomepage, types.CategoryMainNavigation)
	m.PageRecorded(crawler.PhaseHomepage, types.CategoryMainNavigation)
	m.SynthesisFinished(synth.OutcomeFallback, 2*time.Second)
	m.JobFinished(jobs.StatusCompleted, time.Minute)
	m.DomainChecked(true)
	m.DomainChecked(false)
	m.DomainChecked(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RenderFailures.WithLabelValues("key_pages")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RenderFailures.WithLabelValues("homepage")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesRecorded.WithLabelValues("homepage", "Main Navigation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Synthesis.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFinished.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DomainChecks.WithLabelValues("absent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DomainChecks.WithLabelValues("present")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.JobFinished(jobs.StatusError, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `llmstxt_jobs_finished_total{status="error"} 1`)
}
