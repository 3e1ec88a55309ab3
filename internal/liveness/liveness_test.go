package liveness

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDomainStore struct {
	domains []string
	listErr error

	mu       sync.Mutex
	statuses map[string]bool
	failFor  string
}

func (f *fakeDomainStore) Domains(context.Context) ([]string, error) {
	return f.domains, f.listErr
}

func (f *fakeDomainStore) UpsertDomainStatus(_ context.Context, domain string, has bool, _ time.Time) error {
	if domain == f.failFor {
		return errors.New("write failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]bool)
	}
	f.statuses[domain] = has
	return nil
}

type countingObserver struct {
	mu      sync.Mutex
	present int
	absent  int
}

func (c *countingObserver) DomainChecked(has bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if has {
		c.present++
	} else {
		c.absent++
	}
}

func newProbeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/has.example/"):
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/slow.example/"):
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestChecker(srv *httptest.Server, store DomainStore, obs Observer) *Checker {
	c := NewChecker(store, Options{Timeout: 100 * time.Millisecond, Concurrency: 2, Observer: obs, UserAgent: "test-agent"})
	c.probeURL = func(domain string) string { return srv.URL + "/" + domain + "/llms.txt" }
	return c
}

func TestProbe(t *testing.T) {
	srv := newProbeServer(t)
	c := newTestChecker(srv, &fakeDomainStore{}, nil)

	assert.True(t, c.Probe(context.Background(), "has.example"))
	assert.False(t, c.Probe(context.Background(), "missing.example"))
	assert.False(t, c.Probe(context.Background(), "slow.example"))
}

func TestProbeUnreachableHost(t *testing.T) {
	c := NewChecker(&fakeDomainStore{}, Options{Timeout: 100 * time.Millisecond})
	c.probeURL = func(string) string { return "http://127.0.0.1:1/llms.txt" }
	assert.False(t, c.Probe(context.Background(), "nowhere.example"))
}

func TestCheckAllStoresEveryDomain(t *testing.T) {
	srv := newProbeServer(t)
	store := &fakeDomainStore{
		domains: []string{"has.example", "missing.example", "slow.example", "broken.example"},
		failFor: "broken.example",
	}
	obs := &countingObserver{}
	c := newTestChecker(srv, store, obs)

	report, err := c.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Checked)
	require.Len(t, report.Results, 4)
	assert.Equal(t, "has.example", report.Results[0].Domain)
	assert.True(t, report.Results[0].HasLlmsTxt)
	assert.False(t, report.Results[1].HasLlmsTxt)
	assert.False(t, report.Results[2].HasLlmsTxt)
	assert.False(t, report.Results[0].LastChecked.IsZero())

	assert.Equal(t, map[string]bool{"has.example": true, "missing.example": false, "slow.example": false}, store.statuses)
	assert.Equal(t, 1, obs.present)
	assert.Equal(t, 3, obs.absent)
}

func TestCheckAllListFailure(t *testing.T) {
	c := NewChecker(&fakeDomainStore{listErr: errors.New("db down")}, Options{})
	_, err := c.CheckAll(context.Background())
	require.Error(t, err)
}

func TestCheckAllNoDomains(t *testing.T) {
	c := NewChecker(&fakeDomainStore{}, Options{})
	report, err := c.CheckAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
	assert.NotNil(t, report.Results)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	c := NewChecker(&fakeDomainStore{}, Options{})
	assert.Error(t, c.Start(context.Background(), "hourly-ish"))
	c.Stop()
	require.NoError(t, c.Start(context.Background(), "@every 1h"))
	c.Stop()
}
