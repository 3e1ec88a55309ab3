package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmstxt-crawler/internal/jobs"
	"llmstxt-crawler/internal/liveness"
	"llmstxt-crawler/internal/storage"
	"llmstxt-crawler/internal/synth"
	"llmstxt-crawler/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeJobs struct {
	mu        sync.Mutex
	jobs      map[string]*jobs.Job
	submitted []types.CrawlRequest
	clientIPs []string
	submitErr error
	cancelled []string
	broker    *jobs.Broker
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*jobs.Job), broker: jobs.NewBroker(0)}
}

func (f *fakeJobs) put(job *jobs.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.JobID] = job
}

func (f *fakeJobs) Submit(_ context.Context, req types.CrawlRequest, ip string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	f.clientIPs = append(f.clientIPs, ip)
	id := "job-000000000001"
	f.jobs[id] = jobs.NewJob(id, time.Now())
	return id, nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return job.Clone(), nil
}

func (f *fakeJobs) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	if job.Status.Terminal() {
		return jobs.ErrNotRunning
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeJobs) Subscribe(id string) (<-chan jobs.Event, func()) {
	return f.broker.Subscribe(id)
}

type fakeResults struct {
	results []types.CrawlResult
	report  storage.DomainReport
	err     error
}

func (f *fakeResults) ListResults(context.Context, int) ([]types.CrawlResult, error) {
	return f.results, f.err
}

func (f *fakeResults) DomainReport(context.Context, time.Duration) (storage.DomainReport, error) {
	return f.report, f.err
}

type fakeChecker struct {
	report liveness.Report
}

func (f fakeChecker) CheckAll(context.Context) (liveness.Report, error) {
	return f.report, nil
}

func completedJob(id string) *jobs.Job {
	job := jobs.NewJob(id, time.Now())
	job.Status = jobs.StatusCompleted
	job.CurrentPage = "Completed"
	job.GeneratedContent = synth.Build("https://example.com", []types.ProcessedPage{
		{URL: "https://example.com", Title: "Example", Content: "Example offers consulting services for software teams.", Importance: 1, Category: types.CategoryMainNavigation},
	}, time.Now())
	return job
}

func newTestServer(f *fakeJobs, opts Options) *Server {
	opts.Jobs = f
	return NewServer(opts)
}

func TestServerHandlers(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte("llmstxt_up 1\n"))
	})
	server := newTestServer(newFakeJobs(), Options{Metrics: metrics})

	assertRoute(t, server, http.MethodGet, "/health", http.StatusOK, "application/json; charset=utf-8")
	assertRoute(t, server, http.MethodGet, "/openapi.yaml", http.StatusOK, "application/yaml")
	assertRoute(t, server, http.MethodGet, "/docs", http.StatusOK, "text/html; charset=utf-8")
	assertRoute(t, server, http.MethodGet, "/metrics", http.StatusOK, "text/plain; version=0.0.4")
}

func assertRoute(t *testing.T, h http.Handler, method, path string, wantStatus int, wantContentType string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d (body=%s)", method, path, wantStatus, rr.Code, rr.Body.String())
	}
	if wantContentType != "" {
		if got := rr.Header().Get("Content-Type"); got != wantContentType {
			t.Fatalf("%s %s: expected content-type %s, got %s", method, path, wantContentType, got)
		}
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("%s %s: expected non-empty body", method, path)
	}
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestRequestIDHeader(t *testing.T) {
	server := newTestServer(newFakeJobs(), Options{})

	rr := do(server, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = do(server, http.MethodGet, "/health", "", map[string]string{"X-Request-ID": "req-123"})
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}

func TestCreateCrawl(t *testing.T) {
	f := newFakeJobs()
	server := newTestServer(f, Options{})

	rr := do(server, http.MethodPost, "/api/crawl", `{"url":"https://example.com","maxDepth":2}`,
		map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp CrawlResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "job-000000000001", resp.JobID)
	require.Len(t, f.submitted, 1)
	assert.Equal(t, 2, f.submitted[0].MaxDepth)
	assert.Equal(t, "203.0.113.5", f.clientIPs[0])
}

func TestCreateCrawlRejectsBadInput(t *testing.T) {
	server := newTestServer(newFakeJobs(), Options{})

	rr := do(server, http.MethodPost, "/api/crawl", `{"url":"ftp://example.com"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid URL provided", decodeError(t, rr).Error)

	rr = do(server, http.MethodPost, "/api/crawl", `{"url":`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(server, http.MethodPost, "/api/crawl", `{"url":"https://example.com","maxDepth":-1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateCrawlQueueFull(t *testing.T) {
	f := newFakeJobs()
	f.submitErr = jobs.ErrQueueFull
	server := newTestServer(f, Options{})

	rr := do(server, http.MethodPost, "/api/crawl", `{"url":"https://example.com"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	f.submitErr = errors.New("store offline")
	rr = do(server, http.MethodPost, "/api/crawl", `{"url":"https://example.com"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to start crawling", decodeError(t, rr).Error)
}

func TestGetCrawl(t *testing.T) {
	f := newFakeJobs()
	f.put(completedJob("job-000000000042"))
	server := newTestServer(f, Options{})

	rr := do(server, http.MethodGet, "/api/crawl/short", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid job ID", decodeError(t, rr).Error)

	rr = do(server, http.MethodGet, "/api/crawl/job-999999999999", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Job not found or expired", decodeError(t, rr).Error)

	rr = do(server, http.MethodGet, "/api/crawl/job-000000000042", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "job-000000000042", body["jobId"])
	assert.Equal(t, "completed", body["status"])
	assert.Contains(t, body, "generatedContent")
}

func TestCancelCrawl(t *testing.T) {
	f := newFakeJobs()
	running := jobs.NewJob("job-000000000007", time.Now())
	running.Status = jobs.StatusCrawling
	f.put(running)
	f.put(completedJob("job-000000000008"))
	server := newTestServer(f, Options{})

	assert.Equal(t, http.StatusAccepted, do(server, http.MethodPost, "/api/crawl/job-000000000007/cancel", "", nil).Code)
	assert.Equal(t, []string{"job-000000000007"}, f.cancelled)
	assert.Equal(t, http.StatusConflict, do(server, http.MethodPost, "/api/crawl/job-000000000008/cancel", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(server, http.MethodPost, "/api/crawl/job-000000000009/cancel", "", nil).Code)
}

func TestDownloadDocuments(t *testing.T) {
	f := newFakeJobs()
	f.put(completedJob("job-000000000042"))
	pending := jobs.NewJob("job-000000000043", time.Now())
	f.put(pending)
	server := newTestServer(f, Options{})

	rr := do(server, http.MethodGet, "/api/crawl/job-000000000042/llms.txt", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename="llms.txt"`)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "# Example"))

	rr = do(server, http.MethodGet, "/api/crawl/job-000000000042/llms-full.txt", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "# example - Complete Documentation")

	rr = do(server, http.MethodGet, "/api/crawl/job-000000000043/llms.txt", "", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestStreamEventsTerminalSnapshot(t *testing.T) {
	f := newFakeJobs()
	f.put(completedJob("job-000000000042"))
	server := newTestServer(f, Options{})

	rr := do(server, http.MethodGet, "/api/crawl/job-000000000042/events", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "event: snapshot\ndata: {"))
	assert.Equal(t, 1, strings.Count(rr.Body.String(), "event: "))

	rr = do(server, http.MethodGet, "/api/crawl/job-000000000099/events", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStreamEventsFollowsJob(t *testing.T) {
	f := newFakeJobs()
	running := jobs.NewJob("job-000000000050", time.Now())
	running.Status = jobs.StatusCrawling
	f.put(running)
	srv := httptest.NewServer(newTestServer(f, Options{Heartbeat: 20 * time.Millisecond}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/crawl/job-000000000050/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	nextEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
				return name
			}
		}
	}
	require.Equal(t, "snapshot", nextEvent())

	progress := running.Clone()
	progress.ProcessedPages = 3
	f.broker.Publish(jobs.Event{Type: jobs.EventProgress, Timestamp: time.Now(), Job: progress})
	seen := []string{}
	for len(seen) == 0 || seen[len(seen)-1] == "heartbeat" {
		seen = append(seen, nextEvent())
	}
	assert.Equal(t, "progress", seen[len(seen)-1])

	done := completedJob("job-000000000050")
	f.broker.Publish(jobs.Event{Type: jobs.EventCompleted, Timestamp: time.Now(), Job: done})
	for {
		name := nextEvent()
		if name == "heartbeat" {
			continue
		}
		assert.Equal(t, "completed", name)
		break
	}
}

func TestDomainEndpoints(t *testing.T) {
	checked := time.Now().Add(-2 * time.Hour)
	results := &fakeResults{report: storage.DomainReport{
		Domains:     []storage.DomainStatus{{Domain: "example.com", HasLlmsTxt: true, LastChecked: &checked}},
		NeedsUpdate: true,
		LastCheck:   &checked,
	}}
	checker := fakeChecker{report: liveness.Report{Checked: 1, Results: []liveness.Result{{Domain: "example.com", HasLlmsTxt: true}}}}
	server := newTestServer(newFakeJobs(), Options{Results: results, Checker: checker})

	rr := do(server, http.MethodGet, "/api/domain-status", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var report storage.DomainReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.True(t, report.NeedsUpdate)
	require.Len(t, report.Domains, 1)
	assert.Equal(t, "example.com", report.Domains[0].Domain)

	rr = do(server, http.MethodPost, "/api/check-domains", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var sweep liveness.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sweep))
	assert.Equal(t, 1, sweep.Checked)

	results.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, do(server, http.MethodGet, "/api/domain-status", "", nil).Code)
}

func TestDatabaseEndpointsWithoutDatabase(t *testing.T) {
	server := newTestServer(newFakeJobs(), Options{})
	assert.Equal(t, http.StatusServiceUnavailable, do(server, http.MethodGet, "/api/domain-status", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(server, http.MethodPost, "/api/check-domains", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(server, http.MethodGet, "/api/admin/crawl-results", "", nil).Code)
}

func TestAdminCrawlResults(t *testing.T) {
	now := time.Now()
	results := &fakeResults{results: []types.CrawlResult{
		{ID: 2, URL: "https://b.example", IPAddress: "1.1.1.1", CreatedAt: now},
		{ID: 1, URL: "https://a.example", IPAddress: "1.1.1.1", CreatedAt: now.Add(-72 * time.Hour)},
	}}
	server := newTestServer(newFakeJobs(), Options{Results: results})

	rr := do(server, http.MethodGet, "/api/admin/crawl-results", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body CrawlResultsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Results, 2)
	assert.Equal(t, 2, body.Stats.TotalCrawls)
	assert.Equal(t, 1, body.Stats.UniqueIPs)
	assert.Equal(t, 2, body.Stats.UniqueURLs)
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": " 198.51.100.1 , 10.0.0.2"}, "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
		{"forwarded wins", map[string]string{"X-Forwarded-For": "198.51.100.1", "X-Real-IP": "198.51.100.9"}, "198.51.100.1"},
		{"none", nil, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, clientIP(req))
		})
	}
}
