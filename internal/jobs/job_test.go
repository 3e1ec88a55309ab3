package jobs

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmstxt-crawler/pkg/types"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusCrawling, true},
		{StatusPending, StatusProcessing, true},
		{StatusCrawling, StatusCrawling, true},
		{StatusCrawling, StatusProcessing, true},
		{StatusProcessing, StatusCrawling, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusCrawling, StatusError, true},
		{StatusPending, StatusError, true},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusCompleted, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusCrawling, Status("paused"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestApplyMergesFields(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	job := NewJob("abc", t0)

	err := Update{
		Status:         Ptr(StatusCrawling),
		TotalPages:     Ptr(4),
		ProcessedPages: Ptr(2),
		CurrentPage:    Ptr("https://x.com/a"),
		Errors:         []types.CrawlError{{URL: "https://x.com/b", Error: "HTTP 404: Failed to load page"}},
	}.Apply(job, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, StatusCrawling, job.Status)
	assert.Equal(t, 4, job.TotalPages)
	assert.Equal(t, 2, job.ProcessedPages)
	assert.Len(t, job.Errors, 1)
	assert.Equal(t, t0.Add(time.Second), job.Timestamp)

	require.NoError(t, Update{ProcessedPages: Ptr(1)}.Apply(job, t0.Add(2*time.Second)))
	assert.Equal(t, 2, job.ProcessedPages, "processed pages never decrease")
	assert.Len(t, job.Errors, 1, "nil errors leave the list untouched")
	assert.Equal(t, t0.Add(2*time.Second), job.Timestamp)

	require.NoError(t, Update{Errors: []types.CrawlError{}}.Apply(job, t0))
	assert.Empty(t, job.Errors)
}

func TestApplyRejectsRegressionAndTerminalWrites(t *testing.T) {
	job := NewJob("abc", time.Now())
	require.NoError(t, Update{Status: Ptr(StatusProcessing)}.Apply(job, time.Now()))

	err := Update{Status: Ptr(StatusCrawling)}.Apply(job, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusProcessing, job.Status)

	require.NoError(t, Update{Status: Ptr(StatusCompleted)}.Apply(job, time.Now()))
	assert.ErrorIs(t, Update{CurrentPage: Ptr("late")}.Apply(job, time.Now()), ErrInvalidTransition)
	assert.NotEqual(t, "late", job.CurrentPage)
}

func TestCloneIsIndependent(t *testing.T) {
	job := NewJob("abc", time.Now())
	job.Errors = append(job.Errors, types.CrawlError{URL: "u"})
	cp := job.Clone()
	cp.Errors[0].URL = "changed"
	assert.Equal(t, "u", job.Errors[0].URL)
}

func TestNewIDEncodesCreationTime(t *testing.T) {
	now := time.UnixMilli(1_717_171_717_171)
	id := NewID(now)

	assert.True(t, ValidID(id))
	assert.Equal(t, strings.ToLower(id), id)
	created, ok := CreatedAt(id)
	require.True(t, ok)
	assert.True(t, created.Equal(now))
	assert.NotEqual(t, id, NewID(now), "random suffix differs")
}

func TestValidIDAndCreatedAtRejectJunk(t *testing.T) {
	assert.False(t, ValidID("short"))
	_, ok := CreatedAt("abc")
	assert.False(t, ok)
	_, ok = CreatedAt("!!!!!!!!abcdef")
	assert.False(t, ok)
}
