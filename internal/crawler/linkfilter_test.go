package crawler

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmstxt-crawler/internal/config"
	"llmstxt-crawler/pkg/types"
)

func newFilter(t *testing.T, req types.CrawlRequest) *LinkFilter {
	t.Helper()
	f, err := NewLinkFilter("x.com", req)
	require.NoError(t, err)
	return f
}

func TestLinkFilterExcludeWinsOverInclude(t *testing.T) {
	f := newFilter(t, types.CrawlRequest{
		MaxDepth:        3,
		IncludePatterns: []string{"/docs/"},
		ExcludePatterns: []string{"/admin/"},
	})
	visited := NewVisitedSet()
	assert.False(t, f.Eligible("https://x.com/docs/admin/", visited, 0))
	assert.True(t, f.Eligible("https://x.com/docs/start", visited, 0))
	assert.False(t, f.Eligible("https://x.com/blog/", visited, 0))
}

func TestLinkFilterRejectsCrossDomainRegardlessOfPatterns(t *testing.T) {
	f := newFilter(t, types.CrawlRequest{MaxDepth: 3, IncludePatterns: []string{"*"}})
	assert.False(t, f.Eligible("https://other.com/page", NewVisitedSet(), 0))
	assert.False(t, f.Eligible("https://docs.x.com/page", NewVisitedSet(), 0))
}

func TestLinkFilterStructuralRules(t *testing.T) {
	f := newFilter(t, types.CrawlRequest{MaxDepth: 2})
	visited := NewVisitedSet()
	visited.Add("https://x.com/seen")

	cases := map[string]bool{
		"https://x.com/ok":              true,
		"https://X.COM/upper":           true,
		"https://x.com/seen":            false,
		"https://x.com/page#section":    false,
		"https://x.com/mailto:me":       false,
		"https://x.com/tel:123":         false,
		"https://x.com/report.PDF":      false,
		"https://x.com/archive.zip":     false,
		"https://x.com/setup.exe":       false,
		"https://x.com/deck.pptx":       false,
		"https://x.com/pdf-guide":       true,
		"ftp://x.com/file":              false,
		"https://x.com/search?q=a.docx": false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, f.Eligible(raw, visited, 1), raw)
	}
	assert.False(t, f.Eligible("https://x.com/ok", visited, 2), "depth gate")
	assert.True(t, f.WithMaxDepth(5).Eligible("https://x.com/ok", visited, 4))
}

func TestLinkFilterGlobsAreCaseInsensitiveAndUnanchored(t *testing.T) {
	f := newFilter(t, types.CrawlRequest{MaxDepth: 1, IncludePatterns: []string{"/Guides/*/setup"}})
	assert.True(t, f.Eligible("https://x.com/en/guides/linux/setup-notes", NewVisitedSet(), 0))
	assert.False(t, f.Eligible("https://x.com/guides/linux", NewVisitedSet(), 0))
}

func TestVisitedSetCanonicalises(t *testing.T) {
	v := NewVisitedSet()
	v.Add("https://X.com:443")
	assert.True(t, v.Has("https://x.com/"))
	assert.False(t, v.Has("http://x.com/"))
	assert.Equal(t, 1, v.Len())
}

func TestExtractLinks(t *testing.T) {
	f := newFilter(t, types.CrawlRequest{MaxDepth: 1})
	page := &types.RenderedPage{
		URL:      "https://x.com/docs/",
		FinalURL: "https://x.com/docs/index",
		HTML: []byte(`<a href="intro">a</a><a href="/about">b</a><a href="/about">dup</a>
<a href="javascript:void(0)">js</a><a href="#frag">f</a><a href="https://y.com/">y</a>
<a href="tel:+4112345">t</a><a href="/brochure.pdf">p</a><a href="">empty</a>`),
	}
	links := f.extractLinks(page, 0)
	assert.Equal(t, []string{"https://x.com/docs/intro", "https://x.com/about"}, links)

	assert.Len(t, f.extractLinks(page, 1), 1)
	assert.Nil(t, f.extractLinks(nil, 0))
}

func TestKeyPageURLs(t *testing.T) {
	root, _ := url.Parse("https://x.com")
	assert.Equal(t, []string{"https://x.com/about", "https://x.com/team"}, keyPageURLs(root, []string{"/about", "/team"}))

	localised, _ := url.Parse("https://x.com/de/start")
	assert.Equal(t,
		[]string{"https://x.com/about", "https://x.com/de/about"},
		keyPageURLs(localised, []string{"/about"}))
}

func TestDomainLimiterSpacesRequests(t *testing.T) {
	cfg := config.CrawlConfig{RequestDelay: config.DurationFrom(40 * time.Millisecond)}
	l := NewDomainLimiter(cfg)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "x.com"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "X.com"))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Wait(ctx, "y.com"))
	assert.Less(t, time.Since(start), 30*time.Millisecond)

	slow := NewDomainLimiter(config.CrawlConfig{RequestDelay: config.DurationFrom(time.Hour)})
	require.NoError(t, slow.Wait(ctx, "x.com"))
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, slow.Wait(cancelled, "x.com"), context.Canceled)
}
