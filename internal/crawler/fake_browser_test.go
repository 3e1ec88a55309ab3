package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"llmstxt-crawler/internal/fetcher"
	"llmstxt-crawler/pkg/types"
)

type fakeResponse struct {
	title string
	html  string
	err   error
}

// fakeBrowser serves canned responses; a URL with several responses returns them in order
// and repeats the last one.
type fakeBrowser struct {
	mu        sync.Mutex
	responses map[string][]fakeResponse
	calls     map[string]int
	order     []string
	opened    int
	closed    int
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		responses: make(map[string][]fakeResponse),
		calls:     make(map[string]int),
	}
}

func (b *fakeBrowser) on(url string, rs ...fakeResponse) *fakeBrowser {
	b.responses[url] = append(b.responses[url], rs...)
	return b
}

func (b *fakeBrowser) Open(ctx context.Context) (fetcher.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	return &fakeSession{b: b}, nil
}

func (b *fakeBrowser) callCount(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[url]
}

type fakeSession struct {
	b *fakeBrowser
}

func (s *fakeSession) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.closed++
	return nil
}

func (s *fakeSession) Render(ctx context.Context, target string, _ fetcher.RenderOptions) (*types.RenderedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &fetcher.RenderError{Kind: fetcher.KindCancelled, URL: target, Cause: err}
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	n := s.b.calls[target]
	s.b.calls[target] = n + 1
	s.b.order = append(s.b.order, target)

	rs, ok := s.b.responses[target]
	if !ok || len(rs) == 0 {
		return nil, &fetcher.RenderError{Kind: fetcher.KindNotFound, URL: target, Status: 404}
	}
	if n >= len(rs) {
		n = len(rs) - 1
	}
	r := rs[n]
	if r.err != nil {
		return nil, r.err
	}
	return &types.RenderedPage{
		URL:        target,
		FinalURL:   target,
		HTML:       []byte(r.html),
		Title:      r.title,
		StatusCode: 200,
		FetchedAt:  time.Now(),
	}, nil
}

func htmlPage(words int, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><main><p>")
	b.WriteString(strings.TrimSpace(strings.Repeat("lorem ", words)))
	b.WriteString("</p></main><div>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">x</a>`, l)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func ok(title string, words int, links ...string) fakeResponse {
	return fakeResponse{title: title, html: htmlPage(words, links...)}
}

func failWith(kind fetcher.ErrorKind, status int) fakeResponse {
	return fakeResponse{err: &fetcher.RenderError{Kind: kind, Status: status}}
}
