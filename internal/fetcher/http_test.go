package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title> Acme Home </title></head><body><p>hi</p></body></html>"))
	})
	mux.HandleFunc("/multiline", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>\n  About us\n  | Company\n</title></head><body></body></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write([]byte("<title>Zipped</title>"))
		_ = gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/br", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write([]byte("<title>Brotli</title>"))
		_ = bw.Close()
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func openHTTPSession(t *testing.T, srv *httptest.Server) Session {
	t.Helper()
	b := NewHTTPBrowserWithClient(srv.Client(), "", 0)
	s, err := b.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHTTPSessionRender(t *testing.T) {
	srv := newTestServer(t)
	s := openHTTPSession(t, srv)

	page, err := s.Render(context.Background(), srv.URL+"/", RenderOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "Acme Home", page.Title)
	assert.Contains(t, string(page.HTML), "<p>hi</p>")
	assert.Equal(t, srv.URL+"/", page.FinalURL)
}

func TestHTTPSessionTitleIsSingleLine(t *testing.T) {
	srv := newTestServer(t)
	s := openHTTPSession(t, srv)

	page, err := s.Render(context.Background(), srv.URL+"/multiline", RenderOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "About us | Company", page.Title)
}

func TestHTTPSessionNotFoundIsAbsent(t *testing.T) {
	srv := newTestServer(t)
	s := openHTTPSession(t, srv)

	_, err := s.Render(context.Background(), srv.URL+"/missing", RenderOptions{})
	require.Error(t, err)
	assert.True(t, IsAbsent(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "HTTP 404: Failed to load page", err.Error())
}

func TestHTTPSessionServerErrorIsRetryable(t *testing.T) {
	srv := newTestServer(t)
	s := openHTTPSession(t, srv)

	_, err := s.Render(context.Background(), srv.URL+"/broken", RenderOptions{})
	require.Error(t, err)
	assert.False(t, IsAbsent(err))
	assert.True(t, IsRetryable(err))
}

func TestHTTPSessionTimeout(t *testing.T) {
	srv := newTestServer(t)
	s := openHTTPSession(t, srv)

	_, err := s.Render(context.Background(), srv.URL+"/slow", RenderOptions{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindTimeout, re.Kind)
	assert.True(t, IsRetryable(err))
}

func TestHTTPSessionDecodesCompressedBodies(t *testing.T) {
	srv := newTestServer(t)
	s := openHTTPSession(t, srv)

	page, err := s.Render(context.Background(), srv.URL+"/gzip", RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Zipped", page.Title)

	page, err = s.Render(context.Background(), srv.URL+"/br", RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Brotli", page.Title)
}

func TestHTTPBrowserTruncatesBody(t *testing.T) {
	srv := newTestServer(t)
	b := NewHTTPBrowserWithClient(srv.Client(), "", 10)
	s, err := b.Open(context.Background())
	require.NoError(t, err)

	page, err := s.Render(context.Background(), srv.URL+"/", RenderOptions{})
	require.NoError(t, err)
	assert.Len(t, page.HTML, 10)
}

func TestNewRejectsUnknownEngine(t *testing.T) {
	_, err := New(Options{Engine: "lynx"}, nil)
	assert.Error(t, err)

	b, err := New(Options{Engine: "http"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPBrowser{}, b)
}
