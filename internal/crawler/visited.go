package crawler

import (
	"net/url"
	"strings"
)

// VisitedSet records URLs already rendered during one crawl. Keys are canonical, so
// "https://x.com" and "https://X.com:443/" collide. Not safe for concurrent use; a crawl
// owns a single worker.
type VisitedSet struct {
	entries map[string]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{entries: make(map[string]struct{})}
}

// Add marks raw as visited. Unparseable URLs are stored verbatim.
func (v *VisitedSet) Add(raw string) {
	v.entries[visitedKey(raw)] = struct{}{}
}

// Has reports whether raw was visited.
func (v *VisitedSet) Has(raw string) bool {
	if v == nil {
		return false
	}
	_, ok := v.entries[visitedKey(raw)]
	return ok
}

// Len is the number of visited URLs.
func (v *VisitedSet) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

func visitedKey(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	return canonicalKey(u)
}

func canonicalKey(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPortForScheme(scheme) {
		host = host + ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	key := scheme + "://" + host + path
	if q := u.RawQuery; q != "" {
		key += "?" + q
	}
	return key
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
