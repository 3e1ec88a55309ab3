package crawler

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"llmstxt-crawler/pkg/types"
)

const defaultMaxLinks = 200

// extractLinks returns the absolute, same-domain anchors of a rendered page in document order.
func (f *LinkFilter) extractLinks(page *types.RenderedPage, maxLinks int) []string {
	if page == nil || len(page.HTML) == 0 {
		return nil
	}
	base, err := page.BaseURL()
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return nil
	}
	if maxLinks <= 0 {
		maxLinks = defaultMaxLinks
	}

	seen := make(map[string]struct{})
	links := make([]string, 0, 16)
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return true
		}
		u, err := base.Parse(href)
		if err != nil {
			return true
		}
		abs := u.String()
		if !f.traversable(abs) {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return len(links) < maxLinks
	})
	return links
}
