package classifier

import (
	"net/url"
	"strings"

	"llmstxt-crawler/pkg/types"
)

// Signals is the lower-cased view of a page that rules inspect.
type Signals struct {
	URL     string
	Path    string
	Title   string
	Content string
}

// NewSignals lower-cases the inputs and resolves the URL path.
func NewSignals(rawURL, title, content string) Signals {
	return Signals{
		URL:     strings.ToLower(rawURL),
		Path:    urlPath(rawURL),
		Title:   strings.ToLower(title),
		Content: strings.ToLower(content),
	}
}

// Rule maps a predicate to a category.
type Rule struct {
	Name     string
	Category types.Category
	Match    func(Signals) bool
}

// MainNavKeywords mark about/contact/services/team/company pages in German and English.
var MainNavKeywords = []string{
	"über uns", "about", "about us", "ueber uns",
	"kontakt", "contact", "impressum",
	"services", "dienstleistungen", "was wir tun",
	"projekte", "projects", "portfolio",
	"team", "unternehmen", "company",
}

// DefaultRules is evaluated in order; the first match wins.
var DefaultRules = []Rule{
	{
		Name:     "home",
		Category: types.CategoryMainNavigation,
		Match: func(s Signals) bool {
			return isRootPath(s.Path) || containsAny(s.Title, "home", "startseite")
		},
	},
	{
		Name:     "main-navigation",
		Category: types.CategoryMainNavigation,
		Match: func(s Signals) bool {
			return containsAny(s.Title, MainNavKeywords...) || containsAny(s.URL, MainNavKeywords...)
		},
	},
	{
		Name:     "api",
		Category: types.CategoryAPIDocumentation,
		Match: func(s Signals) bool {
			return strings.Contains(s.URL, "/api/") ||
				strings.Contains(s.Title, "api") ||
				containsAny(s.Content, "endpoint", "authentication")
		},
	},
	{
		Name:     "getting-started",
		Category: types.CategoryGettingStarted,
		Match: func(s Signals) bool {
			return containsAny(s.Title, "getting started", "quick start", "introduction") ||
				containsAny(s.URL, "/getting-started", "/quickstart", "/intro")
		},
	},
	{
		Name:     "tutorial",
		Category: types.CategoryTutorial,
		Match: func(s Signals) bool {
			return strings.Contains(s.URL, "/tutorial") ||
				containsAny(s.Title, "tutorial", "how to") ||
				strings.Contains(s.Content, "step-by-step")
		},
	},
	{
		Name:     "reference",
		Category: types.CategoryReference,
		Match: func(s Signals) bool {
			return strings.Contains(s.URL, "/reference") ||
				containsAny(s.Title, "reference", "specification") ||
				strings.Contains(s.Content, "parameters")
		},
	},
	{
		Name:     "blog",
		Category: types.CategoryBlog,
		Match: func(s Signals) bool {
			return containsAny(s.URL, "/blog", "/news", "/posts", "/insights") ||
				containsAny(s.Title, "blog", "insights")
		},
	},
	{
		Name:     "legal",
		Category: types.CategoryLegal,
		Match: func(s Signals) bool {
			return containsAny(s.Title, "privacy", "terms", "legal", "datenschutz", "agb") ||
				strings.Contains(s.URL, "/legal")
		},
	},
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

func isRootPath(p string) bool {
	return p == "" || p == "/"
}
