package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"llmstxt-crawler/internal/config"
)

// ErrInsufficientContent is returned when the converted page falls below the word gate.
var ErrInsufficientContent = errors.New("insufficient content")

// DefaultRemoveSelectors strips layout chrome before the content probe.
var DefaultRemoveSelectors = []string{
	"script", "style", "nav", "footer", "aside", ".sidebar", ".navigation",
}

// DefaultContentSelectors are probed in order; the first with enough text wins.
var DefaultContentSelectors = []string{
	"main",
	`[role="main"]`,
	".content",
	".main-content",
	"article",
	".article-content",
	".post-content",
	".documentation",
	".docs-content",
}

// Document is the extracted, not yet classified form of a page.
type Document struct {
	URL          string
	Title        string
	Content      string
	WordCount    int
	LastModified time.Time
}

// Extractor isolates the main content of a page and converts it to markdown.
type Extractor struct {
	minWords          int
	minContainerChars int
	removeSelector    string
	contentSelectors  []string
	now               func() time.Time
}

// New builds an extractor from configuration, falling back to the default selector sets.
func New(cfg config.ExtractConfig) *Extractor {
	remove := cfg.RemoveSelectors
	if len(remove) == 0 {
		remove = DefaultRemoveSelectors
	}
	content := cfg.ContentSelectors
	if len(content) == 0 {
		content = DefaultContentSelectors
	}
	minWords := cfg.MinWords
	if minWords <= 0 {
		minWords = 50
	}
	minChars := cfg.MinContainerChars
	if minChars <= 0 {
		minChars = 100
	}
	return &Extractor{
		minWords:          minWords,
		minContainerChars: minChars,
		removeSelector:    strings.Join(remove, ", "),
		contentSelectors:  append([]string(nil), content...),
		now:               time.Now,
	}
}

// Extract converts rawHTML into a Document. Malformed markup is reported as an error, never a panic.
func (e *Extractor) Extract(pageURL, title string, rawHTML []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("extract %s: %v", pageURL, r)
		}
	}()

	if len(bytes.TrimSpace(rawHTML)) == 0 {
		return nil, fmt.Errorf("extract %s: %w", pageURL, ErrInsufficientContent)
	}
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	parsed.Find(e.removeSelector).Remove()

	node := e.contentRoot(parsed)
	if node == nil {
		return nil, fmt.Errorf("extract %s: %w", pageURL, ErrInsufficientContent)
	}

	md, err := convert(node)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", pageURL, err)
	}
	words := len(strings.Fields(md))
	if words < e.minWords {
		return nil, fmt.Errorf("extract %s: %w (%d words)", pageURL, ErrInsufficientContent, words)
	}

	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		title = "Untitled"
	}
	return &Document{
		URL:          pageURL,
		Title:        title,
		Content:      md,
		WordCount:    words,
		LastModified: e.now(),
	}, nil
}

func (e *Extractor) contentRoot(doc *goquery.Document) *html.Node {
	for _, sel := range e.contentSelectors {
		candidate := doc.Find(sel).First()
		if candidate.Length() == 0 {
			continue
		}
		if len(strings.TrimSpace(candidate.Text())) > e.minContainerChars {
			return candidate.Get(0)
		}
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body.Get(0)
	}
	if len(doc.Nodes) > 0 {
		return doc.Nodes[0]
	}
	return nil
}

func convert(node *html.Node) (string, error) {
	out, err := htmltomarkdown.ConvertNode(node)
	if err != nil {
		return "", err
	}
	return collapseBlankLines(string(out)), nil
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	result := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			result = append(result, "")
			continue
		}
		blank = 0
		result = append(result, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}
