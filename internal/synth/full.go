package synth

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"llmstxt-crawler/pkg/types"
)

const (
	pageSeparator    = "---"
	urlLabel         = "**URL:** "
	categoryLabel    = "**Category:** "
	wordCountLabel   = "**Word Count:** "
	generatedPrefix  = "> Generated on "
	fullDateLayout   = "2006-01-02"
	fullTitleTrailer = " - Complete Documentation"
)

// Full renders llms-full.txt: every page, highest importance first, under a separator rule,
// a title heading and a URL/category/word-count block.
func Full(content *types.LlmsTxtContent) string {
	if content == nil {
		return ""
	}
	fields := content.Fields()
	var b strings.Builder
	fmt.Fprintf(&b, "# %s%s\n\n", domainName(fields.WebsiteURL), fullTitleTrailer)
	fmt.Fprintf(&b, "%s%s from %s\n", generatedPrefix, fields.GeneratedAt.Format(fullDateLayout), fields.WebsiteURL)
	b.WriteString("> This file contains the full content of all processed pages.\n\n")

	for _, page := range SortByImportance(content.Pages) {
		b.WriteString(pageSeparator + "\n\n")
		fmt.Fprintf(&b, "# %s\n\n", singleLine(page.Title))
		fmt.Fprintf(&b, "%s%s\n", urlLabel, page.URL)
		fmt.Fprintf(&b, "%s%s\n", categoryLabel, page.Category)
		fmt.Fprintf(&b, "%s%d\n\n", wordCountLabel, page.WordCount)
		b.WriteString(page.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// FullPage is one page recovered from an llms-full.txt document.
type FullPage struct {
	URL       string
	Title     string
	Category  types.Category
	WordCount int
	Content   string
}

// FullDocument is a parsed llms-full.txt.
type FullDocument struct {
	WebsiteURL string
	Pages      []FullPage
}

// ErrNotFullDocument is returned when the input lacks the llms-full.txt heading.
var ErrNotFullDocument = errors.New("not an llms-full.txt document")

// ParseFull reads a document produced by Full. A page block starts at a separator rule that
// is followed by a title heading and a URL line.
func ParseFull(doc string) (*FullDocument, error) {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(doc))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "# ") || !strings.HasSuffix(lines[0], fullTitleTrailer) {
		return nil, ErrNotFullDocument
	}

	out := &FullDocument{}
	for _, line := range lines[1:] {
		if strings.HasPrefix(line, generatedPrefix) {
			if idx := strings.LastIndex(line, " from "); idx >= 0 {
				out.WebsiteURL = strings.TrimSpace(line[idx+len(" from "):])
			}
			break
		}
	}

	var starts []int
	for i := range lines {
		if isPageStart(lines, i) {
			starts = append(starts, i)
		}
	}
	for n, start := range starts {
		end := len(lines)
		if n+1 < len(starts) {
			end = starts[n+1]
		}
		page, err := parsePageBlock(lines[start:end])
		if err != nil {
			return nil, err
		}
		out.Pages = append(out.Pages, page)
	}
	return out, nil
}

func isPageStart(lines []string, i int) bool {
	return lines[i] == pageSeparator &&
		i+4 < len(lines) &&
		strings.HasPrefix(lines[i+2], "# ") &&
		strings.HasPrefix(lines[i+4], urlLabel)
}

// parsePageBlock reads separator, blank, heading, blank, URL, category, word count, blank, content.
func parsePageBlock(block []string) (FullPage, error) {
	page := FullPage{
		Title: strings.TrimPrefix(block[2], "# "),
		URL:   strings.TrimSpace(strings.TrimPrefix(block[4], urlLabel)),
	}
	bodyStart := 5
	for bodyStart < len(block) && bodyStart <= 7 {
		line := block[bodyStart]
		switch {
		case strings.HasPrefix(line, categoryLabel):
			page.Category = types.Category(strings.TrimSpace(strings.TrimPrefix(line, categoryLabel)))
		case strings.HasPrefix(line, wordCountLabel):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, wordCountLabel)))
			if err != nil {
				return FullPage{}, fmt.Errorf("page %s: word count: %w", page.URL, err)
			}
			page.WordCount = n
		}
		bodyStart++
	}
	if bodyStart > len(block) {
		bodyStart = len(block)
	}
	page.Content = strings.TrimRight(strings.Join(block[bodyStart:], "\n"), "\n ")
	return page, nil
}
