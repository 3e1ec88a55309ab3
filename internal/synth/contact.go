package synth

import (
	"fmt"
	"regexp"
	"strings"

	"llmstxt-crawler/pkg/types"
)

const maxContacts = 3

var (
	phonePattern     = regexp.MustCompile(`\+?[\d\s\-()]{10,}`)
	phoneLinePattern = regexp.MustCompile(`^\s*[+\d\s\-()]{10,}`)
	emailPattern     = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	whitespace       = regexp.MustCompile(`\s+`)
	nonDialChars     = regexp.MustCompile(`[^\d+\-]`)
)

// ExtractContacts collects phone and email links from page contents, deduplicated in
// discovery order and capped at three.
func ExtractContacts(pages []types.ProcessedPage) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(entry string) {
		if _, ok := seen[entry]; ok {
			return
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}

	for _, page := range pages {
		for _, phone := range phonePattern.FindAllString(page.Content, -1) {
			if link, ok := phoneLink(phone); ok {
				add(link)
			}
		}
		for _, email := range emailPattern.FindAllString(page.Content, -1) {
			add(fmt.Sprintf("[%s](mailto:%s)", email, email))
		}
		if !isContactPage(page) {
			continue
		}
		for _, line := range strings.Split(page.Content, "\n") {
			if !phoneLinePattern.MatchString(line) {
				continue
			}
			if link, ok := phoneLink(line); ok {
				add(link)
			}
		}
	}
	if len(out) > maxContacts {
		out = out[:maxContacts]
	}
	return out
}

func phoneLink(raw string) (string, bool) {
	display := strings.TrimSpace(raw)
	dial := nonDialChars.ReplaceAllString(whitespace.ReplaceAllString(raw, ""), "")
	if len(dial) < 10 {
		return "", false
	}
	return fmt.Sprintf("[%s](tel:%s)", display, dial), true
}

func isContactPage(page types.ProcessedPage) bool {
	content := strings.ToLower(page.Content)
	return strings.Contains(content, "kontakt") || strings.Contains(content, "contact") ||
		strings.Contains(page.URL, "contact") || strings.Contains(page.URL, "kontakt")
}
