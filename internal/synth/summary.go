package synth

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"llmstxt-crawler/pkg/types"
)

const (
	mainSectionMinImportance = 0.6
	mainSectionLimit         = 10
)

var businessKeywords = []string{
	"digitalagentur", "agentur", "services", "solutions", "expertise", "consulting", "development", "design",
}

var (
	titleSeparators = regexp.MustCompile(`[|\-–—]`)
	sentenceEnd     = regexp.MustCompile(`[.!?]$`)
)

// Summary returns the llms.txt document: the generated prose when present, otherwise the
// heuristic rendering.
func Summary(content *types.LlmsTxtContent) string {
	if content == nil {
		return ""
	}
	if ai, ok := content.Metadata.(types.AIGeneratedMetadata); ok && strings.TrimSpace(ai.Prose) != "" {
		return ai.Prose
	}
	return RenderSummary(content)
}

// RenderSummary writes the heuristic llms.txt: title, description, Main links and Contact.
func RenderSummary(content *types.LlmsTxtContent) string {
	fields := content.Fields()
	pages := content.Pages

	var mainPage *types.ProcessedPage
	for i := range pages {
		if pages[i].URL == fields.WebsiteURL {
			mainPage = &pages[i]
			break
		}
	}
	if mainPage == nil && len(pages) > 0 {
		mainPage = &pages[0]
	}

	siteTitle := domainName(fields.WebsiteURL)
	if mainPage != nil && mainPage.Title != "" {
		siteTitle = singleLine(mainPage.Title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", siteTitle)
	if mainPage != nil {
		if desc := siteDescription(mainPage.Content); desc != "" {
			fmt.Fprintf(&b, "> %s\n\n", desc)
		}
	}

	top := mainSection(pages)
	if len(top) > 0 {
		b.WriteString("## Main\n\n")
		for _, p := range top {
			fmt.Fprintf(&b, "- [%s](%s)\n", cleanTitle(singleLine(p.Title), siteTitle), p.URL)
		}
	}

	if contacts := ExtractContacts(pages); len(contacts) > 0 {
		b.WriteString("\n## Contact\n\n")
		for _, c := range contacts {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}

// mainSection picks pages scoring at least 0.6 from an importance-sorted list, capped at 10.
func mainSection(pages []types.ProcessedPage) []types.ProcessedPage {
	out := make([]types.ProcessedPage, 0, mainSectionLimit)
	for _, p := range pages {
		if p.Importance < mainSectionMinImportance {
			continue
		}
		out = append(out, p)
		if len(out) == mainSectionLimit {
			break
		}
	}
	return out
}

func siteDescription(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			continue
		}
		n := utf8.RuneCountInString(line)
		if n > 30 && n < 200 && containsAny(strings.ToLower(line), businessKeywords) {
			return line
		}
	}
	for _, line := range lines {
		n := utf8.RuneCountInString(line)
		if !strings.HasPrefix(line, "#") && n > 50 && n < 300 {
			return line
		}
	}
	return ""
}

// cleanTitle strips a trailing "| Site", "- Home" style suffix and ends the title with a period.
func cleanTitle(title, siteTitle string) string {
	siteName := strings.TrimSpace(titleSeparators.Split(siteTitle, 2)[0])
	cleaned := title
	for _, suffix := range []string{siteName, "Home", "Homepage", "Index", "Main"} {
		if suffix == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)\s*[|\-–—]\s*` + regexp.QuoteMeta(suffix) + `\s*$`)
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return title
	}
	if !sentenceEnd.MatchString(cleaned) {
		cleaned += "."
	}
	return cleaned
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
