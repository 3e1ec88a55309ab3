// Package synth turns a crawl's processed pages into the llms.txt and llms-full.txt documents.
package synth

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"llmstxt-crawler/pkg/types"
)

// SortByImportance returns a copy of pages ordered by importance, highest first. Ties keep
// crawl order.
func SortByImportance(pages []types.ProcessedPage) []types.ProcessedPage {
	out := append([]types.ProcessedPage(nil), pages...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

// Build assembles heuristic content for siteURL.
func Build(siteURL string, pages []types.ProcessedPage, now time.Time) *types.LlmsTxtContent {
	sorted := SortByImportance(pages)
	return &types.LlmsTxtContent{
		Pages:    sorted,
		Metadata: types.HeuristicMetadata{MetadataFields: fieldsFor(siteURL, sorted, now)},
	}
}

// WithProse upgrades content to the AI-generated variant carrying prose.
func WithProse(content *types.LlmsTxtContent, prose string) *types.LlmsTxtContent {
	return &types.LlmsTxtContent{
		Pages:    content.Pages,
		Metadata: types.AIGeneratedMetadata{MetadataFields: content.Fields(), Prose: prose},
	}
}

func fieldsFor(siteURL string, pages []types.ProcessedPage, now time.Time) types.MetadataFields {
	seen := make(map[types.Category]struct{})
	categories := make([]types.Category, 0, 4)
	for _, p := range pages {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	return types.MetadataFields{
		WebsiteURL:  siteURL,
		GeneratedAt: now,
		TotalPages:  len(pages),
		Categories:  categories,
	}
}

// domainName is the first label of the host without "www.", e.g. "example" for
// https://www.example.com.
func domainName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "Documentation"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return strings.Split(host, ".")[0]
}

// singleLine collapses runs of whitespace, including line breaks, so a title stays on one line.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
