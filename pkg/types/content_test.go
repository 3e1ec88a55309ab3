package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLlmsTxtContentKeepsMetadataVariant(t *testing.T) {
	fields := MetadataFields{
		WebsiteURL:  "https://x.com",
		GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		TotalPages:  1,
		Categories:  []Category{CategoryMainNavigation},
	}
	in := LlmsTxtContent{
		Pages:    []ProcessedPage{{URL: "https://x.com", Title: "X", Category: CategoryMainNavigation, Importance: 1}},
		Metadata: AIGeneratedMetadata{MetadataFields: fields, Prose: "# X\n"},
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"ai_generated"`)
	assert.Contains(t, string(raw), `"websiteUrl":"https://x.com"`)

	var out LlmsTxtContent
	require.NoError(t, json.Unmarshal(raw, &out))
	ai, ok := out.Metadata.(AIGeneratedMetadata)
	require.True(t, ok)
	assert.Equal(t, "# X\n", ai.Prose)
	assert.Equal(t, fields.WebsiteURL, out.Fields().WebsiteURL)
	assert.Len(t, out.Pages, 1)
}

func TestLlmsTxtContentLegacyMetadataWithoutKind(t *testing.T) {
	var out LlmsTxtContent
	require.NoError(t, json.Unmarshal([]byte(`{"structure":{"pages":[]},"metadata":{"websiteUrl":"https://x.com","totalPages":0}}`), &out))
	assert.Equal(t, MetadataHeuristic, out.Metadata.Kind())

	require.Error(t, json.Unmarshal([]byte(`{"metadata":{"kind":"mystery"}}`), &out))
}

func TestCrawlRequestValidate(t *testing.T) {
	assert.ErrorIs(t, CrawlRequest{URL: ""}.Validate(), ErrInvalidURL)
	assert.ErrorIs(t, CrawlRequest{URL: "example.com"}.Validate(), ErrInvalidURL)
	assert.ErrorIs(t, CrawlRequest{URL: "httpx://example.com"}.Validate(), ErrInvalidURL)
	assert.ErrorIs(t, CrawlRequest{URL: "https://"}.Validate(), ErrInvalidURL)
	assert.Error(t, CrawlRequest{URL: "https://example.com", MaxDepth: -1}.Validate())
	assert.NoError(t, CrawlRequest{URL: " https://example.com "}.Validate())

	req := CrawlRequest{URL: " https://example.com ", IncludePatterns: []string{"/docs"}}.WithDefaults(3)
	assert.Equal(t, "https://example.com", req.URL)
	assert.Equal(t, 3, req.MaxDepth)
}
