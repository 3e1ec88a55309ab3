package synth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmstxt-crawler/internal/llm"
	"llmstxt-crawler/pkg/types"
)

const site = "https://acme.test"

func samplePages() []types.ProcessedPage {
	return []types.ProcessedPage{
		{URL: site + "/blog/post", Title: "Post | Acme", Content: "A blog post.", Category: types.CategoryBlog, Importance: 0.5, WordCount: 60},
		{URL: site + "/services", Title: "Services | Acme", Content: "What we do.", Category: types.CategoryMainNavigation, Importance: 0.8, WordCount: 120},
		{URL: site, Title: "Acme | Home", Content: "# Welcome\n\nAcme is a consulting firm delivering design services worldwide.\n\nMore text.", Category: types.CategoryMainNavigation, Importance: 1.0, WordCount: 400},
		{URL: site + "/about", Title: "About - Acme", Content: "Who we are.", Category: types.CategoryMainNavigation, Importance: 0.9, WordCount: 150},
		{URL: site + "/docs/start", Title: "Start", Content: "Install it.", Category: types.CategoryGettingStarted, Importance: 0.7, WordCount: 90},
		{URL: site + "/docs/api", Title: "API", Content: "Endpoints.", Category: types.CategoryAPIDocumentation, Importance: 0.6, WordCount: 80},
	}
}

func TestBuildSortsAndCollectsCategories(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	content := Build(site, samplePages(), now)

	require.Len(t, content.Pages, 6)
	for i := 1; i < len(content.Pages); i++ {
		assert.GreaterOrEqual(t, content.Pages[i-1].Importance, content.Pages[i].Importance)
	}
	fields := content.Fields()
	assert.Equal(t, site, fields.WebsiteURL)
	assert.Equal(t, 6, fields.TotalPages)
	assert.Equal(t, now, fields.GeneratedAt)
	assert.ElementsMatch(t, []types.Category{
		types.CategoryBlog, types.CategoryMainNavigation, types.CategoryGettingStarted, types.CategoryAPIDocumentation,
	}, fields.Categories)
	assert.IsType(t, types.HeuristicMetadata{}, content.Metadata)
}

func TestRenderSummaryMainSection(t *testing.T) {
	content := Build(site, samplePages(), time.Now())
	doc := RenderSummary(content)

	assert.True(t, strings.HasPrefix(doc, "# Acme | Home\n\n"))
	assert.Contains(t, doc, "> Acme is a consulting firm delivering design services worldwide.\n")
	assert.Equal(t, []string{
		site, site + "/about", site + "/services", site + "/docs/start", site + "/docs/api",
	}, MainLinks(doc))
	assert.Contains(t, doc, "- [Acme.](https://acme.test)\n")
	assert.Contains(t, doc, "- [About.](https://acme.test/about)\n")
	assert.NotContains(t, doc, "/blog/post")
	assert.NotContains(t, doc, "## Contact")
}

func TestRenderSummaryCapsMainAtTen(t *testing.T) {
	var pages []types.ProcessedPage
	for i := 0; i < 14; i++ {
		pages = append(pages, types.ProcessedPage{
			URL:        site + "/p" + string(rune('a'+i)),
			Title:      "Page",
			Importance: 0.95 - float64(i)*0.01,
		})
	}
	links := MainLinks(RenderSummary(Build(site, pages, time.Now())))
	require.Len(t, links, 10)
	assert.Equal(t, site+"/pa", links[0])
	assert.Equal(t, site+"/pj", links[9])
}

func TestRenderSummaryDomainFallback(t *testing.T) {
	doc := RenderSummary(Build("https://www.example.org/", nil, time.Now()))
	assert.Equal(t, "# example\n\n", doc)
}

func TestCleanTitle(t *testing.T) {
	cases := []struct{ title, site, want string }{
		{"About Us | Acme", "Acme | Home", "About Us."},
		{"Services - Home", "Acme", "Services."},
		{"Team — Acme", "Acme", "Team."},
		{"FAQ?", "Acme", "FAQ?"},
		{"| Acme", "Acme", "| Acme"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cleanTitle(tc.title, tc.site), tc.title)
	}
}

func TestExtractContacts(t *testing.T) {
	pages := []types.ProcessedPage{
		{URL: site + "/kontakt", Content: "Call +41 44 123 45 67 or mail info@acme.test"},
		{URL: site + "/about", Content: "Reach info@acme.test or sales@acme.test or jobs@acme.test"},
	}
	got := ExtractContacts(pages)
	assert.Equal(t, []string{
		"[+41 44 123 45 67](tel:+41441234567)",
		"[info@acme.test](mailto:info@acme.test)",
		"[sales@acme.test](mailto:sales@acme.test)",
	}, got)
}

func TestSummaryIncludesContactSection(t *testing.T) {
	pages := samplePages()
	pages[0].Content = "Questions? hello@acme.test"
	doc := RenderSummary(Build(site, pages, time.Now()))
	assert.Contains(t, doc, "\n## Contact\n\n- [hello@acme.test](mailto:hello@acme.test)\n")
}

func TestFullRoundTrip(t *testing.T) {
	pages := samplePages()
	pages[1].Content = "Intro\n\n---\n\nMore after a rule"
	content := Build(site, pages, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	doc := Full(content)
	assert.True(t, strings.HasPrefix(doc, "# acme - Complete Documentation\n\n> Generated on 2024-05-01 from https://acme.test\n"))

	parsed, err := ParseFull(doc)
	require.NoError(t, err)
	assert.Equal(t, site, parsed.WebsiteURL)
	require.Len(t, parsed.Pages, len(pages))

	want := make(map[string]types.Category)
	for _, p := range pages {
		want[p.URL] = p.Category
	}
	got := make(map[string]types.Category)
	for _, p := range parsed.Pages {
		got[p.URL] = p.Category
	}
	assert.Equal(t, want, got)

	for _, p := range parsed.Pages {
		if p.URL == site+"/services" {
			assert.Equal(t, "Intro\n\n---\n\nMore after a rule", p.Content)
			assert.Equal(t, 120, p.WordCount)
			assert.Equal(t, "Services | Acme", p.Title)
		}
	}
}

func TestMultiLineTitleStaysOnOneLine(t *testing.T) {
	pages := samplePages()
	pages[3].Title = "\n  About us\n  | Acme\n"
	content := Build(site, pages, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	parsed, err := ParseFull(Full(content))
	require.NoError(t, err)
	require.Len(t, parsed.Pages, len(pages))
	var found bool
	for _, p := range parsed.Pages {
		if p.URL == site+"/about" {
			found = true
			assert.Equal(t, "About us | Acme", p.Title)
			assert.Equal(t, types.CategoryMainNavigation, p.Category)
		}
	}
	assert.True(t, found)

	summary := RenderSummary(content)
	assert.Contains(t, summary, "- [About us.]("+site+"/about)\n")
	links := MainLinks(summary)
	assert.Len(t, links, 5)
	assert.Contains(t, links, site+"/about")
}

func TestParseFullRejectsOtherDocuments(t *testing.T) {
	_, err := ParseFull("# Acme\n\n> summary\n")
	assert.ErrorIs(t, err, ErrNotFullDocument)
}

func TestBuildPromptSelectsPages(t *testing.T) {
	content := Build(site, samplePages(), time.Now())
	nav, other := splitNavigation(site, content.Pages)
	require.Len(t, nav, 3)
	assert.Equal(t, site, nav[0].URL)
	assert.Len(t, other, 3)

	prompt, err := BuildPrompt(site, content.Pages)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Website URL: https://acme.test")
	assert.Contains(t, prompt, `"contentSummary": "# Welcome`)
	assert.Contains(t, prompt, `"contentPreview": "Install it."`)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "äöü...", truncateRunes("äöüß", 3))
}

type fakeGenerator struct {
	out  string
	err  error
	reqs []llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.out, f.err
}

func (f *fakeGenerator) Name() string { return "fake" }

type countingObserver struct{ outcomes []Outcome }

func (c *countingObserver) SynthesisFinished(o Outcome, _ time.Duration) {
	c.outcomes = append(c.outcomes, o)
}

func TestSynthesizeUsesGeneratedProse(t *testing.T) {
	gen := &fakeGenerator{out: "# Acme\n\n## Main\n- [About](https://acme.test/about): who we are\n"}
	obs := &countingObserver{}
	s := New(gen, Options{Temperature: 0.2, Observer: obs})

	content := s.Synthesize(context.Background(), site, samplePages())
	ai, ok := content.Metadata.(types.AIGeneratedMetadata)
	require.True(t, ok)
	assert.Equal(t, gen.out, ai.Prose)
	assert.Equal(t, gen.out, Summary(content))
	require.Len(t, gen.reqs, 1)
	assert.Equal(t, 1500, gen.reqs[0].MaxTokens)
	assert.Equal(t, systemInstruction, gen.reqs[0].System)
	assert.Equal(t, []Outcome{OutcomeGenerated}, obs.outcomes)
}

func TestSynthesizeFallsBackOnGeneratorError(t *testing.T) {
	obs := &countingObserver{}
	s := New(&fakeGenerator{err: errors.New("quota exceeded")}, Options{Observer: obs})

	content := s.Synthesize(context.Background(), site, samplePages())
	assert.IsType(t, types.HeuristicMetadata{}, content.Metadata)
	assert.Equal(t, RenderSummary(content), Summary(content))
	assert.Equal(t, []Outcome{OutcomeFallback}, obs.outcomes)
}

func TestSynthesizeWithoutGenerator(t *testing.T) {
	content := New(nil, Options{}).Synthesize(context.Background(), site, samplePages())
	assert.IsType(t, types.HeuristicMetadata{}, content.Metadata)
	assert.Len(t, content.Pages, 6)
}
