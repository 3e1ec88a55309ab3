package classifier

import "llmstxt-crawler/pkg/types"

// Classifier assigns categories with an ordered rule table.
type Classifier struct {
	rules    []Rule
	fallback types.Category
}

// New returns a classifier over rules; nil selects DefaultRules.
func New(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{rules: rules, fallback: types.CategoryDocumentation}
}

// Classify returns the category of the first matching rule.
func (c *Classifier) Classify(rawURL, title, content string) types.Category {
	category, _ := c.Explain(rawURL, title, content)
	return category
}

// Explain is Classify plus the name of the rule that fired ("default" when none did).
func (c *Classifier) Explain(rawURL, title, content string) (types.Category, string) {
	s := NewSignals(rawURL, title, content)
	for _, r := range c.rules {
		if r.Match(s) {
			return r.Category, r.Name
		}
	}
	return c.fallback, "default"
}

// Assess classifies and scores a page in one step.
func (c *Classifier) Assess(rawURL, title, content string, wordCount int) (types.Category, float64) {
	category := c.Classify(rawURL, title, content)
	return category, Score(rawURL, title, wordCount, category)
}
