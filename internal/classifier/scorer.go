package classifier

import (
	"math"
	"strings"

	"llmstxt-crawler/pkg/types"
)

// CategoryWeights is the base importance per category.
var CategoryWeights = map[types.Category]float64{
	types.CategoryMainNavigation:   0.95,
	types.CategoryGettingStarted:   0.9,
	types.CategoryAPIDocumentation: 0.8,
	types.CategoryTutorial:         0.7,
	types.CategoryDocumentation:    0.6,
	types.CategoryReference:        0.5,
	types.CategoryBlog:             0.3,
	types.CategoryLegal:            0.1,
}

const defaultWeight = 0.5

var importanceKeywords = []string{"getting started", "introduction", "overview", "guide", "tutorial"}

// Score computes the importance of a page in [0,1].
func Score(rawURL, title string, wordCount int, category types.Category) float64 {
	if isRootPath(urlPath(rawURL)) {
		return 1.0
	}

	importance, ok := CategoryWeights[category]
	if !ok {
		importance = defaultWeight
	}

	// counts segments after scheme and host, so "https://x.com/a/b" is 2
	depth := float64(len(strings.Split(rawURL, "/")) - 3)
	if category == types.CategoryMainNavigation {
		importance *= math.Max(0.8, 1-depth*0.05)
	} else {
		importance *= math.Max(0.3, 1-depth*0.1)
		if wordCount > 1000 {
			importance += 0.1
		}
		if wordCount > 2000 {
			importance += 0.1
		}
	}

	if containsAny(strings.ToLower(title), importanceKeywords...) {
		importance += 0.1
	}
	return math.Min(1, math.Max(0, importance))
}
