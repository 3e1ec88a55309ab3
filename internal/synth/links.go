package synth

import (
	"regexp"
	"strings"
)

var markdownLinkTarget = regexp.MustCompile(`\(([^)]+)\)`)

// MainLinks returns the link targets listed under the "## Main" heading of an llms.txt.
func MainLinks(doc string) []string {
	var out []string
	inMain := false
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "## Main" {
			inMain = true
			continue
		}
		if strings.HasPrefix(line, "## ") {
			inMain = false
			continue
		}
		if !inMain || !strings.HasPrefix(line, "- [") {
			continue
		}
		if m := markdownLinkTarget.FindStringSubmatch(line); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}
