package policy

import (
	"regexp"
	"strings"
)

// ClaimClassifier decides whether input text asserts something checkable
// against a web search. Implementations stay heuristic; swap in a model
// backed classifier through PolicyConfig if needed.
type ClaimClassifier interface {
	// Claims returns the candidate claim sentences, most confident first.
	// An empty slice means the input carries nothing worth verifying.
	Claims(text string) []string
}

// regexClassifier flags sentences that look like definitive assertions:
// four digit years, is/was statements, citation phrases, percentages.
type regexClassifier struct {
	patterns []*regexp.Regexp
	splitter *regexp.Regexp
}

// NewRegexClassifier returns the default pattern based classifier.
func NewRegexClassifier() ClaimClassifier {
	return &regexClassifier{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b\d{4}\b`),
			regexp.MustCompile(`(?i)\b(is|was|are|were)\s+\w+`),
			regexp.MustCompile(`(?i)\b(according to|studies show|research indicates)`),
			regexp.MustCompile(`(?i)\b(percent|percentage|%)`),
		},
		splitter: regexp.MustCompile(`[.!?]+`),
	}
}

func (c *regexClassifier) Claims(text string) []string {
	var claims []string
	for _, sentence := range c.splitter.Split(text, -1) {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		for _, p := range c.patterns {
			if p.MatchString(trimmed) {
				claims = append(claims, trimmed)
				break
			}
		}
	}
	return claims
}
