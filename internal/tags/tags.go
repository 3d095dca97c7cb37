// Package tags classifies call transcripts into categorical tags via
// case-insensitive keyword matching. Pure and deterministic.
package tags

import "strings"

type category struct {
	tag      string
	keywords []string
}

// Declaration order only affects the convenience ordering of the result;
// callers must treat the output as a set.
var categories = []category{
	{"discovery", []string{"tell me about", "what are you currently", "walk me through"}},
	{"cold-call", []string{"reaching out", "first time", "introduction"}},
	{"follow-up", []string{"following up", "last time we spoke", "checking in"}},
	{"pricing", []string{"price", "cost", "investment", "budget"}},
	{"objection-handling", []string{"too expensive", "think about it", "not sure", "competitor"}},
	{"closing", []string{"move forward", "next steps", "get started", "sign"}},
}

// Detect returns every tag whose keyword list has at least one substring match
// in the transcript. Multiple tags may apply.
func Detect(transcript string) []string {
	lower := strings.ToLower(transcript)
	var out []string
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, c.tag)
				break
			}
		}
	}
	return out
}
