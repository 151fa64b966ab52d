// Package analyzer implements the naive relevance heuristics used when
// validating search results.
package analyzer

import (
	"net/url"
	"strings"

	"github.com/FranksOps/websearch/internal/serp"
)

// minWordLen excludes short words such as "the" or "and" from matching.
const minWordLen = 3

// TopicWords splits topic on whitespace and returns the lowercased words
// longer than three characters.
func TopicWords(topic string) []string {
	fields := strings.Fields(strings.ToLower(topic))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > minWordLen {
			words = append(words, f)
		}
	}
	return words
}

// HostRelevant reports whether the host of rawURL contains any topic word.
// A topic without qualifying words, or an unparsable URL, is never relevant.
func HostRelevant(rawURL, topic string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return false
	}
	for _, w := range TopicWords(topic) {
		if strings.Contains(host, w) {
			return true
		}
	}
	return false
}

// TermMatch counts the occurrences of one topic word in a result.
type TermMatch struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// MatchTerms counts each topic word in the title and snippet of r,
// case-insensitively. Words that do not occur are omitted.
func MatchTerms(r serp.Result, topic string) []TermMatch {
	text := strings.ToLower(r.Title + " " + r.Snippet)
	var out []TermMatch
	for _, w := range TopicWords(topic) {
		if n := strings.Count(text, w); n > 0 {
			out = append(out, TermMatch{Term: w, Count: n})
		}
	}
	return out
}
