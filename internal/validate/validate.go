// Package validate checks search responses against minimum quality criteria
// and runs the check over a set of topics.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/websearch/internal/analyzer"
	"github.com/FranksOps/websearch/internal/serp"
	"github.com/FranksOps/websearch/pkg/ratelimit"
)

// DefaultTopics is the topic set used when none is given.
var DefaultTopics = []string{
	"renewable energy",
	"machine learning applications",
	"space exploration",
	"sustainable agriculture",
	"cybersecurity best practices",
}

// Criteria are the thresholds a response must meet.
type Criteria struct {
	MinResults       int
	MinTitleLength   int
	MinSnippetLength int
}

// DefaultCriteria returns the standard thresholds.
func DefaultCriteria() Criteria {
	return Criteria{MinResults: 3, MinTitleLength: 5, MinSnippetLength: 10}
}

var requiredFields = []string{"title", "url", "snippet"}

// Report is the verdict for one topic.
type Report struct {
	Topic        string   `json:"topic" yaml:"topic"`
	Success      bool     `json:"success" yaml:"success"`
	Errors       []string `json:"errors" yaml:"errors"`
	Warnings     []string `json:"warnings" yaml:"warnings"`
	ResultCount  int      `json:"result_count" yaml:"result_count"`
	ValidResults int      `json:"valid_results" yaml:"valid_results"`
	// TermHits counts topic words found in titles and snippets.
	TermHits int `json:"term_hits" yaml:"term_hits"`
	// ResponseTime is the search_time_seconds reported by the server.
	ResponseTime float64 `json:"response_time_seconds" yaml:"response_time_seconds"`
	Strategy     string  `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

func newReport(topic string) Report {
	return Report{Topic: topic, Errors: []string{}, Warnings: []string{}}
}

// Failed builds the report for a search that could not be performed.
func Failed(topic string, err error) Report {
	r := newReport(topic)
	r.Errors = append(r.Errors, fmt.Sprintf("exception during validation: %v", err))
	return r
}

// Check validates a raw search_web response for topic. Fields are checked by
// presence in the JSON, so a response missing "snippet" is caught even though
// it would decode cleanly into serp.Result.
func Check(topic string, raw []byte, c Criteria) Report {
	r := newReport(topic)

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(raw, &resp); err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("response is not valid JSON: %v", err))
		return r
	}

	rawResults, ok := resp["results"]
	if !ok {
		r.Errors = append(r.Errors, "response does not contain 'results' field")
		return r
	}
	var results []map[string]any
	if err := json.Unmarshal(rawResults, &results); err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("'results' is not a list of objects: %v", err))
		return r
	}
	_, hasTopic := resp["topic"]
	if v, ok := resp["search_time_seconds"]; ok {
		if err := json.Unmarshal(v, &r.ResponseTime); err != nil {
			r.Warnings = append(r.Warnings, fmt.Sprintf("'search_time_seconds' is not a number: %s", v))
		}
	}
	if v, ok := resp["strategy"]; ok {
		if err := json.Unmarshal(v, &r.Strategy); err != nil {
			r.Warnings = append(r.Warnings, fmt.Sprintf("'strategy' is not a string: %s", v))
		}
	}

	r.ResultCount = len(results)
	if len(results) < c.MinResults {
		r.Warnings = append(r.Warnings, fmt.Sprintf("found only %d results, expected at least %d", len(results), c.MinResults))
	}

	for i, res := range results {
		problems := checkResult(res, c)

		if u, ok := res["url"].(string); ok && hasTopic && !analyzer.HostRelevant(u, topic) {
			r.Warnings = append(r.Warnings, fmt.Sprintf("result %d url may not be relevant to topic: %s", i+1, u))
		}
		title, _ := res["title"].(string)
		snippet, _ := res["snippet"].(string)
		for _, m := range analyzer.MatchTerms(serp.Result{Title: title, Snippet: snippet}, topic) {
			r.TermHits += m.Count
		}

		if len(problems) == 0 {
			r.ValidResults++
			continue
		}
		for _, p := range problems {
			r.Errors = append(r.Errors, fmt.Sprintf("result %d: %s", i+1, p))
		}
	}

	r.Success = len(r.Errors) == 0 && r.ValidResults >= c.MinResults
	return r
}

func checkResult(res map[string]any, c Criteria) []string {
	var problems []string
	for _, field := range requiredFields {
		v, ok := res[field]
		if !ok {
			problems = append(problems, "missing required field: "+field)
			continue
		}
		s, ok := v.(string)
		if !ok {
			problems = append(problems, fmt.Sprintf("field %s is not a string", field))
			continue
		}
		switch field {
		case "title":
			if len(s) < c.MinTitleLength {
				problems = append(problems, fmt.Sprintf("title too short: %d chars", len(s)))
			}
		case "snippet":
			if len(s) < c.MinSnippetLength {
				problems = append(problems, fmt.Sprintf("snippet too short: %d chars", len(s)))
			}
		case "url":
			if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
				problems = append(problems, "invalid url format: "+s)
			}
		}
	}
	return problems
}

// SearchFunc returns the raw JSON search_web response for topic.
type SearchFunc func(ctx context.Context, topic string) ([]byte, error)

// Runner validates a list of topics.
type Runner struct {
	Search SearchFunc
	// Criteria defaults to DefaultCriteria when zero.
	Criteria Criteria
	// Interval spaces the start of consecutive searches.
	Interval time.Duration
	// Concurrency bounds searches in flight; values below 1 mean 1.
	Concurrency int
	Logger      *slog.Logger
}

// Run validates topics and returns one report per topic, in input order. A
// failed search yields a failed report rather than an error; only
// cancellation of ctx is returned.
func (r *Runner) Run(ctx context.Context, topics []string) ([]Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	crit := r.Criteria
	if crit == (Criteria{}) {
		crit = DefaultCriteria()
	}

	reports := make([]Report, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Concurrency, 1))

	for i, topic := range topics {
		if i > 0 {
			if err := ratelimit.Sleep(gctx, r.Interval); err != nil {
				break
			}
		}
		g.Go(func() error {
			logger.Info("validating topic", "topic", topic)
			raw, err := r.Search(gctx, topic)
			if err != nil {
				logger.Error("search failed during validation", "topic", topic, "err", err)
				reports[i] = Failed(topic, err)
				return nil
			}
			reports[i] = Check(topic, raw, crit)
			logger.Info("topic validated", "topic", topic, "success", reports[i].Success,
				"valid", reports[i].ValidResults, "results", reports[i].ResultCount)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return reports, nil
}
