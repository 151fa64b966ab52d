package validate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/websearch/internal/serp"
)

func response(t *testing.T, topic string, results []serp.Result) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"topic":               topic,
		"results":             results,
		"count":               len(results),
		"search_time_seconds": 0.42,
		"strategy":            "duckduckgo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return raw
}

func goodResults() []serp.Result {
	return []serp.Result{
		{Title: "Renewable energy explained", URL: "https://www.energy.gov/renewable", Snippet: "Renewable energy comes from sources that refill."},
		{Title: "Solar power basics", URL: "https://solar.example.org/", Snippet: "How solar panels turn light into energy."},
		{Title: "Wind turbines", URL: "https://renewables.example.com/wind", Snippet: "Wind is a renewable resource."},
	}
}

func TestCheck_Success(t *testing.T) {
	r := Check("renewable energy", response(t, "renewable energy", goodResults()), DefaultCriteria())

	if !r.Success {
		t.Fatalf("expected success, got errors %v", r.Errors)
	}
	if r.ResultCount != 3 || r.ValidResults != 3 {
		t.Errorf("expected 3/3, got %d/%d", r.ValidResults, r.ResultCount)
	}
	if r.ResponseTime != 0.42 || r.Strategy != "duckduckgo" {
		t.Errorf("expected response metadata, got %v %q", r.ResponseTime, r.Strategy)
	}
	// solar.example.org contains neither "renewable" nor "energy".
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0], "result 2") {
		t.Errorf("expected one relevance warning for result 2, got %v", r.Warnings)
	}
	if r.TermHits == 0 {
		t.Errorf("expected term hits")
	}
}

func TestCheck_FieldErrors(t *testing.T) {
	raw := []byte(`{"topic":"space exploration","results":[
		{"title":"NASA","url":"https://nasa.gov","snippet":"Space agency news."},
		{"title":"Space exploration history","url":"ftp://space.example","snippet":"short"},
		{"title":"Missing snippet","url":"https://space.example"},
		{"title":"Exploration", "url":"https://exploration.example", "snippet": 12}
	]}`)

	r := Check("space exploration", raw, DefaultCriteria())
	if r.Success {
		t.Fatal("expected failure")
	}
	if r.ValidResults != 0 || r.ResultCount != 4 {
		t.Errorf("expected 0/4 valid, got %d/%d", r.ValidResults, r.ResultCount)
	}

	joined := strings.Join(r.Errors, "\n")
	for _, want := range []string{
		"result 1: title too short: 4 chars",
		"result 2: snippet too short: 5 chars",
		"result 2: invalid url format: ftp://space.example",
		"result 3: missing required field: snippet",
		"result 4: field snippet is not a string",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected error %q in:\n%s", want, joined)
		}
	}
}

func TestCheck_TooFewResults(t *testing.T) {
	r := Check("renewable energy", response(t, "renewable energy", goodResults()[:2]), DefaultCriteria())
	if r.Success {
		t.Error("expected failure with fewer than 3 valid results")
	}
	if len(r.Errors) != 0 {
		t.Errorf("expected no errors, got %v", r.Errors)
	}
	if len(r.Warnings) == 0 || !strings.Contains(r.Warnings[0], "found only 2 results") {
		t.Errorf("expected a count warning, got %v", r.Warnings)
	}
}

func TestCheck_MistypedMetadata(t *testing.T) {
	results, err := json.Marshal(goodResults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw := `{"topic":"renewable energy","results":` + string(results) + `,"search_time_seconds":"fast","strategy":7}`

	r := Check("renewable energy", []byte(raw), DefaultCriteria())
	if !r.Success {
		t.Errorf("expected metadata problems not to fail the check, got %v", r.Errors)
	}
	if r.ResponseTime != 0 || r.Strategy != "" {
		t.Errorf("unexpected metadata %v %q", r.ResponseTime, r.Strategy)
	}
	var timeWarn, strategyWarn bool
	for _, w := range r.Warnings {
		timeWarn = timeWarn || strings.Contains(w, "'search_time_seconds' is not a number")
		strategyWarn = strategyWarn || strings.Contains(w, "'strategy' is not a string")
	}
	if !timeWarn || !strategyWarn {
		t.Errorf("expected warnings for both fields, got %v", r.Warnings)
	}
}

func TestCheck_MalformedResponses(t *testing.T) {
	cases := map[string]string{
		"not json":       `nope`,
		"no results":     `{"topic":"x","error":"all search strategies failed"}`,
		"results scalar": `{"results":"oops"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			r := Check("x", []byte(raw), DefaultCriteria())
			if r.Success || len(r.Errors) != 1 {
				t.Errorf("expected exactly one error, got %v", r.Errors)
			}
		})
	}
}

func TestRunner_Run(t *testing.T) {
	var calls atomic.Int32
	runner := &Runner{
		Search: func(ctx context.Context, topic string) ([]byte, error) {
			calls.Add(1)
			if topic == "broken" {
				return nil, errors.New("connection refused")
			}
			return response(t, topic, goodResults()), nil
		},
		Interval:    5 * time.Millisecond,
		Concurrency: 2,
	}

	topics := []string{"renewable energy", "broken", "renewable energy"}
	reports, err := runner.Run(context.Background(), topics)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 3 || calls.Load() != 3 {
		t.Fatalf("expected 3 reports and 3 calls, got %d and %d", len(reports), calls.Load())
	}
	for i, r := range reports {
		if r.Topic != topics[i] {
			t.Errorf("report %d: expected topic %q, got %q", i, topics[i], r.Topic)
		}
	}
	if !reports[0].Success || reports[1].Success {
		t.Errorf("unexpected verdicts: %v %v", reports[0].Success, reports[1].Success)
	}
	if !strings.Contains(reports[1].Errors[0], "connection refused") {
		t.Errorf("expected search error in report, got %v", reports[1].Errors)
	}
}

func TestRunner_Interval(t *testing.T) {
	runner := &Runner{
		Search: func(ctx context.Context, topic string) ([]byte, error) {
			return response(t, topic, goodResults()), nil
		},
		Interval: 30 * time.Millisecond,
	}

	start := time.Now()
	if _, err := runner.Run(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("expected searches to be spaced by the interval, took %v", elapsed)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &Runner{
		Search: func(ctx context.Context, topic string) ([]byte, error) {
			cancel()
			return response(t, topic, goodResults()), nil
		},
		Interval: time.Hour,
	}

	if _, err := runner.Run(ctx, []string{"a", "b"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
