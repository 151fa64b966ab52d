package serp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/FranksOps/websearch/pkg/ddgs"
)

type fakeProvider struct {
	name    string
	results []Result
	err     error
	calls   atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestStatic(t *testing.T) {
	results, err := Static{}.Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}

	want := Result{
		Title:   "Result 2 for golang",
		URL:     "https://example.com/result2",
		Snippet: "This is a sample snippet for search result 2 related to golang.",
	}
	if results[1] != want {
		t.Errorf("expected %+v, got %+v", want, results[1])
	}

	again, _ := Static{}.Search(context.Background(), "golang", 10)
	for i := range results {
		if results[i] != again[i] {
			t.Errorf("expected deterministic output at %d", i)
		}
	}
}

func TestStatic_Limits(t *testing.T) {
	cases := map[int]int{-3: 0, 0: 0, 1: 1, 3: 3, 5: 5, 7: 5}
	for limit, want := range cases {
		results, err := Static{}.Search(context.Background(), "", limit)
		if err != nil {
			t.Fatalf("limit %d: unexpected error: %v", limit, err)
		}
		if len(results) != want {
			t.Errorf("limit %d: expected %d results, got %d", limit, want, len(results))
		}
		if results == nil {
			t.Errorf("limit %d: expected non-nil slice", limit)
		}
	}
}

type fakeText struct {
	results []ddgs.TextResult
	err     error
	gotMax  int
}

func (f *fakeText) Text(ctx context.Context, query string, maxResults int) ([]ddgs.TextResult, error) {
	f.gotMax = maxResults
	return f.results, f.err
}

func TestDuckDuckGo_Maps(t *testing.T) {
	client := &fakeText{results: []ddgs.TextResult{
		{Title: "Go", Href: "https://go.dev/", Body: "The Go language."},
		{Title: "Tour", Href: "https://go.dev/tour/"},
		{Title: "Extra", Href: "https://example.com/extra"},
	}}
	d := NewDuckDuckGo(client)

	results, err := d.Search(context.Background(), "go", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.gotMax != 2 {
		t.Errorf("expected maxResults 2, got %d", client.gotMax)
	}
	if len(results) != 2 {
		t.Fatalf("expected results capped at 2, got %d", len(results))
	}
	if results[0] != (Result{Title: "Go", URL: "https://go.dev/", Snippet: "The Go language."}) {
		t.Errorf("unexpected mapping: %+v", results[0])
	}
	if results[1].Snippet != "" {
		t.Errorf("expected missing body to map to empty snippet, got %q", results[1].Snippet)
	}
}

func TestDuckDuckGo_Error(t *testing.T) {
	d := NewDuckDuckGo(&fakeText{err: ddgs.ErrRateLimited})
	_, err := d.Search(context.Background(), "go", 5)
	if !errors.Is(err, ddgs.ErrRateLimited) {
		t.Errorf("expected wrapped ErrRateLimited, got %v", err)
	}
}

func TestDuckDuckGo_ZeroLimit(t *testing.T) {
	client := &fakeText{err: errors.New("should not be called")}
	results, err := NewDuckDuckGo(client).Search(context.Background(), "go", 0)
	if err != nil || len(results) != 0 {
		t.Errorf("expected empty result without calling the client, got %v %v", results, err)
	}
}

func TestFallback_PrimaryErrorUsesSecondary(t *testing.T) {
	primary := &fakeProvider{name: "google", err: errors.New("blocked")}
	secondary := &fakeProvider{name: "static", results: []Result{{Title: "placeholder"}}}
	f := &Fallback{Primary: primary, Secondary: secondary}

	var traced string
	ctx := WithTrace(context.Background(), &Trace{Fallback: func(from, to string, err error) {
		traced = fmt.Sprintf("%s->%s: %v", from, to, err)
	}})

	results, err := f.Search(ctx, "q", 5)
	if err != nil {
		t.Fatalf("expected fallback to hide the error, got %v", err)
	}
	if len(results) != 1 || results[0].Title != "placeholder" {
		t.Errorf("expected secondary results, got %+v", results)
	}
	if traced != "google->static: blocked" {
		t.Errorf("unexpected trace %q", traced)
	}
	if f.Name() != "google" {
		t.Errorf("expected name of primary, got %q", f.Name())
	}
}

func TestFallback_EmptyPrimaryIsKept(t *testing.T) {
	primary := &fakeProvider{name: "google", results: []Result{}}
	secondary := &fakeProvider{name: "static", results: []Result{{Title: "placeholder"}}}
	f := &Fallback{Primary: primary, Secondary: secondary}

	results, err := f.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty primary result to be returned as-is, got %d", len(results))
	}
	if n := secondary.calls.Load(); n != 0 {
		t.Errorf("expected secondary not to be called, got %d calls", n)
	}
}

func TestBreaker_PassesThrough(t *testing.T) {
	inner := &fakeProvider{name: "duckduckgo", results: []Result{{Title: "ok"}}}
	b := NewBreaker(inner, BreakerConfig{}, nil)

	results, err := b.Search(context.Background(), "q", 5)
	if err != nil || len(results) != 1 {
		t.Fatalf("expected pass through, got %v %v", results, err)
	}
	if b.Name() != "duckduckgo" {
		t.Errorf("expected inner name, got %q", b.Name())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	inner := &fakeProvider{name: "google", err: errors.New("provider error")}
	b := NewBreaker(inner, BreakerConfig{MaxFailures: 3}, nil)

	for i := 0; i < 3; i++ {
		_, err := b.Search(context.Background(), "q", 5)
		if err == nil || !strings.Contains(err.Error(), "provider error") {
			t.Fatalf("call %d: expected provider error, got %v", i, err)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", b.State())
	}

	_, err := b.Search(context.Background(), "q", 5)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if n := inner.calls.Load(); n != 3 {
		t.Errorf("expected provider not to be called while open, got %d calls", n)
	}
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	inner := &fakeProvider{name: "google", err: fmt.Errorf("fetch: %w", context.Canceled)}
	b := NewBreaker(inner, BreakerConfig{MaxFailures: 1}, nil)

	for i := 0; i < 3; i++ {
		_, _ = b.Search(context.Background(), "q", 5)
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("expected closed breaker, got %s", b.State())
	}
}
