package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

type stubSearch struct {
	results   map[string][]SearchResult
	failures  map[string]error
	documents []Document
	fetchErr  error
	fetched   [][]string
}

func (s *stubSearch) Search(ctx context.Context, query, searchType string, count int, dateRange *DateRange) ([]SearchResult, error) {
	if err, ok := s.failures[query]; ok {
		return nil, err
	}
	return s.results[query], nil
}

func (s *stubSearch) FetchContents(ctx context.Context, urls []string, maxChars int) ([]Document, error) {
	s.fetched = append(s.fetched, urls)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.documents, nil
}

func collectEvents() (func(Event), *[]Event) {
	var events []Event
	return func(ev Event) { events = append(events, ev) }, &events
}

func sourceEvents(events []Event) []SourceData {
	var out []SourceData
	for _, ev := range events {
		if ev.Type == EventSource {
			out = append(out, ev.Data.(SourceData))
		}
	}
	return out
}

func TestSearcherDeduplicatesAcrossQueries(t *testing.T) {
	provider := &stubSearch{
		results: map[string][]SearchResult{
			"q1": {
				{Title: "A", URL: "https://a.example"},
				{Title: "B", URL: "https://b.example"},
			},
			"q2": {
				{Title: "A again", URL: "https://a.example"},
				{Title: "C", URL: "https://c.example"},
			},
		},
	}
	searcher := NewSearcher(provider, nil, nil, SearcherOptions{})
	set := NewSourceSet()
	emit, events := collectEvents()

	plan := SearchPlan{Queries: []string{"q1", "q2"}, SearchTypes: []string{"neural", "neural"}}
	if _, err := searcher.Run(context.Background(), plan, set, emit); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if set.Len() != 3 {
		t.Fatalf("expected 3 deduplicated sources, got %d", set.Len())
	}
	srcs := sourceEvents(*events)
	if len(srcs) != 3 {
		t.Fatalf("expected exactly one source event per unique URL, got %d", len(srcs))
	}
	if srcs[0].Source.URL != "https://a.example" || srcs[2].Source.URL != "https://c.example" {
		t.Fatalf("discovery order not preserved: %+v", srcs)
	}
}

func TestSearcherQueryFailureIsNonFatal(t *testing.T) {
	provider := &stubSearch{
		results: map[string][]SearchResult{
			"ok1": {{Title: "A", URL: "https://a.example"}},
			"ok2": {{Title: "B", URL: "https://b.example"}},
			"ok3": {{Title: "C", URL: "https://c.example"}},
		},
		failures: map[string]error{
			"bad": &ProviderFailure{Op: "search", Err: errors.New("rate limited")},
		},
	}
	searcher := NewSearcher(provider, nil, nil, SearcherOptions{})
	set := NewSourceSet()
	emit, events := collectEvents()

	plan := SearchPlan{
		Queries:     []string{"ok1", "bad", "ok2", "ok3"},
		SearchTypes: []string{"neural", "neural", "keyword", "neural"},
	}
	if _, err := searcher.Run(context.Background(), plan, set, emit); err != nil {
		t.Fatalf("expected non-fatal failure, got %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("expected sources from the 3 successful queries, got %d", set.Len())
	}

	sawWarning := false
	for _, ev := range *events {
		if ev.Type == EventStatus {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Fatalf("expected a status event about the failed query")
	}
}

func TestSearcherAdapterFaultIsFatal(t *testing.T) {
	provider := &stubSearch{
		failures: map[string]error{"q": errors.New("nil pointer somewhere")},
	}
	searcher := NewSearcher(provider, nil, nil, SearcherOptions{})
	emit, _ := collectEvents()

	plan := SearchPlan{Queries: []string{"q"}, SearchTypes: []string{"neural"}}
	if _, err := searcher.Run(context.Background(), plan, NewSourceSet(), emit); err == nil {
		t.Fatalf("expected untagged fault to abort the stage")
	}
}

func TestSearcherFetchEnrichesSnippetsInPlace(t *testing.T) {
	provider := &stubSearch{
		results: map[string][]SearchResult{
			"q": {
				{Title: "A", URL: "https://a.example"},
				{Title: "B", URL: "https://b.example"},
			},
		},
		documents: []Document{
			{URL: "https://a.example", Text: "full text for a"},
		},
	}
	searcher := NewSearcher(provider, nil, nil, SearcherOptions{SnippetChars: 5})
	set := NewSourceSet()
	emit, _ := collectEvents()

	plan := SearchPlan{Queries: []string{"q"}, SearchTypes: []string{"neural"}}
	contents, err := searcher.Run(context.Background(), plan, set, emit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(contents) != 1 || contents[0] != "full text for a" {
		t.Fatalf("unexpected contents: %v", contents)
	}

	sources := set.List()
	if len(sources) != 2 {
		t.Fatalf("enrichment must not add or remove sources, got %d", len(sources))
	}
	if sources[0].URL != "https://a.example" {
		t.Fatalf("enrichment must not reorder sources")
	}
	if sources[0].Snippet != "full " {
		t.Fatalf("expected truncated snippet, got %q", sources[0].Snippet)
	}
	if sources[1].Snippet != "" {
		t.Fatalf("unfetched source should keep empty snippet")
	}
}

func TestSearcherFetchFailureIsNonFatal(t *testing.T) {
	provider := &stubSearch{
		results: map[string][]SearchResult{
			"q": {{Title: "A", URL: "https://a.example"}},
		},
		fetchErr: &ProviderFailure{Op: "fetchContents", Err: errors.New("timeout")},
	}
	searcher := NewSearcher(provider, nil, nil, SearcherOptions{})
	emit, _ := collectEvents()

	plan := SearchPlan{Queries: []string{"q"}, SearchTypes: []string{"neural"}}
	contents, err := searcher.Run(context.Background(), plan, NewSourceSet(), emit)
	if err != nil {
		t.Fatalf("fetch failure must be non-fatal, got %v", err)
	}
	if len(contents) != 0 {
		t.Fatalf("expected no contents, got %d", len(contents))
	}
}

type stubExtractor struct {
	texts map[string]string
}

func (s *stubExtractor) Extract(ctx context.Context, url string, maxChars int) (string, error) {
	text, ok := s.texts[url]
	if !ok {
		return "", fmt.Errorf("no content for %s", url)
	}
	return text, nil
}

func TestSearcherFallsBackToExtractor(t *testing.T) {
	provider := &stubSearch{
		results: map[string][]SearchResult{
			"q": {{Title: "A", URL: "https://a.example"}},
		},
		fetchErr: &ProviderFailure{Op: "fetchContents", Err: errors.New("down")},
	}
	extractor := &stubExtractor{texts: map[string]string{"https://a.example": "extracted text"}}
	searcher := NewSearcher(provider, extractor, nil, SearcherOptions{})
	set := NewSourceSet()
	emit, _ := collectEvents()

	plan := SearchPlan{Queries: []string{"q"}, SearchTypes: []string{"neural"}}
	contents, err := searcher.Run(context.Background(), plan, set, emit)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(contents) != 1 || contents[0] != "extracted text" {
		t.Fatalf("expected fallback content, got %v", contents)
	}
	if set.List()[0].Snippet == "" {
		t.Fatalf("fallback content should still enrich the snippet")
	}
}

type stubMetrics struct {
	queriesOK     int
	queriesFailed int
	sources       int
}

func (m *stubMetrics) SearchQuery(ok bool) {
	if ok {
		m.queriesOK++
	} else {
		m.queriesFailed++
	}
}

func (m *stubMetrics) SourceDiscovered() { m.sources++ }

func TestSearcherRecordsQueryAndSourceMetrics(t *testing.T) {
	provider := &stubSearch{
		results: map[string][]SearchResult{
			"ok1": {
				{Title: "A", URL: "https://a.example"},
				{Title: "B", URL: "https://b.example"},
			},
			"ok2": {{Title: "A again", URL: "https://a.example"}},
		},
		failures: map[string]error{
			"bad": &ProviderFailure{Op: "search", Err: errors.New("rate limited")},
		},
	}
	metrics := &stubMetrics{}
	searcher := NewSearcher(provider, nil, metrics, SearcherOptions{})
	emit, _ := collectEvents()

	plan := SearchPlan{
		Queries:     []string{"ok1", "bad", "ok2"},
		SearchTypes: []string{"neural", "neural", "keyword"},
	}
	if _, err := searcher.Run(context.Background(), plan, NewSourceSet(), emit); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if metrics.queriesOK != 2 || metrics.queriesFailed != 1 {
		t.Fatalf("expected 2 ok / 1 failed queries, got %d/%d", metrics.queriesOK, metrics.queriesFailed)
	}
	if metrics.sources != 2 {
		t.Fatalf("duplicates must not count as discoveries, got %d", metrics.sources)
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	s := "héllo wörld"
	for max := 1; max <= len(s); max++ {
		got := truncate(s, max)
		if len(got) > max {
			t.Fatalf("max %d: result too long (%d bytes)", max, len(got))
		}
		if !utf8.ValidString(got) {
			t.Fatalf("max %d: invalid UTF-8 %q", max, got)
		}
		if !strings.HasPrefix(s, got) {
			t.Fatalf("max %d: %q is not a prefix of input", max, got)
		}
	}
	if truncate(s, len(s)) != s {
		t.Fatalf("generous cap must not modify the string")
	}
	if truncate(s, 0) != s {
		t.Fatalf("zero cap disables truncation")
	}
}

func TestSearcherCapsContentFetch(t *testing.T) {
	var results []SearchResult
	for i := 0; i < 12; i++ {
		results = append(results, SearchResult{Title: fmt.Sprintf("S%d", i), URL: fmt.Sprintf("https://s%d.example", i)})
	}
	provider := &stubSearch{results: map[string][]SearchResult{"q": results}}
	searcher := NewSearcher(provider, nil, nil, SearcherOptions{MaxContentFetch: 8})
	emit, _ := collectEvents()

	plan := SearchPlan{Queries: []string{"q"}, SearchTypes: []string{"neural"}}
	if _, err := searcher.Run(context.Background(), plan, NewSourceSet(), emit); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(provider.fetched) != 1 || len(provider.fetched[0]) != 8 {
		t.Fatalf("expected one fetch of 8 urls, got %v", provider.fetched)
	}
}
