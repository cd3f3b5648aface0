package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var searcherTracer = otel.Tracer("deepscout/research/searcher")

// SearchResult is one normalized hit from the search capability
type SearchResult struct {
	Title         string
	URL           string
	Author        string
	PublishedDate string
	Text          string
}

// Document is one fetched page content
type Document struct {
	URL           string
	Title         string
	Text          string
	Author        string
	PublishedDate string
}

// SearchProvider is the web-search capability used by the searcher
type SearchProvider interface {
	Search(ctx context.Context, query, searchType string, count int, dateRange *DateRange) ([]SearchResult, error)
	FetchContents(ctx context.Context, urls []string, maxChars int) ([]Document, error)
}

// ProviderFailure tags an expected failure from the search capability.
// The searcher treats these as non-fatal and continues.
type ProviderFailure struct {
	Op  string
	Err error
}

func (e *ProviderFailure) Error() string {
	return fmt.Sprintf("search provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderFailure) Unwrap() error { return e.Err }

// ContentExtractor is the fallback fetcher used when the provider cannot
// return contents for a URL.
type ContentExtractor interface {
	Extract(ctx context.Context, url string, maxChars int) (string, error)
}

// SearchMetrics receives per-query and per-source counters from the
// search loop. *telemetry.Telemetry satisfies it.
type SearchMetrics interface {
	SearchQuery(ok bool)
	SourceDiscovered()
}

// SearcherOptions bounds the search loop
type SearcherOptions struct {
	ResultsPerQuery int
	MaxContentFetch int
	MaxContentChars int
	SnippetChars    int
}

func (o SearcherOptions) withDefaults() SearcherOptions {
	if o.ResultsPerQuery <= 0 {
		o.ResultsPerQuery = 5
	}
	if o.MaxContentFetch <= 0 {
		o.MaxContentFetch = 8
	}
	if o.MaxContentChars <= 0 {
		o.MaxContentChars = 4000
	}
	if o.SnippetChars <= 0 {
		o.SnippetChars = 300
	}
	return o
}

// Searcher executes a search plan against the search capability
type Searcher struct {
	provider  SearchProvider
	extractor ContentExtractor
	metrics   SearchMetrics
	opts      SearcherOptions
	logger    *log.Logger
}

// NewSearcher creates a new searcher. extractor and metrics may be nil, in
// which case no fallback fetch is attempted and no counters are recorded.
func NewSearcher(provider SearchProvider, extractor ContentExtractor, metrics SearchMetrics, opts SearcherOptions) *Searcher {
	return &Searcher{
		provider:  provider,
		extractor: extractor,
		metrics:   metrics,
		opts:      opts.withDefaults(),
		logger:    log.New(log.Writer(), "[SEARCHER] ", log.LstdFlags),
	}
}

// Run executes the plan's queries in order, recording deduplicated sources
// into set and emitting a source event on first sight of each URL. It then
// fetches content for the first MaxContentFetch sources and returns the
// fetched texts in source order. Individual query and fetch failures are
// non-fatal.
func (s *Searcher) Run(ctx context.Context, plan SearchPlan, set *SourceSet, emit func(Event)) ([]string, error) {
	ctx, span := searcherTracer.Start(ctx, "searcher.run")
	defer span.End()
	span.SetAttributes(attribute.Int("queries", len(plan.Queries)))

	for i, query := range plan.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := s.provider.Search(ctx, query, plan.SearchTypes[i], s.opts.ResultsPerQuery, plan.DateRange)
		if err != nil {
			if s.metrics != nil {
				s.metrics.SearchQuery(false)
			}
			var pf *ProviderFailure
			if !errors.As(err, &pf) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "search adapter fault")
				return nil, err
			}
			s.logger.Printf("Warning: query %d/%d failed: %v, continuing", i+1, len(plan.Queries), err)
			emit(statusEvent(StageSearching, fmt.Sprintf("Search %d of %d failed, continuing", i+1, len(plan.Queries))))
			continue
		}
		if s.metrics != nil {
			s.metrics.SearchQuery(true)
		}
		for _, r := range results {
			if r.URL == "" {
				continue
			}
			src, added := set.Add(r.Title, r.URL, r.Author, r.PublishedDate)
			if added {
				if s.metrics != nil {
					s.metrics.SourceDiscovered()
				}
				emit(sourceEvent(*src))
			}
		}
	}

	contents := s.fetchContents(ctx, set, emit)
	span.SetAttributes(attribute.Int("sources", set.Len()), attribute.Int("documents", len(contents)))
	return contents, nil
}

func (s *Searcher) fetchContents(ctx context.Context, set *SourceSet, emit func(Event)) []string {
	sources := set.List()
	n := s.opts.MaxContentFetch
	if n > len(sources) {
		n = len(sources)
	}
	if n == 0 {
		return nil
	}

	urls := make([]string, 0, n)
	for _, src := range sources[:n] {
		urls = append(urls, src.URL)
	}

	fetched := make(map[string]string, n)
	docs, err := s.provider.FetchContents(ctx, urls, s.opts.MaxContentChars)
	if err != nil {
		s.logger.Printf("Warning: content fetch failed: %v, proceeding without full text", err)
		emit(statusEvent(StageSearching, "Content fetch failed, proceeding with search snippets"))
	} else {
		for _, d := range docs {
			if d.Text != "" {
				fetched[d.URL] = truncate(d.Text, s.opts.MaxContentChars)
			}
		}
	}

	// Fallback to direct extraction for URLs the provider returned nothing for.
	if s.extractor != nil {
		for _, url := range urls {
			if _, ok := fetched[url]; ok {
				continue
			}
			text, err := s.extractor.Extract(ctx, url, s.opts.MaxContentChars)
			if err != nil || text == "" {
				continue
			}
			fetched[url] = text
		}
	}

	var contents []string
	for _, url := range urls {
		text, ok := fetched[url]
		if !ok {
			continue
		}
		set.Enrich(url, truncate(text, s.opts.SnippetChars))
		contents = append(contents, text)
	}
	return contents
}

// truncate caps s at max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
