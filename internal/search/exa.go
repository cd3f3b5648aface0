package search

import (
	"context"
	"log"
	"strings"

	"github.com/mohammad-safakhou/deepscout/config"
	"github.com/mohammad-safakhou/deepscout/internal/research"
)

// Client wraps the hosted search API behind the research.SearchProvider
// contract. Provider failures are returned tagged; the caller decides
// whether they are fatal.
type Client struct {
	cfg    config.SearchConfig
	http   *HTTPClient
	logger *log.Logger
}

func NewClient(cfg config.SearchConfig) *Client {
	return &Client{
		cfg:    cfg,
		http:   NewHTTPClient(cfg.Timeout, cfg.MaxRetries, cfg.RetryBackoff),
		logger: log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"x-api-key":    c.cfg.APIKey,
		"Content-Type": "application/json",
	}
}

type searchRequest struct {
	Query              string `json:"query"`
	Type               string `json:"type,omitempty"`
	NumResults         int    `json:"numResults,omitempty"`
	StartPublishedDate string `json:"startPublishedDate,omitempty"`
	EndPublishedDate   string `json:"endPublishedDate,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Author        string `json:"author"`
		PublishedDate string `json:"publishedDate"`
		Text          string `json:"text"`
	} `json:"results"`
}

// Search issues one query and normalizes the hits.
func (c *Client) Search(ctx context.Context, query, searchType string, count int, dateRange *research.DateRange) ([]research.SearchResult, error) {
	req := searchRequest{
		Query:      query,
		Type:       searchType,
		NumResults: count,
	}
	if dateRange != nil {
		req.StartPublishedDate = dateRange.StartDate
		req.EndPublishedDate = dateRange.EndDate
	}

	var resp searchResponse
	if err := c.http.DoJSON(ctx, "POST", c.cfg.Endpoint+"/search", c.headers(), req, &resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &research.ProviderFailure{Op: "search", Err: err}
	}

	results := make([]research.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		results = append(results, research.SearchResult{
			Title:         r.Title,
			URL:           r.URL,
			Author:        r.Author,
			PublishedDate: r.PublishedDate,
			Text:          r.Text,
		})
	}
	return results, nil
}

type contentsRequest struct {
	URLs []string     `json:"urls"`
	Text contentsText `json:"text"`
}

type contentsText struct {
	MaxCharacters int `json:"maxCharacters,omitempty"`
}

type contentsResponse struct {
	Results []struct {
		URL           string `json:"url"`
		Title         string `json:"title"`
		Text          string `json:"text"`
		Author        string `json:"author"`
		PublishedDate string `json:"publishedDate"`
	} `json:"results"`
}

// FetchContents retrieves full text for a batch of URLs.
func (c *Client) FetchContents(ctx context.Context, urls []string, maxChars int) ([]research.Document, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	req := contentsRequest{URLs: urls, Text: contentsText{MaxCharacters: maxChars}}

	var resp contentsResponse
	if err := c.http.DoJSON(ctx, "POST", c.cfg.Endpoint+"/contents", c.headers(), req, &resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &research.ProviderFailure{Op: "fetchContents", Err: err}
	}

	docs := make([]research.Document, 0, len(resp.Results))
	for _, r := range resp.Results {
		docs = append(docs, research.Document{
			URL:           r.URL,
			Title:         r.Title,
			Text:          r.Text,
			Author:        r.Author,
			PublishedDate: r.PublishedDate,
		})
	}
	return docs, nil
}
