// Package fetch extracts readable article text from a URL. It is the
// fallback used when the search provider cannot return page contents.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/deepscout/config"
)

type Extractor struct {
	cfg    config.FetchConfig
	client *http.Client
	logger *log.Logger
}

func NewExtractor(cfg config.FetchConfig) *Extractor {
	return &Extractor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.New(log.Writer(), "[FETCH] ", log.LstdFlags),
	}
}

// Extract downloads the page and returns its readable main text, capped
// at maxChars.
func (e *Extractor) Extract(ctx context.Context, rawURL string, maxChars int) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("invalid url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), mustParseURL(rawURL))
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", rawURL, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, nil
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
