// Package discovery finds and scrapes candidate web pages for an entity.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/edinburgh-finds/backend/pkg/logger"
)

type Client struct {
	serpAPIKey   string
	httpClient   *http.Client
	maxPageChars int
}

// Source is one discovered page: the search hit plus its scraped text.
type Source struct {
	Title   string
	URL     string
	Snippet string
	Content string
}

func NewClient(serpAPIKey string, timeout time.Duration, maxPageChars int) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if maxPageChars == 0 {
		maxPageChars = 8000
	}

	return &Client{
		serpAPIKey: serpAPIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxPageChars: maxPageChars,
	}
}

// Discover searches for authoritative pages about the entity and scrapes each
// hit. A page that fails to scrape degrades to its search snippet rather than
// dropping out of the result set.
func (c *Client) Discover(ctx context.Context, entityName, entityType string, maxResults int) ([]Source, error) {
	query := buildQuery(entityName, entityType)
	logger.Info("Discovering sources", zap.String("query", query))

	if c.serpAPIKey != "" {
		return c.searchWithSerpAPI(ctx, query, maxResults)
	}

	return c.searchWithGoogle(ctx, query, maxResults)
}

func buildQuery(entityName, entityType string) string {
	return fmt.Sprintf("%q Edinburgh %s contact opening hours", entityName, entityType)
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string, maxResults int) ([]Source, error) {
	baseURL := "https://serpapi.com/search"
	params := url.Values{}
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("num", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s?%s", baseURL, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searchResp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}

	err = json.Unmarshal(body, &searchResp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]Source, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		content, err := c.ScrapeContent(ctx, r.Link)
		if err != nil {
			logger.Warn("Failed to scrape content", zap.String("url", r.Link), zap.Error(err))
			content = r.Snippet
		}

		results = append(results, Source{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Content: content,
		})
	}

	logger.Info("Source discovery completed", zap.Int("results", len(results)))

	return results, nil
}

func (c *Client) searchWithGoogle(ctx context.Context, query string, maxResults int) ([]Source, error) {
	searchURL := fmt.Sprintf("https://www.google.com/search?q=%s&num=%d", url.QueryEscape(query), maxResults)

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := make([]Source, 0)
	doc.Find("div.g").Each(func(i int, s *goquery.Selection) {
		if i >= maxResults {
			return
		}

		title := s.Find("h3").Text()
		link, _ := s.Find("a").Attr("href")
		snippet := s.Find("div.VwiC3b").Text()

		if title != "" && link != "" {
			content, err := c.ScrapeContent(ctx, link)
			if err != nil {
				content = snippet
			}

			results = append(results, Source{
				Title:   title,
				URL:     link,
				Snippet: snippet,
				Content: content,
			})
		}
	})

	logger.Info("Google search completed", zap.Int("results", len(results)))

	return results, nil
}

// ScrapeContent fetches a page and strips it down to visible body text,
// capped so a single page cannot blow the extraction prompt budget.
func (c *Client) ScrapeContent(ctx context.Context, urlStr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := doc.Find("body").Text()
	text = strings.Join(strings.Fields(text), " ")

	if len(text) > c.maxPageChars {
		text = text[:c.maxPageChars]
	}

	return text, nil
}
