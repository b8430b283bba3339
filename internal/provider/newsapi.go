package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quotedesk/pkg/config"
	"github.com/quotedesk/pkg/logger"
	"github.com/quotedesk/pkg/models"
)

// NewsAPIClient handles NewsAPI.org interactions. It serves as the
// fallback news source when the primary provider returns nothing.
type NewsAPIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	pageSize   int
	logger     *logrus.Entry
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		URLToImage  string `json:"urlToImage"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// NewNewsAPIClient creates a new NewsAPI client
func NewNewsAPIClient(cfg *config.NewsAPIConfig, log *logrus.Logger) *NewsAPIClient {
	return &NewsAPIClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		pageSize: cfg.PageSize,
		logger:   logger.WithComponent(log, "newsapi"),
	}
}

// FetchNews fetches recent English-language articles matching the query
func (c *NewsAPIClient) FetchNews(ctx context.Context, query string) ([]models.NewsArticle, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("newsapi key not configured")
	}

	endpoint := fmt.Sprintf("%s/everything?q=%s&sortBy=publishedAt&pageSize=%d&language=en&apiKey=%s",
		c.baseURL, url.QueryEscape(query), c.pageSize, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var raw newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if raw.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %q", raw.Status)
	}

	articles := make([]models.NewsArticle, 0, len(raw.Articles))
	for _, a := range raw.Articles {
		published, err := time.Parse(time.RFC3339, a.PublishedAt)
		if err != nil {
			published = time.Time{}
		}
		articles = append(articles, models.NewsArticle{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			ImageURL:    a.URLToImage,
			Source:      a.Source.Name,
			PublishedAt: published,
		})
	}

	return articles, nil
}
