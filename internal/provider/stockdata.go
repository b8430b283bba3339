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

// StockDataClient handles StockData.org API interactions for quotes,
// end-of-day history and symbol news.
type StockDataClient struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	logger     *logrus.Entry
}

// stockDataQuote is the raw per-ticker quote shape. Optional fields come
// back as JSON null, so pointers keep "unknown" distinguishable from zero.
type stockDataQuote struct {
	Ticker        string   `json:"ticker"`
	Name          string   `json:"name"`
	Price         *float64 `json:"price"`
	PreviousClose *float64 `json:"previous_close_price"`
	Volume        *float64 `json:"volume"`
	MarketCap     *float64 `json:"market_cap"`
}

type stockDataQuoteResponse struct {
	Data map[string]stockDataQuote `json:"data"`
}

type stockDataEODResponse struct {
	Data []struct {
		Date  string  `json:"date"`
		Close float64 `json:"close"`
	} `json:"data"`
}

type stockDataNewsResponse struct {
	Data []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		ImageURL    string `json:"image_url"`
		Source      string `json:"source"`
		PublishedAt string `json:"published_at"`
	} `json:"data"`
}

// NewStockDataClient creates a new StockData.org client
func NewStockDataClient(cfg *config.StockDataConfig, log *logrus.Logger) *StockDataClient {
	return &StockDataClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		logger:   logger.WithComponent(log, "stockdata"),
	}
}

// Name returns the provider name
func (c *StockDataClient) Name() string { return "stockdata" }

// FetchQuote fetches the current quote for a symbol
func (c *StockDataClient) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if c.apiToken == "" {
		return nil, fmt.Errorf("stockdata API token not configured")
	}

	endpoint := fmt.Sprintf("%s/data/quote?symbols=%s&api_token=%s&key_by_ticker=true",
		c.baseURL, url.QueryEscape(symbol), c.apiToken)

	var raw stockDataQuoteResponse
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	entry, ok := raw.Data[symbol]
	if !ok || entry.Price == nil {
		return nil, fmt.Errorf("no quote data for %s", symbol)
	}

	return &models.Quote{
		Symbol:        symbol,
		Price:         *entry.Price,
		PreviousClose: entry.PreviousClose,
		Volume:        entry.Volume,
		MarketCap:     entry.MarketCap,
		DisplayName:   entry.Name,
	}, nil
}

// FetchEndOfDay fetches the historical end-of-day series for a symbol
func (c *StockDataClient) FetchEndOfDay(ctx context.Context, symbol string) ([]models.EODBar, error) {
	if c.apiToken == "" {
		return nil, fmt.Errorf("stockdata API token not configured")
	}

	endpoint := fmt.Sprintf("%s/data/eod?symbols=%s&api_token=%s",
		c.baseURL, url.QueryEscape(symbol), c.apiToken)

	var raw stockDataEODResponse
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	bars := make([]models.EODBar, 0, len(raw.Data))
	for _, d := range raw.Data {
		bars = append(bars, models.EODBar{Date: d.Date, Close: d.Close})
	}

	return bars, nil
}

// FetchNews fetches recent entity-filtered news for a symbol
func (c *StockDataClient) FetchNews(ctx context.Context, symbol string) ([]models.NewsArticle, error) {
	if c.apiToken == "" {
		return nil, fmt.Errorf("stockdata API token not configured")
	}

	endpoint := fmt.Sprintf("%s/news/all?symbols=%s&filter_entities=true&limit=10&api_token=%s",
		c.baseURL, url.QueryEscape(symbol), c.apiToken)

	var raw stockDataNewsResponse
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	articles := make([]models.NewsArticle, 0, len(raw.Data))
	for _, d := range raw.Data {
		published, err := time.Parse(time.RFC3339, d.PublishedAt)
		if err != nil {
			published = time.Time{}
		}
		articles = append(articles, models.NewsArticle{
			Title:       d.Title,
			Description: d.Description,
			URL:         d.URL,
			ImageURL:    d.ImageURL,
			Source:      d.Source,
			PublishedAt: published,
		})
	}

	return articles, nil
}

// getJSON performs a GET request and decodes the JSON body into dest
func (c *StockDataClient) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
