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

// FinnhubClient handles Finnhub REST API interactions for quotes,
// intraday candles and symbol search.
type FinnhubClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logrus.Entry
}

// finnhubQuote is the raw /quote response shape.
type finnhubQuote struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
}

// finnhubCandles is the raw /stock/candle response shape.
type finnhubCandles struct {
	Status     string    `json:"s"`
	Timestamps []int64   `json:"t"`
	Closes     []float64 `json:"c"`
}

// finnhubSearch is the raw /search response shape.
type finnhubSearch struct {
	Result []struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
		Type        string `json:"type"`
	} `json:"result"`
}

// NewFinnhubClient creates a new Finnhub client
func NewFinnhubClient(cfg *config.FinnhubConfig, log *logrus.Logger) *FinnhubClient {
	return &FinnhubClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  logger.WithComponent(log, "finnhub"),
	}
}

// Name returns the provider name
func (c *FinnhubClient) Name() string { return "finnhub" }

// FetchQuote fetches the current quote for a symbol
func (c *FinnhubClient) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("finnhub API key not configured")
	}

	endpoint := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		c.baseURL, url.QueryEscape(symbol), c.apiKey)

	var raw finnhubQuote
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	quote := &models.Quote{
		Symbol: symbol,
		Price:  raw.Current,
	}
	if raw.PreviousClose > 0 {
		quote.PreviousClose = models.Float64Ptr(raw.PreviousClose)
	}

	return quote, nil
}

// FetchIntraday fetches close prices for the trailing rangeMinutes at the
// given candle resolution. Returns an empty slice when the provider reports
// no data for the window.
func (c *FinnhubClient) FetchIntraday(ctx context.Context, symbol, resolution string, rangeMinutes int) ([]models.PricePoint, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("finnhub API key not configured")
	}

	now := time.Now()
	from := now.Add(-time.Duration(rangeMinutes) * time.Minute)
	endpoint := fmt.Sprintf("%s/stock/candle?symbol=%s&resolution=%s&from=%d&to=%d&token=%s",
		c.baseURL, url.QueryEscape(symbol), resolution, from.Unix(), now.Unix(), c.apiKey)

	var raw finnhubCandles
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	if raw.Status != "ok" {
		c.logger.WithFields(logrus.Fields{
			"symbol":     symbol,
			"resolution": resolution,
			"status":     raw.Status,
		}).Debug("No candle data")
		return nil, nil
	}

	n := len(raw.Timestamps)
	if len(raw.Closes) < n {
		n = len(raw.Closes)
	}
	points := make([]models.PricePoint, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, models.PricePoint{
			Timestamp: time.Unix(raw.Timestamps[i], 0),
			Price:     raw.Closes[i],
		})
	}

	return points, nil
}

// Search resolves a free-text query to candidate symbols
func (c *FinnhubClient) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	if query == "" {
		return nil, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("finnhub API key not configured")
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&token=%s",
		c.baseURL, url.QueryEscape(query), c.apiKey)

	var raw finnhubSearch
	if err := c.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(raw.Result))
	for _, r := range raw.Result {
		results = append(results, models.SearchResult{
			Symbol:      r.Symbol,
			Description: r.Description,
			Type:        r.Type,
		})
	}

	return results, nil
}

// getJSON performs a GET request and decodes the JSON body into dest
func (c *FinnhubClient) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
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
