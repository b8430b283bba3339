package provider

import (
	"context"

	"github.com/quotedesk/pkg/models"
)

// QuoteProvider fetches the current snapshot quote for a symbol.
type QuoteProvider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// IntradayProvider fetches time-bucketed price points within a session.
// An empty slice with a nil error means the provider had no data for the
// requested window.
type IntradayProvider interface {
	FetchIntraday(ctx context.Context, symbol, resolution string, rangeMinutes int) ([]models.PricePoint, error)
}

// EODProvider fetches one closing price per historical trading day.
type EODProvider interface {
	FetchEndOfDay(ctx context.Context, symbol string) ([]models.EODBar, error)
}

// NewsProvider fetches recent news articles for a symbol or query.
type NewsProvider interface {
	FetchNews(ctx context.Context, query string) ([]models.NewsArticle, error)
}

// SearchProvider resolves a free-text query to candidate symbols.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}
