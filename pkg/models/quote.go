package models

import (
	"time"
)

// FreshnessSource identifies which mechanism last wrote price data for a symbol.
type FreshnessSource string

const (
	FreshnessSeed   FreshnessSource = "seed"
	FreshnessStream FreshnessSource = "stream"
	FreshnessPoll   FreshnessSource = "poll"
)

// Quote is the normalized snapshot shape all quote providers are adapted to.
// Pointer fields mean "unknown", never zero.
type Quote struct {
	Symbol        string   `json:"symbol"`
	Price         float64  `json:"price"`
	PreviousClose *float64 `json:"previous_close,omitempty"`
	Volume        *float64 `json:"volume,omitempty"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	DisplayName   string   `json:"display_name,omitempty"`
}

// PricePoint is one intraday observation.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// EODBar is one end-of-day closing price.
type EODBar struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// Prediction is the forecast derived from a price series.
type Prediction struct {
	PredictedPrice float64 `json:"predicted_price"`
	Confidence     float64 `json:"confidence"`
	Direction      string  `json:"direction"` // up | down
	Volatility     float64 `json:"volatility"`
}

// TradeTick is one inbound streaming trade event.
type TradeTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SymbolRecord is the canonical per-symbol record, owned by the store.
type SymbolRecord struct {
	Symbol        string          `json:"symbol"`
	DisplayName   string          `json:"display_name"`
	Price         float64         `json:"price"`
	PreviousClose *float64        `json:"previous_close,omitempty"`
	Change        float64         `json:"change"`
	ChangePercent float64         `json:"change_percent"`
	Volume        *float64        `json:"volume,omitempty"`
	MarketCap     *float64        `json:"market_cap,omitempty"`
	Series        []PricePoint    `json:"series"`
	Synthetic     bool            `json:"synthetic,omitempty"`
	EODSeries     []EODBar        `json:"eod_series,omitempty"`
	Prediction    *Prediction     `json:"prediction,omitempty"`
	LastUpdate    time.Time       `json:"last_update"`
	Freshness     FreshnessSource `json:"freshness"`
	Degraded      bool            `json:"degraded,omitempty"`
}

// Clone returns a deep copy so readers never share mutable state with the store.
func (r *SymbolRecord) Clone() *SymbolRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.PreviousClose != nil {
		v := *r.PreviousClose
		out.PreviousClose = &v
	}
	if r.Volume != nil {
		v := *r.Volume
		out.Volume = &v
	}
	if r.MarketCap != nil {
		v := *r.MarketCap
		out.MarketCap = &v
	}
	if r.Series != nil {
		out.Series = make([]PricePoint, len(r.Series))
		copy(out.Series, r.Series)
	}
	if r.EODSeries != nil {
		out.EODSeries = make([]EODBar, len(r.EODSeries))
		copy(out.EODSeries, r.EODSeries)
	}
	if r.Prediction != nil {
		p := *r.Prediction
		out.Prediction = &p
	}
	return &out
}

// SeriesPrices extracts the price column of the intraday series.
func (r *SymbolRecord) SeriesPrices() []float64 {
	prices := make([]float64, len(r.Series))
	for i, p := range r.Series {
		prices[i] = p.Price
	}
	return prices
}

// NewsArticle is one news item for a symbol.
type NewsArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// SearchResult is one symbol-search match.
type SearchResult struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// HealthStatus is the process-wide freshness signal exposed to consumers.
type HealthStatus struct {
	Streaming  bool      `json:"streaming"`
	Degraded   bool      `json:"degraded"`
	Symbols    int       `json:"symbols"`
	LastUpdate time.Time `json:"last_update"`
}

// Float64Ptr returns a pointer to v. Small helper for optional fields.
func Float64Ptr(v float64) *float64 { return &v }
