package reconcile

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quotedesk/internal/forecast"
	"github.com/quotedesk/internal/provider"
	"github.com/quotedesk/internal/store"
	"github.com/quotedesk/pkg/config"
	"github.com/quotedesk/pkg/logger"
	"github.com/quotedesk/pkg/models"
)

const syntheticPoints = 30

// Handler receives the finished record after every reconciliation.
type Handler func(record *models.SymbolRecord)

// Engine merges quote, intraday and end-of-day data from heterogeneous
// providers into one coherent record per symbol. The primary quote source
// wins on every field it supplies; the secondary fills gaps; prior state
// and finally a flagged placeholder cover total provider failure.
type Engine struct {
	cfg       *config.ReconcileConfig
	primary   provider.QuoteProvider
	secondary provider.QuoteProvider
	intraday  provider.IntradayProvider
	eod       provider.EODProvider
	store     *store.Store
	logger    *logrus.Entry

	handlersMu sync.RWMutex
	handlers   []Handler
}

// NewEngine creates a reconciliation engine
func NewEngine(
	cfg *config.ReconcileConfig,
	primary provider.QuoteProvider,
	secondary provider.QuoteProvider,
	intraday provider.IntradayProvider,
	eod provider.EODProvider,
	st *store.Store,
	log *logrus.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		primary:   primary,
		secondary: secondary,
		intraday:  intraday,
		eod:       eod,
		store:     st,
		logger:    logger.WithComponent(log, "reconcile"),
	}
}

// RegisterHandler adds a fan-out sink invoked after each reconciliation.
func (e *Engine) RegisterHandler(h Handler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers = append(e.handlers, h)
}

func (e *Engine) notify(record *models.SymbolRecord) {
	e.handlersMu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.handlersMu.RUnlock()

	for _, h := range handlers {
		h(record.Clone())
	}
}

// Reconcile fetches all sources for a symbol concurrently, merges them and
// installs the result in the store. It always produces a record.
func (e *Engine) Reconcile(ctx context.Context, symbol string) *models.SymbolRecord {
	return e.run(ctx, symbol, models.FreshnessSeed)
}

// Poll is the polling-driven pass: the same full merge, with the record
// tagged so consumers can tell which mechanism last wrote it.
func (e *Engine) Poll(ctx context.Context, symbol string) *models.SymbolRecord {
	return e.run(ctx, symbol, models.FreshnessPoll)
}

func (e *Engine) run(ctx context.Context, symbol string, freshness models.FreshnessSource) *models.SymbolRecord {
	symbol = store.Key(symbol)
	log := e.logger.WithField("symbol", symbol)

	var (
		wg            sync.WaitGroup
		primaryQuote  *models.Quote
		fallbackQuote *models.Quote
		intraday      []models.PricePoint
		eodBars       []models.EODBar
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		q, err := e.primary.FetchQuote(ctx, symbol)
		if err != nil {
			log.WithError(err).Debug("Primary quote fetch failed")
			return
		}
		primaryQuote = q
	}()
	go func() {
		defer wg.Done()
		q, err := e.secondary.FetchQuote(ctx, symbol)
		if err != nil {
			log.WithError(err).Debug("Secondary quote fetch failed")
			return
		}
		fallbackQuote = q
	}()
	go func() {
		defer wg.Done()
		pts, err := e.intraday.FetchIntraday(ctx, symbol, e.cfg.Resolution, e.cfg.RangeMinutes)
		if err != nil {
			log.WithError(err).Debug("Intraday fetch failed")
			return
		}
		intraday = pts
	}()
	go func() {
		defer wg.Done()
		bars, err := e.eod.FetchEndOfDay(ctx, symbol)
		if err != nil {
			log.WithError(err).Debug("EOD fetch failed")
			return
		}
		eodBars = bars
	}()
	wg.Wait()

	// Wider retry window at a coarser resolution before giving up on
	// real intraday data.
	if len(intraday) == 0 {
		pts, err := e.intraday.FetchIntraday(ctx, symbol, e.cfg.RetryResolution, e.cfg.RetryRangeMinutes)
		if err != nil {
			log.WithError(err).Debug("Intraday retry fetch failed")
		} else {
			intraday = pts
		}
	}

	prior := e.store.Get(symbol)
	record := e.merge(symbol, freshness, primaryQuote, fallbackQuote, intraday, eodBars, prior, log)

	e.store.Replace(record)
	e.notify(record)

	return record.Clone()
}

// merge applies the priority policy across all fetched sources.
func (e *Engine) merge(
	symbol string,
	freshness models.FreshnessSource,
	primaryQuote, fallbackQuote *models.Quote,
	intraday []models.PricePoint,
	eodBars []models.EODBar,
	prior *models.SymbolRecord,
	log *logrus.Entry,
) *models.SymbolRecord {
	record := &models.SymbolRecord{
		Symbol:     symbol,
		LastUpdate: time.Now(),
		Freshness:  freshness,
	}

	quote := primaryQuote
	if quote == nil || quote.Price <= 0 {
		quote = fallbackQuote
	}

	switch {
	case quote != nil && quote.Price > 0:
		record.Price = quote.Price
		record.PreviousClose = quote.PreviousClose
		record.Volume = quote.Volume
		record.MarketCap = quote.MarketCap
		record.DisplayName = quote.DisplayName
	case prior != nil && prior.Price > 0:
		log.Warn("All quote sources failed, keeping prior price")
		record.Price = prior.Price
		record.PreviousClose = prior.PreviousClose
		record.Volume = prior.Volume
		record.MarketCap = prior.MarketCap
	default:
		log.Warn("All quote sources failed with no prior state, using placeholder")
		record.Price = e.cfg.FallbackPrice
		record.Degraded = true
		e.store.SetDegraded(true)
	}

	// Optional fields the winning quote did not carry fall through to the
	// runner-up, then to prior state.
	if fallbackQuote != nil {
		if record.PreviousClose == nil {
			record.PreviousClose = fallbackQuote.PreviousClose
		}
	}
	if prior != nil {
		if record.PreviousClose == nil {
			record.PreviousClose = prior.PreviousClose
		}
		if record.Volume == nil {
			record.Volume = prior.Volume
		}
		if record.MarketCap == nil {
			record.MarketCap = prior.MarketCap
		}
		if record.DisplayName == "" {
			record.DisplayName = prior.DisplayName
		}
	}
	if record.DisplayName == "" {
		record.DisplayName = symbol
	}

	if record.PreviousClose != nil && *record.PreviousClose != 0 {
		record.Change = record.Price - *record.PreviousClose
		record.ChangePercent = record.Change / *record.PreviousClose * 100
	} else if prior != nil {
		record.Change = prior.Change
		record.ChangePercent = prior.ChangePercent
	}

	switch {
	case len(intraday) > 0:
		record.Series = intraday
	case prior != nil && len(prior.Series) > 0 && !prior.Synthetic:
		record.Series = prior.Series
	default:
		record.Series = syntheticWalk(record.Price, time.Now())
		record.Synthetic = true
		log.Debug("No intraday data, generated synthetic series")
	}

	record.EODSeries = eodBars

	// End-of-day closes give the forecast a longer horizon when available.
	if closes := eodCloses(eodBars); len(closes) >= 5 {
		record.Prediction = forecast.Predict(closes)
	} else {
		record.Prediction = forecast.Predict(record.SeriesPrices())
	}

	return record
}

// syntheticWalk builds a plausible intraday series anchored on price when no
// real data could be had. The walk runs backwards from the anchor so the
// newest point equals the live price; steps stay within 0.5% of the anchor
// and never drop below 1.0.
func syntheticWalk(price float64, now time.Time) []models.PricePoint {
	points := make([]models.PricePoint, syntheticPoints)
	current := price
	for i := syntheticPoints - 1; i >= 0; i-- {
		points[i] = models.PricePoint{
			Timestamp: now.Add(-time.Duration(syntheticPoints-1-i) * time.Minute),
			Price:     current,
		}
		current += (rand.Float64() - 0.5) * 2 * 0.005 * price
		if current < 1.0 {
			current = 1.0
		}
	}
	return points
}

func eodCloses(bars []models.EODBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
