package app

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quotedesk/internal/api"
	"github.com/quotedesk/internal/cache"
	"github.com/quotedesk/internal/live"
	"github.com/quotedesk/internal/messaging"
	"github.com/quotedesk/internal/provider"
	"github.com/quotedesk/internal/reconcile"
	"github.com/quotedesk/internal/store"
	"github.com/quotedesk/pkg/config"
	"github.com/quotedesk/pkg/models"
)

// App wires the store, providers, reconciliation engine, live coordinator
// and HTTP server together.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc

	store       *store.Store
	finnhub     *provider.FinnhubClient
	stockData   *provider.StockDataClient
	newsAPI     *provider.NewsAPIClient
	engine      *reconcile.Engine
	coordinator *live.Coordinator
	redisCache  *cache.RedisCache
	natsClient  *messaging.NATSPublisher
	apiServer   *api.Server
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize builds all application components
func (a *App) Initialize() error {
	a.store = store.New(a.logger)

	a.finnhub = provider.NewFinnhubClient(&a.cfg.Finnhub, a.logger)
	a.stockData = provider.NewStockDataClient(&a.cfg.StockData, a.logger)
	a.newsAPI = provider.NewNewsAPIClient(&a.cfg.NewsAPI, a.logger)

	a.engine = reconcile.NewEngine(
		&a.cfg.Reconcile,
		a.stockData,
		a.finnhub,
		a.finnhub,
		a.stockData,
		a.store,
		a.logger,
	)

	a.coordinator = live.NewCoordinator(
		&a.cfg.Stream,
		&a.cfg.Poll,
		a.streamURL(),
		live.NewWSDialer(),
		a.engine,
		a.store,
		a.logger,
	)

	if err := a.initializeCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := a.initializeMessaging(); err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}

	a.apiServer = api.NewServer(
		a.cfg,
		a.store,
		a.engine,
		a.coordinator,
		a.stockData,
		a.newsAPI,
		a.finnhub,
		a.logger,
	)

	return nil
}

// streamURL appends the API key to the configured stream endpoint.
func (a *App) streamURL() string {
	if a.cfg.Finnhub.APIKey == "" {
		return a.cfg.Stream.URL
	}
	return fmt.Sprintf("%s?token=%s", a.cfg.Stream.URL, url.QueryEscape(a.cfg.Finnhub.APIKey))
}

func (a *App) initializeCache() error {
	if !a.cfg.Redis.Enabled {
		return nil
	}

	redisCache, err := cache.NewRedisCache(a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.redisCache = redisCache

	// Every reconciled record lands in the cache for other processes.
	a.engine.RegisterHandler(func(record *models.SymbolRecord) {
		ctx, cancel := context.WithTimeout(a.ctx, 3*time.Second)
		defer cancel()
		if err := a.redisCache.SetRecord(ctx, record); err != nil {
			a.logger.WithError(err).WithField("symbol", record.Symbol).Debug("Cache write failed")
		}
	})

	return nil
}

func (a *App) initializeMessaging() error {
	if !a.cfg.NATS.Enabled {
		return nil
	}

	natsClient, err := messaging.NewNATSPublisher(&a.cfg.NATS, a.logger)
	if err != nil {
		return err
	}
	a.natsClient = natsClient

	a.engine.RegisterHandler(func(record *models.SymbolRecord) {
		if err := a.natsClient.PublishRecord(record); err != nil {
			a.logger.WithError(err).WithField("symbol", record.Symbol).Debug("Record publish failed")
		}
	})
	a.coordinator.RegisterTickHandler(func(tick models.TradeTick) {
		if err := a.natsClient.PublishTick(tick); err != nil {
			a.logger.WithError(err).WithField("symbol", tick.Symbol).Debug("Tick publish failed")
		}
	})

	return nil
}

// Start seeds the watchlist, opens the stream and begins serving HTTP.
// Blocks until the HTTP listener stops.
func (a *App) Start() error {
	a.SeedWatchlist(a.ctx)

	for _, symbol := range a.cfg.Watch.Symbols {
		a.coordinator.Subscribe(symbol)
	}
	a.coordinator.Start(a.ctx)

	go a.runRefreshLoop()

	return a.apiServer.Start()
}

// SeedWatchlist reconciles every configured watchlist symbol once,
// one goroutine per symbol.
func (a *App) SeedWatchlist(ctx context.Context) {
	var wg sync.WaitGroup
	for _, symbol := range a.cfg.Watch.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			record := a.engine.Reconcile(ctx, symbol)
			a.logger.WithFields(logrus.Fields{
				"symbol": record.Symbol,
				"price":  record.Price,
			}).Info("Seeded symbol")
		}(symbol)
	}
	wg.Wait()
}

// runRefreshLoop re-reconciles the watchlist on a fixed interval. This is
// the batch pass that refreshes predictions, which streaming ticks never
// touch.
func (a *App) runRefreshLoop() {
	ticker := time.NewTicker(a.cfg.Reconcile.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range a.coordinator.Watchlist() {
				if a.ctx.Err() != nil {
					return
				}
				a.engine.Reconcile(a.ctx, symbol)
			}
		}
	}
}

// Stop shuts everything down gracefully
func (a *App) Stop() error {
	a.logger.Info("Stopping application")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.apiServer != nil {
		if err := a.apiServer.Stop(shutdownCtx); err != nil {
			a.logger.WithError(err).Error("HTTP server shutdown error")
		}
	}

	if a.coordinator != nil {
		a.coordinator.Stop()
	}

	a.cancel()

	if a.natsClient != nil {
		a.natsClient.Close()
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.WithError(err).Error("Redis close error")
		}
	}

	a.logger.Info("Application stopped")
	return nil
}
