package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/quotedesk/internal/live"
	"github.com/quotedesk/internal/provider"
	"github.com/quotedesk/internal/reconcile"
	"github.com/quotedesk/internal/store"
	"github.com/quotedesk/pkg/config"
	"github.com/quotedesk/pkg/logger"
)

// Server exposes the quote desk over HTTP.
type Server struct {
	cfg          *config.Config
	store        *store.Store
	engine       *reconcile.Engine
	coordinator  *live.Coordinator
	news         provider.NewsProvider
	newsFallback provider.NewsProvider
	search       provider.SearchProvider
	logger       *logrus.Logger

	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates the HTTP server and wires up all routes.
func NewServer(
	cfg *config.Config,
	st *store.Store,
	engine *reconcile.Engine,
	coordinator *live.Coordinator,
	news provider.NewsProvider,
	newsFallback provider.NewsProvider,
	search provider.SearchProvider,
	log *logrus.Logger,
) *Server {
	s := &Server{
		cfg:          cfg,
		store:        st,
		engine:       engine,
		coordinator:  coordinator,
		news:         news,
		newsFallback: newsFallback,
		search:       search,
		logger:       log,
		router:       mux.NewRouter(),
	}

	s.setupRoutes()

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	s.httpServer = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      corsHandler(logger.Middleware(log)(s.router)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/quotes", s.handleListQuotes).Methods(http.MethodGet)
	api.HandleFunc("/quotes/{symbol}", s.handleGetQuote).Methods(http.MethodGet)
	api.HandleFunc("/quotes/{symbol}/refresh", s.handleRefreshQuote).Methods(http.MethodPost)
	api.HandleFunc("/quotes/{symbol}/news", s.handleGetNews).Methods(http.MethodGet)
	api.HandleFunc("/watch/{symbol}", s.handleWatch).Methods(http.MethodPost)
	api.HandleFunc("/watch/{symbol}", s.handleUnwatch).Methods(http.MethodDelete)
	api.HandleFunc("/pins/{symbol}", s.handlePin).Methods(http.MethodPost)
	api.HandleFunc("/pins/{symbol}", s.handleUnpin).Methods(http.MethodDelete)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
}

// Start begins serving. Blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the route table, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}
