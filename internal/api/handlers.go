package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/quotedesk/internal/store"
	"github.com/quotedesk/pkg/models"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	models.HealthStatus
	Watchlist []string `json:"watchlist"`
	Pins      []string `json:"pins"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func symbolParam(r *http.Request) string {
	return store.Key(mux.Vars(r)["symbol"])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.Snapshot())
}

// handleGetQuote returns the record for a symbol, reconciling on demand for
// symbols the store has never seen.
func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	record := s.store.Get(symbol)
	if record == nil {
		record = s.engine.Reconcile(r.Context(), symbol)
	}

	respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleRefreshQuote(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	respondJSON(w, http.StatusOK, s.engine.Reconcile(r.Context(), symbol))
}

// handleGetNews serves symbol news from the primary provider, falling back
// to the secondary when the primary fails or comes back empty.
func (s *Server) handleGetNews(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	articles, err := s.news.FetchNews(r.Context(), symbol)
	if (err != nil || len(articles) == 0) && s.newsFallback != nil {
		articles, err = s.newsFallback.FetchNews(r.Context(), symbol)
	}
	if err != nil && len(articles) == 0 {
		respondError(w, http.StatusBadGateway, "news providers unavailable")
		return
	}
	if articles == nil {
		articles = []models.NewsArticle{}
	}

	respondJSON(w, http.StatusOK, articles)
}

// handleWatch adds a symbol to the watchlist and seeds its record.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	s.coordinator.Subscribe(symbol)
	record := s.store.Get(symbol)
	if record == nil {
		record = s.engine.Reconcile(r.Context(), symbol)
	}

	respondJSON(w, http.StatusCreated, record)
}

func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	s.coordinator.Unsubscribe(symbol)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	s.coordinator.Pin(symbol)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	s.coordinator.Unpin(symbol)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	results, err := s.search.Search(ctx, query)
	if err != nil {
		respondError(w, http.StatusBadGateway, "search provider unavailable")
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, statusResponse{
		HealthStatus: s.store.Health(),
		Watchlist:    s.coordinator.Watchlist(),
		Pins:         s.coordinator.Pins(),
	})
}
