package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quotedesk/pkg/logger"
	"github.com/quotedesk/pkg/models"
)

// Store is the single source of truth for per-symbol records and the
// process-wide freshness flags. All access goes through its methods; readers
// receive deep copies so nothing outside the store mutates shared state.
type Store struct {
	mu      sync.RWMutex
	records map[string]*models.SymbolRecord

	degraded bool
	live     bool

	logger *logrus.Entry
}

// New creates an empty store
func New(log *logrus.Logger) *Store {
	return &Store{
		records: make(map[string]*models.SymbolRecord),
		logger:  logger.WithComponent(log, "store"),
	}
}

// Key normalizes a symbol to its canonical uppercase form.
func Key(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Replace installs a whole record for a symbol, overwriting any prior state.
// Last writer wins when reconciliations race.
func (s *Store) Replace(record *models.SymbolRecord) {
	if record == nil {
		return
	}
	key := Key(record.Symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	record.Symbol = key
	s.records[key] = record.Clone()
}

// ApplyTrade folds one streaming trade into an existing record. Unknown
// symbols are ignored; a trade never creates a record. A tick carrying an
// older timestamp than the series tail is dropped so the series stays
// time-ascending. The intraday series is appended and evicted from the
// front past seriesCap points. Change and change percent are recomputed
// only when the previous close is known.
func (s *Store) ApplyTrade(tick models.TradeTick, seriesCap int) bool {
	key := Key(tick.Symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return false
	}

	if n := len(rec.Series); n > 0 && tick.Timestamp.Before(rec.Series[n-1].Timestamp) {
		return false
	}

	rec.Price = tick.Price
	rec.Series = append(rec.Series, models.PricePoint{
		Timestamp: tick.Timestamp,
		Price:     tick.Price,
	})
	if seriesCap > 0 && len(rec.Series) > seriesCap {
		rec.Series = rec.Series[len(rec.Series)-seriesCap:]
	}

	if rec.PreviousClose != nil && *rec.PreviousClose != 0 {
		rec.Change = tick.Price - *rec.PreviousClose
		rec.ChangePercent = rec.Change / *rec.PreviousClose * 100
	}

	rec.LastUpdate = tick.Timestamp
	rec.Freshness = models.FreshnessStream

	return true
}

// Get returns a deep copy of the record for a symbol, or nil if absent.
func (s *Store) Get(symbol string) *models.SymbolRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[Key(symbol)]
	if !ok {
		return nil
	}
	return rec.Clone()
}

// Snapshot returns deep copies of all records, sorted by symbol.
func (s *Store) Snapshot() []*models.SymbolRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.SymbolRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns the sorted set of tracked symbols.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.records))
	for key := range s.records {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Remove deletes the record for a symbol.
func (s *Store) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, Key(symbol))
}

// SetDegraded flips the process-wide degraded flag. Callers only ever raise
// it; it stays raised for the life of the process.
func (s *Store) SetDegraded(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v && !s.degraded {
		s.logger.Warn("Entering degraded mode")
	}
	s.degraded = v
}

// Degraded reports whether any symbol has fallen back to placeholder data.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// SetLive records whether the streaming connection is currently up.
func (s *Store) SetLive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = v
}

// Live reports whether the streaming connection is currently up.
func (s *Store) Live() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Health summarizes the store for the status endpoint.
func (s *Store) Health() models.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	for _, rec := range s.records {
		if rec.LastUpdate.After(latest) {
			latest = rec.LastUpdate
		}
	}

	return models.HealthStatus{
		Streaming:  s.live,
		Degraded:   s.degraded,
		Symbols:    len(s.records),
		LastUpdate: latest,
	}
}
