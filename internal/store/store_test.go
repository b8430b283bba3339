package store

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotedesk/pkg/models"
)

func newTestStore() *Store {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(logger)
}

func seedRecord(s *Store, symbol string, price float64, prevClose *float64) {
	s.Replace(&models.SymbolRecord{
		Symbol:        symbol,
		Price:         price,
		PreviousClose: prevClose,
		Series: []models.PricePoint{
			{Timestamp: time.Now().Add(-time.Minute), Price: price},
		},
		LastUpdate: time.Now().Add(-time.Minute),
		Freshness:  models.FreshnessSeed,
	})
}

func TestStore_ReplaceAndGet(t *testing.T) {
	s := newTestStore()
	seedRecord(s, "aapl", 150, models.Float64Ptr(148))

	rec := s.Get("AAPL")
	require.NotNil(t, rec)
	assert.Equal(t, "AAPL", rec.Symbol)
	assert.Equal(t, 150.0, rec.Price)

	// Lookup is case-insensitive.
	assert.NotNil(t, s.Get("aapl"))
	assert.Nil(t, s.Get("MSFT"))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := newTestStore()
	seedRecord(s, "AAPL", 150, nil)

	rec := s.Get("AAPL")
	rec.Price = 1
	rec.Series[0].Price = 1

	fresh := s.Get("AAPL")
	assert.Equal(t, 150.0, fresh.Price)
	assert.Equal(t, 150.0, fresh.Series[0].Price)
}

func TestStore_ApplyTrade(t *testing.T) {
	s := newTestStore()
	seedRecord(s, "AAPL", 150, models.Float64Ptr(148))

	now := time.Now()
	applied := s.ApplyTrade(models.TradeTick{
		Symbol:    "AAPL",
		Price:     151,
		Timestamp: now,
	}, 80)
	require.True(t, applied)

	rec := s.Get("AAPL")
	assert.Equal(t, 151.0, rec.Price)
	assert.Len(t, rec.Series, 2)
	assert.InDelta(t, 3.0, rec.Change, 1e-9)
	assert.InDelta(t, 3.0/148*100, rec.ChangePercent, 1e-9)
	assert.Equal(t, models.FreshnessStream, rec.Freshness)
	assert.Equal(t, now, rec.LastUpdate)
}

func TestStore_ApplyTradeUnknownSymbol(t *testing.T) {
	s := newTestStore()

	applied := s.ApplyTrade(models.TradeTick{Symbol: "GHOST", Price: 1, Timestamp: time.Now()}, 80)
	assert.False(t, applied)
	assert.Nil(t, s.Get("GHOST"))
}

func TestStore_ApplyTradeWithoutPreviousClose(t *testing.T) {
	s := newTestStore()
	seedRecord(s, "AAPL", 150, nil)

	s.ApplyTrade(models.TradeTick{Symbol: "AAPL", Price: 160, Timestamp: time.Now()}, 80)

	// Change fields stay untouched when the previous close is unknown.
	rec := s.Get("AAPL")
	assert.Equal(t, 160.0, rec.Price)
	assert.Equal(t, 0.0, rec.Change)
	assert.Equal(t, 0.0, rec.ChangePercent)
}

func TestStore_ApplyTradeOutOfOrder(t *testing.T) {
	s := newTestStore()
	seedRecord(s, "AAPL", 150, models.Float64Ptr(148))

	now := time.Now()
	require.True(t, s.ApplyTrade(models.TradeTick{Symbol: "AAPL", Price: 151, Timestamp: now}, 80))

	// A tick older than the series tail is dropped outright.
	applied := s.ApplyTrade(models.TradeTick{Symbol: "AAPL", Price: 140, Timestamp: now.Add(-time.Second)}, 80)
	assert.False(t, applied)

	rec := s.Get("AAPL")
	assert.Equal(t, 151.0, rec.Price)
	assert.Len(t, rec.Series, 2)
	assert.Equal(t, now, rec.LastUpdate)

	// Equal timestamps are still accepted.
	assert.True(t, s.ApplyTrade(models.TradeTick{Symbol: "AAPL", Price: 152, Timestamp: now}, 80))
	assert.Equal(t, 152.0, s.Get("AAPL").Price)
}

func TestStore_SeriesEviction(t *testing.T) {
	s := newTestStore()
	seedRecord(s, "AAPL", 150, nil)

	for i := 0; i < 100; i++ {
		s.ApplyTrade(models.TradeTick{
			Symbol:    "AAPL",
			Price:     150 + float64(i),
			Timestamp: time.Now(),
		}, 80)
	}

	rec := s.Get("AAPL")
	assert.Len(t, rec.Series, 80)
	// The newest point survives eviction.
	assert.Equal(t, 249.0, rec.Series[len(rec.Series)-1].Price)
}

func TestStore_SnapshotSorted(t *testing.T) {
	s := newTestStore()
	seedRecord(s, "TSLA", 200, nil)
	seedRecord(s, "AAPL", 150, nil)
	seedRecord(s, "MSFT", 300, nil)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "AAPL", snap[0].Symbol)
	assert.Equal(t, "MSFT", snap[1].Symbol)
	assert.Equal(t, "TSLA", snap[2].Symbol)

	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, s.Symbols())
}

func TestStore_Flags(t *testing.T) {
	s := newTestStore()

	assert.False(t, s.Degraded())
	s.SetDegraded(true)
	assert.True(t, s.Degraded())

	assert.False(t, s.Live())
	s.SetLive(true)
	assert.True(t, s.Live())

	h := s.Health()
	assert.True(t, h.Streaming)
	assert.True(t, h.Degraded)
	assert.Equal(t, 0, h.Symbols)
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore()
	seedRecord(s, "AAPL", 150, nil)

	s.Remove("aapl")
	assert.Nil(t, s.Get("AAPL"))
}
