package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotedesk/internal/reconcile"
	"github.com/quotedesk/internal/store"
	"github.com/quotedesk/pkg/config"
	"github.com/quotedesk/pkg/models"
)

type fakeConn struct {
	mu       sync.Mutex
	inbound  chan []byte
	written  []subscribeMsg
	closed   bool
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	payload, ok := <-f.inbound
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, payload, nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if msg, ok := v.(subscribeMsg); ok {
		f.written = append(f.written, msg)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

func (f *fakeConn) sent() []subscribeMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]subscribeMsg, len(f.written))
	copy(out, f.written)
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	errs  []error
	dials int
}

func (f *fakeDialer) Dial(ctx context.Context, url string) (StreamConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.dials
	f.dials++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.conns) {
		return f.conns[i], nil
	}
	return nil, errors.New("no more connections")
}

type stubReconciler struct {
	mu     sync.Mutex
	polled []string
}

func (s *stubReconciler) Poll(ctx context.Context, symbol string) *models.SymbolRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polled = append(s.polled, symbol)
	return &models.SymbolRecord{Symbol: symbol}
}

func (s *stubReconciler) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.polled))
	copy(out, s.polled)
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testStreamConfig() *config.StreamConfig {
	return &config.StreamConfig{
		URL:         "wss://example.test",
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
		SeriesCap:   80,
		TickRecency: 15 * time.Second,
	}
}

func testPollConfig() *config.PollConfig {
	return &config.PollConfig{Interval: time.Hour, MaxSymbols: 10}
}

func newTestCoordinator(dialer Dialer, rec Reconciler, st *store.Store) *Coordinator {
	if rec == nil {
		rec = &stubReconciler{}
	}
	return NewCoordinator(testStreamConfig(), testPollConfig(), "wss://example.test", dialer, rec, st, quietLogger())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCoordinator_Backoff(t *testing.T) {
	c := newTestCoordinator(&fakeDialer{}, nil, store.New(quietLogger()))

	assert.Equal(t, time.Second, c.backoff(0))
	assert.Equal(t, 2*time.Second, c.backoff(1))
	assert.Equal(t, 16*time.Second, c.backoff(4))
	assert.Equal(t, 30*time.Second, c.backoff(5))
	assert.Equal(t, 30*time.Second, c.backoff(20))
}

func TestCoordinator_SubscribeIdempotent(t *testing.T) {
	c := newTestCoordinator(&fakeDialer{}, nil, store.New(quietLogger()))

	c.Subscribe("aapl")
	c.Subscribe("AAPL")
	c.Subscribe("msft")

	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Watchlist())
}

func TestCoordinator_ResubscribesOnConnect(t *testing.T) {
	st := store.New(quietLogger())
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	c := newTestCoordinator(dialer, nil, st)

	c.Subscribe("AAPL")
	c.Subscribe("MSFT")

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, func() bool { return len(conn.sent()) == 2 })
	assert.True(t, st.Live())

	sent := conn.sent()
	symbols := map[string]bool{}
	for _, msg := range sent {
		assert.Equal(t, "subscribe", msg.Type)
		symbols[msg.Symbol] = true
	}
	assert.True(t, symbols["AAPL"])
	assert.True(t, symbols["MSFT"])
}

func TestCoordinator_AppliesTrades(t *testing.T) {
	st := store.New(quietLogger())
	st.Replace(&models.SymbolRecord{Symbol: "AAPL", Price: 150, PreviousClose: models.Float64Ptr(148)})

	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	c := newTestCoordinator(dialer, nil, st)

	var ticks []models.TradeTick
	var ticksMu sync.Mutex
	c.RegisterTickHandler(func(tick models.TradeTick) {
		ticksMu.Lock()
		ticks = append(ticks, tick)
		ticksMu.Unlock()
	})

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, func() bool { return st.Live() })

	conn.inbound <- []byte(`{"type":"trade","data":[{"s":"AAPL","p":151.5,"t":1756700000000,"v":120}]}`)

	waitFor(t, func() bool { return st.Get("AAPL").Price == 151.5 })

	rec := st.Get("AAPL")
	assert.Equal(t, models.FreshnessStream, rec.Freshness)
	assert.Equal(t, time.UnixMilli(1756700000000), rec.LastUpdate)

	ticksMu.Lock()
	defer ticksMu.Unlock()
	require.Len(t, ticks, 1)
	assert.Equal(t, "AAPL", ticks[0].Symbol)
}

func TestCoordinator_DropsMalformedAndNonTrade(t *testing.T) {
	st := store.New(quietLogger())
	st.Replace(&models.SymbolRecord{Symbol: "AAPL", Price: 150})

	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	c := newTestCoordinator(dialer, nil, st)

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, func() bool { return st.Live() })

	conn.inbound <- []byte(`not json at all`)
	conn.inbound <- []byte(`{"type":"ping"}`)
	conn.inbound <- []byte(`{"type":"trade","data":[{"s":"","p":5,"t":1}]}`)
	conn.inbound <- []byte(`{"type":"trade","data":[{"s":"AAPL","p":152,"t":1756700000000}]}`)

	waitFor(t, func() bool { return st.Get("AAPL").Price == 152 })
	// Only the valid trade landed.
	assert.Len(t, st.Get("AAPL").Series, 1)
}

func TestCoordinator_ReconnectsAfterDrop(t *testing.T) {
	st := store.New(quietLogger())
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}

	c := newTestCoordinator(dialer, nil, st)
	c.streamCfg.BackoffBase = time.Millisecond
	c.Subscribe("AAPL")

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, func() bool { return len(first.sent()) == 1 })

	// Drop the first connection; the coordinator must redial and replay
	// the subscription set.
	first.Close()

	waitFor(t, func() bool { return len(second.sent()) == 1 })
	assert.Equal(t, "AAPL", second.sent()[0].Symbol)
	assert.True(t, st.Live())
}

func TestCoordinator_UnsubscribeWhileDisconnected(t *testing.T) {
	st := store.New(quietLogger())
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	c := newTestCoordinator(dialer, nil, st)

	// Both changes happen before any connection exists.
	c.Subscribe("AAPL")
	c.Subscribe("MSFT")
	c.Unsubscribe("MSFT")

	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, func() bool { return len(conn.sent()) == 1 })
	assert.Equal(t, "AAPL", conn.sent()[0].Symbol)
	assert.Equal(t, []string{"AAPL"}, c.Watchlist())
}

func TestCoordinator_PollTargetsCapAndDedup(t *testing.T) {
	c := newTestCoordinator(&fakeDialer{}, nil, store.New(quietLogger()))
	c.pollCfg.MaxSymbols = 3

	c.Pin("ZZZ")
	c.Pin("AAA")
	c.Subscribe("AAA")
	c.Subscribe("BBB")
	c.Subscribe("CCC")
	c.Subscribe("DDD")

	// Pinned symbols come first, duplicates collapse, the cap truncates.
	assert.Equal(t, []string{"AAA", "ZZZ", "BBB"}, c.pollTargets())
}

func TestCoordinator_PollSuppressedByFreshStreamTick(t *testing.T) {
	st := store.New(quietLogger())
	st.Replace(&models.SymbolRecord{Symbol: "AAPL", Price: 150})
	st.Replace(&models.SymbolRecord{Symbol: "MSFT", Price: 300})

	// AAPL just got a stream tick; MSFT is stale.
	st.ApplyTrade(models.TradeTick{Symbol: "AAPL", Price: 151, Timestamp: time.Now()}, 80)

	rec := &stubReconciler{}
	c := newTestCoordinator(&fakeDialer{}, rec, st)
	c.Subscribe("AAPL")
	c.Subscribe("MSFT")

	c.pollOnce(context.Background())

	assert.Equal(t, []string{"MSFT"}, rec.seen())
}

func TestCoordinator_PollSweepCoversAllTargets(t *testing.T) {
	st := store.New(quietLogger())
	rec := &stubReconciler{}
	c := newTestCoordinator(&fakeDialer{}, rec, st)

	c.Pin("NVDA")
	c.Subscribe("AAPL")
	c.Subscribe("MSFT")

	c.pollOnce(context.Background())

	assert.Equal(t, []string{"NVDA", "AAPL", "MSFT"}, rec.seen())
}

// A polled symbol gets the same full merge a seed pass does: fresh price,
// end-of-day history and a recomputed forecast, not just a price patch.
// This covers pinned symbols that are not on the watchlist, which no other
// refresh path touches.
func TestCoordinator_PollRunsFullReconciliation(t *testing.T) {
	log := quietLogger()
	st := store.New(log)

	stalePoints := make([]models.PricePoint, 5)
	for i := range stalePoints {
		stalePoints[i] = models.PricePoint{
			Timestamp: time.Now().Add(-time.Duration(5-i) * time.Minute),
			Price:     100 + float64(i),
		}
	}
	st.Replace(&models.SymbolRecord{
		Symbol:     "NVDA",
		Price:      100,
		Series:     stalePoints,
		Prediction: &models.Prediction{PredictedPrice: 1},
	})

	engine := reconcile.NewEngine(
		&config.ReconcileConfig{
			Resolution:        "5",
			RangeMinutes:      180,
			RetryResolution:   "15",
			RetryRangeMinutes: 360,
			FallbackPrice:     100,
		},
		&pollQuoteStub{quote: &models.Quote{Price: 500, PreviousClose: models.Float64Ptr(495)}},
		&pollQuoteStub{err: errors.New("down")},
		&pollIntradayStub{},
		&pollEODStub{bars: []models.EODBar{
			{Date: "2026-08-25", Close: 496},
			{Date: "2026-08-26", Close: 497},
			{Date: "2026-08-27", Close: 498},
			{Date: "2026-08-28", Close: 499},
			{Date: "2026-08-29", Close: 500},
		}},
		st,
		log,
	)

	c := newTestCoordinator(&fakeDialer{}, engine, st)
	c.Pin("NVDA") // pinned but not watched

	c.pollOnce(context.Background())

	updated := st.Get("NVDA")
	require.NotNil(t, updated)
	assert.Equal(t, 500.0, updated.Price)
	assert.Equal(t, models.FreshnessPoll, updated.Freshness)
	assert.Len(t, updated.EODSeries, 5)
	require.NotNil(t, updated.Prediction)
	assert.NotEqual(t, 1.0, updated.Prediction.PredictedPrice)
}

type pollQuoteStub struct {
	quote *models.Quote
	err   error
}

func (p *pollQuoteStub) Name() string { return "stub" }

func (p *pollQuoteStub) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if p.err != nil {
		return nil, p.err
	}
	q := *p.quote
	q.Symbol = symbol
	return &q, nil
}

type pollIntradayStub struct{ points []models.PricePoint }

func (p *pollIntradayStub) FetchIntraday(ctx context.Context, symbol, resolution string, rangeMinutes int) ([]models.PricePoint, error) {
	return p.points, nil
}

type pollEODStub struct{ bars []models.EODBar }

func (p *pollEODStub) FetchEndOfDay(ctx context.Context, symbol string) ([]models.EODBar, error) {
	return p.bars, nil
}
