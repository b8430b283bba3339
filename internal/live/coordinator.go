package live

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quotedesk/internal/store"
	"github.com/quotedesk/pkg/config"
	"github.com/quotedesk/pkg/logger"
	"github.com/quotedesk/pkg/models"
)

// TickHandler receives every trade applied from the stream.
type TickHandler func(tick models.TradeTick)

// Reconciler runs a full merge pass for one symbol. The polling loop drives
// it so polled symbols get the same intraday, end-of-day and prediction
// refresh a seed pass does, not just a price patch.
type Reconciler interface {
	Poll(ctx context.Context, symbol string) *models.SymbolRecord
}

// subscribeMsg is the control message shape the stream expects.
type subscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// streamEnvelope is the inbound message shape. Trade batches arrive under
// type "trade"; anything else (ping, error) is ignored.
type streamEnvelope struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
		Time   int64   `json:"t"` // unix milliseconds
		Volume float64 `json:"v"`
	} `json:"data"`
}

// Coordinator owns the streaming connection lifecycle: dial, subscribe,
// read, reconnect with exponential backoff, plus the always-on polling
// loop that keeps watched symbols moving when the stream is quiet or down.
type Coordinator struct {
	streamCfg  *config.StreamConfig
	pollCfg    *config.PollConfig
	url        string
	dialer     Dialer
	reconciler Reconciler
	store      *store.Store
	logger     *logrus.Entry

	mu       sync.Mutex
	conn     StreamConn
	watching map[string]struct{}
	pinned   map[string]struct{}

	handlersMu sync.RWMutex
	handlers   []TickHandler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a live update coordinator. url must already carry
// any authentication query parameters the stream needs.
func NewCoordinator(
	streamCfg *config.StreamConfig,
	pollCfg *config.PollConfig,
	url string,
	dialer Dialer,
	reconciler Reconciler,
	st *store.Store,
	log *logrus.Logger,
) *Coordinator {
	return &Coordinator{
		streamCfg:  streamCfg,
		pollCfg:    pollCfg,
		url:        url,
		dialer:     dialer,
		reconciler: reconciler,
		store:      st,
		logger:     logger.WithComponent(log, "live"),
		watching:   make(map[string]struct{}),
		pinned:     make(map[string]struct{}),
	}
}

// RegisterTickHandler adds a fan-out sink for applied trades.
func (c *Coordinator) RegisterTickHandler(h TickHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Start launches the stream and polling loops.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.runStream(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.runPolling(ctx)
	}()

	c.logger.Info("Live update coordinator started")
}

// Stop cancels the loops and waits for them to exit.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("Live update coordinator stopped")
}

// Subscribe adds a symbol to the durable subscription set. Idempotent; the
// wire message is only sent while the stream is up, and every subscription
// is replayed after each reconnect.
func (c *Coordinator) Subscribe(symbol string) {
	key := store.Key(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.watching[key]; ok {
		return
	}
	c.watching[key] = struct{}{}
	c.sendLocked(subscribeMsg{Type: "subscribe", Symbol: key})
}

// Unsubscribe drops a symbol from the subscription set.
func (c *Coordinator) Unsubscribe(symbol string) {
	key := store.Key(symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.watching[key]; !ok {
		return
	}
	delete(c.watching, key)
	c.sendLocked(subscribeMsg{Type: "unsubscribe", Symbol: key})
}

// Pin marks a symbol as always polled regardless of the watchlist.
func (c *Coordinator) Pin(symbol string) {
	key := store.Key(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned[key] = struct{}{}
}

// Unpin removes a pinned symbol.
func (c *Coordinator) Unpin(symbol string) {
	key := store.Key(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pinned, key)
}

// Watchlist returns the sorted subscription set.
func (c *Coordinator) Watchlist() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.watching)
}

// Pins returns the sorted pinned set.
func (c *Coordinator) Pins() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.pinned)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// sendLocked writes a control message if the stream is up. Callers hold mu.
func (c *Coordinator) sendLocked(msg subscribeMsg) {
	if c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.WithError(err).WithField("symbol", msg.Symbol).Debug("Control message send failed")
	}
}

func (c *Coordinator) runStream(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"wait":    wait.String(),
			}).Info("Reconnecting to stream")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			c.logger.WithError(err).Warn("Stream dial failed")
			attempt++
			continue
		}

		// A successful connect resets the backoff window.
		attempt = 1

		c.mu.Lock()
		c.conn = conn
		for symbol := range c.watching {
			c.sendLocked(subscribeMsg{Type: "subscribe", Symbol: symbol})
		}
		c.mu.Unlock()

		c.store.SetLive(true)
		c.logger.Info("Stream connected")

		c.readLoop(ctx, conn)

		c.store.SetLive(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}
}

// readLoop consumes messages until the connection fails or ctx is done.
func (c *Coordinator) readLoop(ctx context.Context, conn StreamConn) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.WithError(err).Warn("Stream read failed")
			}
			return
		}

		var envelope streamEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			c.logger.WithError(err).Debug("Dropping malformed stream message")
			continue
		}
		if envelope.Type != "trade" {
			continue
		}

		for _, d := range envelope.Data {
			if d.Symbol == "" || d.Price <= 0 {
				continue
			}
			tick := models.TradeTick{
				Symbol:    d.Symbol,
				Price:     d.Price,
				Volume:    d.Volume,
				Timestamp: time.UnixMilli(d.Time),
			}
			if c.store.ApplyTrade(tick, c.streamCfg.SeriesCap) {
				c.notify(tick)
			}
		}
	}
}

func (c *Coordinator) notify(tick models.TradeTick) {
	c.handlersMu.RLock()
	handlers := make([]TickHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(tick)
	}
}

// backoff returns base*2^n capped at the configured maximum.
func (c *Coordinator) backoff(n int) time.Duration {
	wait := c.streamCfg.BackoffBase
	for i := 0; i < n; i++ {
		wait *= 2
		if wait >= c.streamCfg.BackoffMax {
			return c.streamCfg.BackoffMax
		}
	}
	if wait > c.streamCfg.BackoffMax {
		wait = c.streamCfg.BackoffMax
	}
	return wait
}

// runPolling reconciles the polled set on a fixed interval. Polling never
// stops while the process runs; per-symbol suppression skips anything the
// stream updated recently.
func (c *Coordinator) runPolling(ctx context.Context) {
	ticker := time.NewTicker(c.pollCfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce runs a full reconciliation for each target in turn. Sequential to
// bound provider load; a reconciliation absorbs its own provider failures, so
// one bad symbol never halts the sweep.
func (c *Coordinator) pollOnce(ctx context.Context) {
	for _, symbol := range c.pollTargets() {
		if ctx.Err() != nil {
			return
		}
		if c.streamFresh(symbol) {
			continue
		}

		c.reconciler.Poll(ctx, symbol)
	}
}

// pollTargets is the pinned set then the watchlist, deduplicated and capped.
func (c *Coordinator) pollTargets() []string {
	c.mu.Lock()
	pinned := sortedKeys(c.pinned)
	watching := sortedKeys(c.watching)
	c.mu.Unlock()

	seen := make(map[string]struct{}, len(pinned)+len(watching))
	targets := make([]string, 0, c.pollCfg.MaxSymbols)
	for _, symbol := range append(pinned, watching...) {
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		targets = append(targets, symbol)
		if len(targets) >= c.pollCfg.MaxSymbols {
			break
		}
	}
	return targets
}

// streamFresh reports whether the stream delivered a trade for the symbol
// within the recency window, making a poll redundant.
func (c *Coordinator) streamFresh(symbol string) bool {
	rec := c.store.Get(symbol)
	if rec == nil || rec.Freshness != models.FreshnessStream {
		return false
	}
	return time.Since(rec.LastUpdate) < c.streamCfg.TickRecency
}
