package marketdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/praveen686/omlaxmiquant/internal/book"
	"github.com/praveen686/omlaxmiquant/internal/config"
	"github.com/praveen686/omlaxmiquant/internal/numeric"
	"github.com/praveen686/omlaxmiquant/internal/observability"
	"github.com/praveen686/omlaxmiquant/internal/queue"
	"github.com/praveen686/omlaxmiquant/internal/schema"
	"github.com/praveen686/omlaxmiquant/internal/symbol"
	"github.com/praveen686/omlaxmiquant/internal/transport"
	"github.com/praveen686/omlaxmiquant/lib/async"
)

// Config wires the consumer's collaborators.
type Config struct {
	REST     *transport.RESTClient
	RESTBase string
	WSBase   string
	Catalog  *symbol.Catalog
	Updates  *queue.SPSC[schema.MarketUpdate]

	SnapshotDepth    int
	SnapshotInterval time.Duration
	Reconnect        config.ReconnectConfig
}

// Consumer owns one depth and one trade stream per symbol, reconciles
// books against REST snapshots, and serialises them into the
// market-update queue. The queue has a single producer: every emission
// funnels through one internal goroutine.
type Consumer struct {
	cfg Config

	books map[string]*book.Book
	syncs map[string]*bookSync

	tapMu sync.RWMutex
	tap   map[schema.TickerID]numeric.Price

	emitCh  chan []schema.MarketUpdate
	refresh chan struct{}

	pool *async.Pool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      conc.WaitGroup
	clients []*transport.WSClient
}

// NewConsumer builds a consumer over the catalog's configured symbols.
func NewConsumer(cfg Config) *Consumer {
	if cfg.SnapshotDepth < 1 {
		cfg.SnapshotDepth = 1000
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 30 * time.Second
	}
	c := &Consumer{
		cfg:     cfg,
		books:   make(map[string]*book.Book),
		syncs:   make(map[string]*bookSync),
		tap:     make(map[schema.TickerID]numeric.Price),
		emitCh:  make(chan []schema.MarketUpdate, 256),
		refresh: make(chan struct{}, 1),
	}
	for _, sym := range cfg.Catalog.Symbols() {
		id, ok := cfg.Catalog.Ticker(sym)
		if !ok {
			continue
		}
		c.books[sym] = book.New(id)
		c.syncs[sym] = &bookSync{}
	}
	workers := len(c.books)
	if workers > 4 {
		workers = 4
	}
	if workers < 1 {
		workers = 1
	}
	c.pool, _ = async.NewPool(workers, len(c.books)+1)
	return c
}

// Start opens the WebSocket streams and launches the refresher and the
// queue emitter. Books start invalid; the refresher performs the initial
// snapshot sync.
func (c *Consumer) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Go(c.emitLoop)
	c.wg.Go(c.refreshLoop)

	for sym := range c.books {
		sym := sym
		lower := strings.ToLower(sym)

		depth := transport.NewWSClient(c.ctx, transport.WSConfig{
			Name: lower + "@depth",
			Endpoint: func(context.Context) (string, error) {
				return c.cfg.WSBase + "/ws/" + lower + "@depth", nil
			},
			OnMessage: func(payload []byte) { c.handleDepth(sym, payload) },
			OnState: func(connected bool) {
				if !connected {
					c.books[sym].MarkDirty()
					c.nudgeRefresher()
				}
			},
			InitialDelay: c.cfg.Reconnect.InitialDelay,
			MaxDelay:     c.cfg.Reconnect.MaxDelay,
			MaxAttempts:  c.cfg.Reconnect.MaxAttempts,
		})
		trade := transport.NewWSClient(c.ctx, transport.WSConfig{
			Name: lower + "@trade",
			Endpoint: func(context.Context) (string, error) {
				return c.cfg.WSBase + "/ws/" + lower + "@trade", nil
			},
			OnMessage:    func(payload []byte) { c.handleTrade(sym, payload) },
			InitialDelay: c.cfg.Reconnect.InitialDelay,
			MaxDelay:     c.cfg.Reconnect.MaxDelay,
			MaxAttempts:  c.cfg.Reconnect.MaxAttempts,
		})
		c.clients = append(c.clients, depth, trade)
		depth.Start()
		trade.Start()
	}
	c.nudgeRefresher()
}

// Stop tears down streams and joins the worker goroutines.
func (c *Consumer) Stop() {
	for _, client := range c.clients {
		client.Stop()
	}
	c.cancel()
	c.wg.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.pool.Shutdown(shutdownCtx)
}

// Book exposes the live book for a ticker.
func (c *Consumer) Book(id schema.TickerID) (*book.Book, bool) {
	sym, ok := c.cfg.Catalog.Symbol(id)
	if !ok {
		return nil, false
	}
	b, ok := c.books[sym]
	return b, ok
}

// LastPrice reads the price tap: the most recent trade price for a ticker.
// It never consumes market-update queue entries.
func (c *Consumer) LastPrice(id schema.TickerID) (numeric.Price, bool) {
	c.tapMu.RLock()
	defer c.tapMu.RUnlock()
	p, ok := c.tap[id]
	return p, ok
}

func (c *Consumer) handleDepth(sym string, payload []byte) {
	ev, err := parseDepthEvent(payload)
	if err != nil {
		observability.Log().Warn("depth event dropped",
			observability.F("symbol", sym),
			observability.F("error", err.Error()))
		return
	}
	st := c.syncs[sym]
	if st.offer(ev) {
		return
	}
	b := c.books[sym]
	result, err := c.applyDepthChecked(sym, b, ev)
	if err != nil {
		observability.Log().Warn("depth diff rejected",
			observability.F("symbol", sym),
			observability.F("error", err.Error()))
		c.nudgeRefresher()
		return
	}
	if result == book.Applied {
		c.emitBook(b)
	}
}

// applyDepth parses and applies one diff; gaps surface as errors so the
// resync path can restart.
func (c *Consumer) applyDepth(sym string, b *book.Book, ev depthEvent) error {
	_, err := c.applyDepthChecked(sym, b, ev)
	return err
}

func (c *Consumer) applyDepthChecked(sym string, b *book.Book, ev depthEvent) (book.ApplyResult, error) {
	bids, err := parseLevels(ev.Bids)
	if err != nil {
		return book.RejectedInvalid, err
	}
	asks, err := parseLevels(ev.Asks)
	if err != nil {
		return book.RejectedInvalid, err
	}
	result := b.ApplyDiff(ev.FirstUpdateID, ev.FinalUpdateID, bids, asks)
	switch result {
	case book.RejectedGap:
		return result, errsSequenceGap(sym, ev)
	case book.RejectedInvalid:
		return result, errsBookInvalid(sym)
	default:
		return result, nil
	}
}

func (c *Consumer) handleTrade(sym string, payload []byte) {
	ev, err := parseTradeEvent(payload)
	if err != nil {
		observability.Log().Warn("trade event dropped",
			observability.F("symbol", sym),
			observability.F("error", err.Error()))
		return
	}
	price, err := numeric.PriceFromString(ev.Price)
	if err != nil {
		return
	}
	qty, err := numeric.QtyFromString(ev.Qty)
	if err != nil {
		return
	}
	id, ok := c.cfg.Catalog.Ticker(sym)
	if !ok {
		return
	}

	// m==true: the buyer was the resting maker, so the aggressor sold.
	side := schema.SideBuy
	if ev.BuyerIsMaker {
		side = schema.SideSell
	}

	c.tapMu.Lock()
	c.tap[id] = price
	c.tapMu.Unlock()

	c.emit([]schema.MarketUpdate{{
		Type:     schema.MarketUpdateTrade,
		TickerID: id,
		Side:     side,
		Price:    price,
		Qty:      qty,
		OrderID:  schema.OrderIDInvalid,
	}})
}

func (c *Consumer) emitBook(b *book.Book) {
	c.emit(b.Updates())
}

func (c *Consumer) emit(updates []schema.MarketUpdate) {
	if len(updates) == 0 {
		return
	}
	select {
	case c.emitCh <- updates:
	case <-c.ctx.Done():
	}
}

// emitLoop is the market-update queue's single producer.
func (c *Consumer) emitLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case updates := <-c.emitCh:
			for _, u := range updates {
				if !c.cfg.Updates.Push(u) {
					observability.Telemetry().IncCounter(observability.MetricQueueDrops, 1,
						map[string]string{"queue": "market_updates"})
				}
			}
		}
	}
}

func (c *Consumer) refreshLoop() {
	ticker := time.NewTicker(c.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		case <-c.refresh:
		}
		c.refreshDirtyBooks()
	}
}

// refreshDirtyBooks resyncs every invalid or dirty book, fanning the
// snapshot fetches out over the worker pool. The pass joins before
// returning so a nudge cannot pile resyncs on top of each other.
func (c *Consumer) refreshDirtyBooks() {
	var wg sync.WaitGroup
	for sym, b := range c.books {
		if c.ctx.Err() != nil {
			break
		}
		if b.Valid() && !b.NeedsRefresh() {
			continue
		}
		sym, b := sym, b
		run := func(ctx context.Context) error {
			defer wg.Done()
			if err := c.resync(ctx, sym, b, c.syncs[sym]); err != nil {
				observability.Log().Warn("book resync failed",
					observability.F("symbol", sym),
					observability.F("error", err.Error()))
			}
			return nil
		}
		wg.Add(1)
		if err := c.pool.Submit(c.ctx, run); err != nil {
			// Saturated pool: resync inline rather than skip the book.
			_ = run(c.ctx)
		}
	}
	wg.Wait()
}

func (c *Consumer) nudgeRefresher() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}
