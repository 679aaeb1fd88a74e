// Package book maintains per-symbol limit order books reconstructed from
// REST snapshots and diff-depth updates.
package book

import (
	"sort"
	"sync"

	"github.com/praveen686/omlaxmiquant/internal/numeric"
	"github.com/praveen686/omlaxmiquant/internal/schema"
)

// Level is one aggregated price level.
type Level struct {
	Price numeric.Price
	Qty   numeric.Qty
}

// ApplyResult reports the outcome of a diff application.
type ApplyResult int8

const (
	// Applied means the diff mutated the book.
	Applied ApplyResult = iota
	// DroppedStale means the diff predates the book and was ignored.
	DroppedStale
	// RejectedGap means a sequence gap was detected; the book is dirty.
	RejectedGap
	// RejectedInvalid means the book held no snapshot; the book is dirty.
	RejectedInvalid
)

// Book is one symbol's bid/ask ladder with sequence gating. All access is
// serialised by the book's own mutex; no other lock is ever held while it
// is taken.
type Book struct {
	mu sync.Mutex

	tickerID     schema.TickerID
	bids         map[numeric.Price]numeric.Qty
	asks         map[numeric.Price]numeric.Qty
	lastUpdateID uint64
	valid        bool
	needsRefresh bool
}

// New creates an empty, invalid book for the ticker. It stays alive until
// shutdown; resyncs mutate it in place.
func New(tickerID schema.TickerID) *Book {
	return &Book{
		tickerID: tickerID,
		bids:     make(map[numeric.Price]numeric.Qty),
		asks:     make(map[numeric.Price]numeric.Qty),
	}
}

// TickerID identifies the instrument this book tracks.
func (b *Book) TickerID() schema.TickerID {
	return b.tickerID
}

// ApplySnapshot atomically replaces both sides. Zero-quantity levels are
// ignored. The book becomes valid and clean.
func (b *Book) ApplySnapshot(lastUpdateID uint64, bids, asks []Level) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[numeric.Price]numeric.Qty, len(bids))
	b.asks = make(map[numeric.Price]numeric.Qty, len(asks))
	for _, lvl := range bids {
		if lvl.Qty > 0 {
			b.bids[lvl.Price] = lvl.Qty
		}
	}
	for _, lvl := range asks {
		if lvl.Qty > 0 {
			b.asks[lvl.Price] = lvl.Qty
		}
	}
	b.lastUpdateID = lastUpdateID
	b.valid = true
	b.needsRefresh = false
}

// ApplyDiff applies one diff-depth event under the three sequence gates:
// an invalid book rejects and turns dirty; an event entirely below the
// book's sequence is silently dropped; an event starting past the next
// expected id marks a gap. Anything else mutates levels and advances
// lastUpdateID to finalID.
func (b *Book) ApplyDiff(firstID, finalID uint64, bids, asks []Level) ApplyResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.valid {
		b.needsRefresh = true
		return RejectedInvalid
	}
	if finalID < b.lastUpdateID+1 {
		return DroppedStale
	}
	if firstID > b.lastUpdateID+1 {
		b.needsRefresh = true
		return RejectedGap
	}

	applySide(b.bids, bids)
	applySide(b.asks, asks)
	b.lastUpdateID = finalID
	return Applied
}

func applySide(side map[numeric.Price]numeric.Qty, levels []Level) {
	for _, lvl := range levels {
		if lvl.Qty == 0 {
			delete(side, lvl.Price)
			continue
		}
		side[lvl.Price] = lvl.Qty
	}
}

// Updates serialises the full book: one CLEAR, then bids by descending
// price, then asks by ascending price, priorities counting up from 1
// across both sides. The synthetic order id is the price itself.
func (b *Book) Updates() []schema.MarketUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]schema.MarketUpdate, 0, 1+len(b.bids)+len(b.asks))
	out = append(out, schema.MarketUpdate{
		Type:     schema.MarketUpdateClear,
		TickerID: b.tickerID,
		Price:    numeric.PriceInvalid,
		Qty:      numeric.QtyInvalid,
		OrderID:  schema.OrderIDInvalid,
	})

	prio := schema.Priority(1)
	for _, price := range sortedPrices(b.bids, true) {
		out = append(out, schema.MarketUpdate{
			Type:     schema.MarketUpdateAdd,
			TickerID: b.tickerID,
			Side:     schema.SideBuy,
			Price:    price,
			Qty:      b.bids[price],
			Priority: prio,
			OrderID:  schema.OrderID(price),
		})
		prio++
	}
	for _, price := range sortedPrices(b.asks, false) {
		out = append(out, schema.MarketUpdate{
			Type:     schema.MarketUpdateAdd,
			TickerID: b.tickerID,
			Side:     schema.SideSell,
			Price:    price,
			Qty:      b.asks[price],
			Priority: prio,
			OrderID:  schema.OrderID(price),
		})
		prio++
	}
	return out
}

func sortedPrices(side map[numeric.Price]numeric.Qty, descending bool) []numeric.Price {
	prices := make([]numeric.Price, 0, len(side))
	for p := range side {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if descending {
			return prices[i] > prices[j]
		}
		return prices[i] < prices[j]
	})
	return prices
}

// BestBid returns the highest bid level.
func (b *Book) BestBid() (Level, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return best(b.bids, true)
}

// BestAsk returns the lowest ask level.
func (b *Book) BestAsk() (Level, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return best(b.asks, false)
}

func best(side map[numeric.Price]numeric.Qty, highest bool) (Level, bool) {
	found := false
	var bestPrice numeric.Price
	for p := range side {
		if !found || (highest && p > bestPrice) || (!highest && p < bestPrice) {
			bestPrice = p
			found = true
		}
	}
	if !found {
		return Level{}, false
	}
	return Level{Price: bestPrice, Qty: side[bestPrice]}, true
}

// LastUpdateID reports the sequence high-water mark.
func (b *Book) LastUpdateID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUpdateID
}

// Valid reports whether a snapshot has been applied.
func (b *Book) Valid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.valid
}

// NeedsRefresh reports whether the reconciler must resync this book.
func (b *Book) NeedsRefresh() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.needsRefresh
}

// MarkDirty flags the book for resync, used on stream disconnects.
func (b *Book) MarkDirty() {
	b.mu.Lock()
	b.needsRefresh = true
	b.valid = false
	b.mu.Unlock()
}
