package book_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praveen686/omlaxmiquant/internal/book"
	"github.com/praveen686/omlaxmiquant/internal/numeric"
	"github.com/praveen686/omlaxmiquant/internal/schema"
)

func px(t *testing.T, s string) numeric.Price {
	t.Helper()
	p, err := numeric.PriceFromString(s)
	require.NoError(t, err)
	return p
}

func qt(t *testing.T, s string) numeric.Qty {
	t.Helper()
	q, err := numeric.QtyFromString(s)
	require.NoError(t, err)
	return q
}

func TestSnapshotThenValidDiff(t *testing.T) {
	b := book.New(1)
	b.ApplySnapshot(100,
		[]book.Level{{Price: px(t, "50000"), Qty: qt(t, "1")}},
		[]book.Level{{Price: px(t, "50010"), Qty: qt(t, "2")}})
	require.True(t, b.Valid())
	require.Equal(t, uint64(100), b.LastUpdateID())

	first := b.Updates()
	require.Equal(t, schema.MarketUpdateClear, first[0].Type)
	require.Len(t, first, 3)

	res := b.ApplyDiff(101, 101,
		[]book.Level{{Price: px(t, "50000"), Qty: 0}},
		[]book.Level{{Price: px(t, "50010"), Qty: qt(t, "3")}})
	require.Equal(t, book.Applied, res)
	require.Equal(t, uint64(101), b.LastUpdateID())

	_, haveBid := b.BestBid()
	require.False(t, haveBid, "zero-qty diff removes the bid level")
	ask, haveAsk := b.BestAsk()
	require.True(t, haveAsk)
	require.Equal(t, qt(t, "3"), ask.Qty)

	second := b.Updates()
	require.Len(t, second, 2) // CLEAR + one ask
	require.Equal(t, schema.MarketUpdateClear, second[0].Type)
	require.Equal(t, schema.SideSell, second[1].Side)
}

func TestSequenceGapMarksDirty(t *testing.T) {
	b := book.New(1)
	b.ApplySnapshot(100, nil, nil)
	res := b.ApplyDiff(105, 106, nil, nil)
	require.Equal(t, book.RejectedGap, res)
	require.True(t, b.NeedsRefresh())
	require.Equal(t, uint64(100), b.LastUpdateID())
}

func TestStaleDiffSilentlyDropped(t *testing.T) {
	b := book.New(1)
	b.ApplySnapshot(200, nil, nil)
	res := b.ApplyDiff(150, 180, nil, nil)
	require.Equal(t, book.DroppedStale, res)
	require.False(t, b.NeedsRefresh())

	// Boundary: u == last_update_id is still stale; u == last+1 applies.
	require.Equal(t, book.DroppedStale, b.ApplyDiff(195, 200, nil, nil))
	require.Equal(t, book.Applied, b.ApplyDiff(198, 201, nil, nil))
}

func TestInvalidBookRejectsDiffs(t *testing.T) {
	b := book.New(1)
	res := b.ApplyDiff(1, 2, nil, nil)
	require.Equal(t, book.RejectedInvalid, res)
	require.True(t, b.NeedsRefresh())
}

func TestSnapshotIsIdempotent(t *testing.T) {
	b := book.New(1)
	bids := []book.Level{
		{Price: px(t, "49999"), Qty: qt(t, "0.5")},
		{Price: px(t, "50000"), Qty: qt(t, "1")},
	}
	asks := []book.Level{{Price: px(t, "50010"), Qty: qt(t, "2")}}

	b.ApplySnapshot(100, bids, asks)
	once := b.Updates()
	b.ApplySnapshot(100, bids, asks)
	twice := b.Updates()
	require.Equal(t, once, twice)
}

func TestUpdatesOrderingAndPriority(t *testing.T) {
	b := book.New(7)
	b.ApplySnapshot(10,
		[]book.Level{
			{Price: px(t, "99"), Qty: qt(t, "1")},
			{Price: px(t, "101"), Qty: qt(t, "2")},
			{Price: px(t, "100"), Qty: qt(t, "3")},
		},
		[]book.Level{
			{Price: px(t, "103"), Qty: qt(t, "4")},
			{Price: px(t, "102"), Qty: qt(t, "5")},
		})

	updates := b.Updates()
	require.Len(t, updates, 6)
	require.Equal(t, schema.MarketUpdateClear, updates[0].Type)

	// Bids descend, asks ascend, priority counts across both sides.
	wantPrices := []string{"101", "100", "99", "102", "103"}
	for i, want := range wantPrices {
		u := updates[i+1]
		require.Equal(t, schema.MarketUpdateAdd, u.Type)
		require.Equal(t, px(t, want), u.Price)
		require.Equal(t, schema.Priority(i+1), u.Priority)
		require.Equal(t, schema.OrderID(u.Price), u.OrderID)
	}

	bid, ok := b.BestBid()
	require.True(t, ok)
	ask, ok2 := b.BestAsk()
	require.True(t, ok2)
	require.Less(t, int64(bid.Price), int64(ask.Price), "best bid below best ask")
}

func TestMarkDirtyInvalidatesBook(t *testing.T) {
	b := book.New(1)
	b.ApplySnapshot(100, nil, nil)
	b.MarkDirty()
	require.True(t, b.NeedsRefresh())
	require.False(t, b.Valid())
	require.Equal(t, book.RejectedInvalid, b.ApplyDiff(101, 101, nil, nil))
}

func TestSnapshotIgnoresZeroQtyLevels(t *testing.T) {
	b := book.New(1)
	b.ApplySnapshot(50,
		[]book.Level{{Price: px(t, "10"), Qty: 0}},
		[]book.Level{{Price: px(t, "11"), Qty: qt(t, "1")}})
	_, haveBid := b.BestBid()
	require.False(t, haveBid)
}

func TestLastUpdateIDStrictlyIncreases(t *testing.T) {
	b := book.New(1)
	b.ApplySnapshot(100, nil, nil)
	prev := b.LastUpdateID()
	for i := uint64(101); i <= 110; i++ {
		require.Equal(t, book.Applied, b.ApplyDiff(i, i, nil, nil))
		require.Greater(t, b.LastUpdateID(), prev)
		prev = b.LastUpdateID()
	}
}
