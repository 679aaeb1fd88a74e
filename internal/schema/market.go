package schema

import (
	"fmt"

	"github.com/praveen686/omlaxmiquant/internal/numeric"
)

// MarketUpdateType enumerates consumer-to-engine book events.
type MarketUpdateType int8

const (
	// MarketUpdateInvalid marks an unset update.
	MarketUpdateInvalid MarketUpdateType = iota
	// MarketUpdateClear resets the downstream book for a ticker.
	MarketUpdateClear
	// MarketUpdateAdd inserts a price level.
	MarketUpdateAdd
	// MarketUpdateModify changes quantity at a level.
	MarketUpdateModify
	// MarketUpdateCancel removes a level.
	MarketUpdateCancel
	// MarketUpdateTrade reports an executed trade.
	MarketUpdateTrade
)

// String renders the update type for logs.
func (t MarketUpdateType) String() string {
	switch t {
	case MarketUpdateClear:
		return "CLEAR"
	case MarketUpdateAdd:
		return "ADD"
	case MarketUpdateModify:
		return "MODIFY"
	case MarketUpdateCancel:
		return "CANCEL"
	case MarketUpdateTrade:
		return "TRADE"
	default:
		return "INVALID"
	}
}

// MarketUpdate travels consumer -> engine on the market-update queue.
// OrderID is synthetic (derived from price) since aggregated depth carries
// no per-order identity; Priority is assigned monotonically within one
// book serialisation.
type MarketUpdate struct {
	Type     MarketUpdateType
	TickerID TickerID
	Side     Side
	Price    numeric.Price
	Qty      numeric.Qty
	Priority Priority
	OrderID  OrderID
}

// String renders the update for logs.
func (u MarketUpdate) String() string {
	return fmt.Sprintf("MarketUpdate{%s ticker:%d %s px:%s qty:%s prio:%d order:%d}",
		u.Type, u.TickerID, u.Side, u.Price, u.Qty, u.Priority, u.OrderID)
}
