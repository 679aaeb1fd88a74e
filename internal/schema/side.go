// Package schema defines the types exchanged with the trade engine over the
// SPSC queues: client requests, client responses, and market updates.
package schema

// TickerID identifies a configured instrument.
type TickerID uint32

// ClientID identifies a trading client within the engine.
type ClientID uint32

// OrderID identifies an order within a client.
type OrderID uint64

// Priority orders levels within one book serialisation.
type Priority uint64

// Sentinels for unset identifiers.
const (
	TickerIDInvalid TickerID = ^TickerID(0)
	ClientIDInvalid ClientID = ^ClientID(0)
	OrderIDInvalid  OrderID  = ^OrderID(0)
)

// Side is the direction of an order or trade.
type Side int8

const (
	// SideInvalid marks an unset side.
	SideInvalid Side = iota
	// SideBuy bids.
	SideBuy
	// SideSell asks.
	SideSell
)

// String renders the side for logs.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "INVALID"
	}
}

// Exchange renders the side as Binance expects it.
func (s Side) Exchange() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return ""
	}
}
