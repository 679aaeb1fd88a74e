package schema

import (
	"fmt"

	"github.com/praveen686/omlaxmiquant/internal/numeric"
)

// ClientRequestType enumerates engine-to-gateway commands.
type ClientRequestType int8

const (
	// ClientRequestInvalid marks an unset request.
	ClientRequestInvalid ClientRequestType = iota
	// ClientRequestNew places a new order.
	ClientRequestNew
	// ClientRequestCancel cancels a live order.
	ClientRequestCancel
)

// String renders the request type for logs.
func (t ClientRequestType) String() string {
	switch t {
	case ClientRequestNew:
		return "NEW"
	case ClientRequestCancel:
		return "CANCEL"
	default:
		return "INVALID"
	}
}

// ClientRequest travels engine -> gateway on the request queue.
// OrderID is unique per ClientID for the lifetime of the process.
type ClientRequest struct {
	Type     ClientRequestType
	ClientID ClientID
	TickerID TickerID
	OrderID  OrderID
	Side     Side
	Price    numeric.Price
	Qty      numeric.Qty
}

// String renders the request for logs.
func (r ClientRequest) String() string {
	return fmt.Sprintf("ClientRequest{%s client:%d ticker:%d order:%d %s px:%s qty:%s}",
		r.Type, r.ClientID, r.TickerID, r.OrderID, r.Side, r.Price, r.Qty)
}

// ClientResponseType enumerates gateway-to-engine outcomes.
type ClientResponseType int8

const (
	// ClientResponseInvalid marks an unset response.
	ClientResponseInvalid ClientResponseType = iota
	// ClientResponseAccepted acknowledges a live order.
	ClientResponseAccepted
	// ClientResponseCanceled reports a dead order.
	ClientResponseCanceled
	// ClientResponseFilled reports a fully executed order.
	ClientResponseFilled
	// ClientResponseCancelRejected reports a failed cancel or local rejection.
	ClientResponseCancelRejected
)

// String renders the response type for logs.
func (t ClientResponseType) String() string {
	switch t {
	case ClientResponseAccepted:
		return "ACCEPTED"
	case ClientResponseCanceled:
		return "CANCELED"
	case ClientResponseFilled:
		return "FILLED"
	case ClientResponseCancelRejected:
		return "CANCEL_REJECTED"
	default:
		return "INVALID"
	}
}

// Terminal reports whether the type ends an order's response stream.
func (t ClientResponseType) Terminal() bool {
	return t == ClientResponseFilled || t == ClientResponseCanceled
}

// ClientResponse travels gateway -> engine on the response queue.
// ExecQty+LeavesQty is monotone non-decreasing per order; a terminal
// response is the last one emitted for its OrderID.
type ClientResponse struct {
	Type          ClientResponseType
	ClientID      ClientID
	TickerID      TickerID
	ClientOrderID OrderID
	MarketOrderID string
	Side          Side
	Price         numeric.Price
	ExecQty       numeric.Qty
	LeavesQty     numeric.Qty
}

// String renders the response for logs.
func (r ClientResponse) String() string {
	return fmt.Sprintf("ClientResponse{%s client:%d ticker:%d order:%d mkt:%s %s px:%s exec:%s leaves:%s}",
		r.Type, r.ClientID, r.TickerID, r.ClientOrderID, r.MarketOrderID, r.Side, r.Price, r.ExecQty, r.LeavesQty)
}
