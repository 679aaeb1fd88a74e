package gateway

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/praveen686/omlaxmiquant/internal/errs"
	"github.com/praveen686/omlaxmiquant/internal/schema"
)

// userDataEvent is the envelope of one user-data frame; only the event
// type is decoded up front.
type userDataEvent struct {
	EventType string `json:"e"`
}

// executionReport carries the order-lifecycle fields the gateway consumes.
type executionReport struct {
	EventType       string `json:"e"`
	ClientOrderID   string `json:"c"`
	ExchangeOrderID int64  `json:"i"`
	Symbol          string `json:"s"`
	Side            string `json:"S"`
	Status          string `json:"X"`
	Price           string `json:"p"`
	Qty             string `json:"q"`
	FilledQty       string `json:"z"`
}

// accountPosition is an outboundAccountPosition balance refresh.
type accountPosition struct {
	EventType string `json:"e"`
	Balances  []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

const clientOrderPrefix = "x-"

// encodeClientOrderID renders the exchange-visible client order id.
func encodeClientOrderID(id schema.OrderID) string {
	return clientOrderPrefix + strconv.FormatUint(uint64(id), 10)
}

// decodeClientOrderID strips the prefix and parses the internal order id.
func decodeClientOrderID(c string) (schema.OrderID, error) {
	if !strings.HasPrefix(c, clientOrderPrefix) {
		return 0, errs.New("gateway/exec-report", errs.CodeProtocol,
			errs.WithMessage("foreign client order id: "+c))
	}
	raw, err := strconv.ParseUint(c[len(clientOrderPrefix):], 10, 64)
	if err != nil {
		return 0, errs.New("gateway/exec-report", errs.CodeProtocol,
			errs.WithMessage("malformed client order id: "+c), errs.WithCause(err))
	}
	return schema.OrderID(raw), nil
}

// mapExecStatus collapses exchange order statuses onto response types.
// CANCELED, EXPIRED and REJECTED all surface as CANCELED; the raw status
// stays visible in logs.
func mapExecStatus(status string) (schema.ClientResponseType, bool) {
	switch status {
	case "NEW", "PARTIALLY_FILLED":
		return schema.ClientResponseAccepted, true
	case "FILLED":
		return schema.ClientResponseFilled, true
	case "CANCELED", "EXPIRED", "REJECTED":
		return schema.ClientResponseCanceled, true
	default:
		return schema.ClientResponseInvalid, false
	}
}

func parseSide(s string) schema.Side {
	switch s {
	case "BUY":
		return schema.SideBuy
	case "SELL":
		return schema.SideSell
	default:
		return schema.SideInvalid
	}
}

func parseEventType(payload []byte) (string, error) {
	var ev userDataEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", errs.New("gateway/user-data", errs.CodeProtocol,
			errs.WithMessage("malformed user-data frame"), errs.WithCause(err))
	}
	return ev.EventType, nil
}
