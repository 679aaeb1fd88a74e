// Package marketdata maintains live order books per configured symbol and
// emits market updates into the engine queue.
package marketdata

import (
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/praveen686/omlaxmiquant/internal/book"
	"github.com/praveen686/omlaxmiquant/internal/errs"
	"github.com/praveen686/omlaxmiquant/internal/numeric"
)

// depthEvent is one @depth diff frame.
type depthEvent struct {
	EventType     string     `json:"e"`
	FirstUpdateID uint64     `json:"U"`
	FinalUpdateID uint64     `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// tradeEvent is one @trade frame.
type tradeEvent struct {
	EventType    string `json:"e"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	BuyerIsMaker bool   `json:"m"`
}

// depthSnapshot is the REST /api/v3/depth response.
type depthSnapshot struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

func parseDepthEvent(payload []byte) (depthEvent, error) {
	var ev depthEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return depthEvent{}, errs.New("marketdata/depth", errs.CodeProtocol,
			errs.WithMessage("malformed depth event"), errs.WithCause(err))
	}
	if ev.EventType != "depthUpdate" {
		return depthEvent{}, errs.New("marketdata/depth", errs.CodeProtocol,
			errs.WithMessage("unexpected event type: "+ev.EventType))
	}
	return ev, nil
}

func parseTradeEvent(payload []byte) (tradeEvent, error) {
	var ev tradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return tradeEvent{}, errs.New("marketdata/trade", errs.CodeProtocol,
			errs.WithMessage("malformed trade event"), errs.WithCause(err))
	}
	if ev.EventType != "trade" {
		return tradeEvent{}, errs.New("marketdata/trade", errs.CodeProtocol,
			errs.WithMessage("unexpected event type: "+ev.EventType))
	}
	return ev, nil
}

func errsSequenceGap(sym string, ev depthEvent) error {
	return errs.New("marketdata/depth", errs.CodeSequenceGap,
		errs.WithMessage("gap on "+sym+
			" U="+strconv.FormatUint(ev.FirstUpdateID, 10)+
			" u="+strconv.FormatUint(ev.FinalUpdateID, 10)))
}

func errsBookInvalid(sym string) error {
	return errs.New("marketdata/depth", errs.CodeStale,
		errs.WithMessage("book invalid for "+sym))
}

// parseLevels converts [price, qty] string pairs to internal levels.
func parseLevels(raw [][]string) ([]book.Level, error) {
	levels := make([]book.Level, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, errs.New("marketdata/levels", errs.CodeProtocol,
				errs.WithMessage("price level missing fields"))
		}
		price, err := numeric.PriceFromString(pair[0])
		if err != nil {
			return nil, err
		}
		qty, err := numeric.QtyFromString(pair[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, book.Level{Price: price, Qty: qty})
	}
	return levels, nil
}
