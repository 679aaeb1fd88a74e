// Package symbol maps engine tickers onto exchange symbols and caches the
// exchangeInfo trading filters used to validate orders.
package symbol

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/praveen686/omlaxmiquant/internal/config"
	"github.com/praveen686/omlaxmiquant/internal/errs"
	"github.com/praveen686/omlaxmiquant/internal/observability"
	"github.com/praveen686/omlaxmiquant/internal/schema"
	"github.com/praveen686/omlaxmiquant/internal/transport"
)

// PercentPrice carries the reference-price deviation bounds per side. A
// symmetric PERCENT_PRICE filter populates both sides with the same values.
type PercentPrice struct {
	BidUp   decimal.Decimal
	BidDown decimal.Decimal
	AskUp   decimal.Decimal
	AskDown decimal.Decimal
}

// Info is the retained subset of one exchangeInfo symbols[] entry.
type Info struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	TickSize decimal.Decimal
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal

	MinQty   decimal.Decimal
	MaxQty   decimal.Decimal
	StepSize decimal.Decimal

	MinNotional decimal.Decimal

	Percent PercentPrice
}

// Catalog resolves ticker ids to symbols and serves cached filters.
type Catalog struct {
	rest    *transport.RESTClient
	baseURL string
	ttl     time.Duration
	now     func() time.Time

	tickerToSymbol map[schema.TickerID]string
	symbolToTicker map[string]schema.TickerID
	fallbacks      map[string]config.Ticker

	mu        sync.Mutex
	bySymbol  map[string]Info
	fetchedAt time.Time
}

// NewCatalog builds a catalog over the configured tickers. ttl bounds the
// exchangeInfo cache age; zero selects the 60-minute default.
func NewCatalog(rest *transport.RESTClient, baseURL string, tickers []config.Ticker, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Catalog{
		rest:           rest,
		baseURL:        baseURL,
		ttl:            ttl,
		now:            time.Now,
		tickerToSymbol: make(map[schema.TickerID]string, len(tickers)),
		symbolToTicker: make(map[string]schema.TickerID, len(tickers)),
		fallbacks:      make(map[string]config.Ticker, len(tickers)),
		bySymbol:       make(map[string]Info),
	}
	for _, t := range tickers {
		sym := strings.ToUpper(t.Symbol)
		c.tickerToSymbol[schema.TickerID(t.TickerID)] = sym
		c.symbolToTicker[sym] = schema.TickerID(t.TickerID)
		c.fallbacks[sym] = t
	}
	return c
}

// Symbol resolves a ticker id to its exchange symbol.
func (c *Catalog) Symbol(id schema.TickerID) (string, bool) {
	sym, ok := c.tickerToSymbol[id]
	return sym, ok
}

// Ticker resolves an exchange symbol to its ticker id.
func (c *Catalog) Ticker(symbol string) (schema.TickerID, bool) {
	id, ok := c.symbolToTicker[strings.ToUpper(symbol)]
	return id, ok
}

// Symbols lists every configured exchange symbol.
func (c *Catalog) Symbols() []string {
	out := make([]string, 0, len(c.symbolToTicker))
	for sym := range c.symbolToTicker {
		out = append(out, sym)
	}
	return out
}

// Fallback returns the configured per-ticker filter defaults.
func (c *Catalog) Fallback(symbol string) (config.Ticker, bool) {
	t, ok := c.fallbacks[strings.ToUpper(symbol)]
	return t, ok
}

// Get returns the cached filters for symbol, refreshing the whole cache
// when the entry is older than the TTL or missing. A failed refresh keeps
// serving the previous entry.
func (c *Catalog) Get(ctx context.Context, symbol string) (Info, error) {
	symbol = strings.ToUpper(symbol)

	c.mu.Lock()
	info, cached := c.bySymbol[symbol]
	fresh := cached && c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.Unlock()
	if fresh {
		return info, nil
	}

	if err := c.Refresh(ctx); err != nil {
		if cached {
			observability.Log().Warn("exchangeInfo refresh failed, serving stale entry",
				observability.F("symbol", symbol),
				observability.F("error", err.Error()))
			return info, nil
		}
		return Info{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.bySymbol[symbol]
	if !ok {
		return Info{}, errs.New("symbol/get", errs.CodeInvalid,
			errs.WithMessage("symbol absent from exchangeInfo: "+symbol))
	}
	return info, nil
}

type exchangeInfoFilter struct {
	FilterType string `json:"filterType"`

	TickSize string `json:"tickSize"`
	MinPrice string `json:"minPrice"`
	MaxPrice string `json:"maxPrice"`

	MinQty   string `json:"minQty"`
	MaxQty   string `json:"maxQty"`
	StepSize string `json:"stepSize"`

	MinNotional string `json:"minNotional"`

	MultiplierUp      string `json:"multiplierUp"`
	MultiplierDown    string `json:"multiplierDown"`
	BidMultiplierUp   string `json:"bidMultiplierUp"`
	BidMultiplierDown string `json:"bidMultiplierDown"`
	AskMultiplierUp   string `json:"askMultiplierUp"`
	AskMultiplierDown string `json:"askMultiplierDown"`
}

type exchangeInfoSymbol struct {
	Symbol     string               `json:"symbol"`
	BaseAsset  string               `json:"baseAsset"`
	QuoteAsset string               `json:"quoteAsset"`
	Filters    []exchangeInfoFilter `json:"filters"`
}

type exchangeInfoResponse struct {
	Symbols []exchangeInfoSymbol `json:"symbols"`
}

// Refresh replaces the whole filter cache from GET /api/v3/exchangeInfo.
func (c *Catalog) Refresh(ctx context.Context) error {
	payload, err := c.rest.Do(ctx, http.MethodGet, c.baseURL, "/api/v3/exchangeInfo", "", nil, nil)
	if err != nil {
		return err
	}
	var resp exchangeInfoResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return errs.New("symbol/refresh", errs.CodeProtocol,
			errs.WithMessage("malformed exchangeInfo"), errs.WithCause(err))
	}

	next := make(map[string]Info, len(c.symbolToTicker))
	for _, entry := range resp.Symbols {
		sym := strings.ToUpper(entry.Symbol)
		if _, tracked := c.symbolToTicker[sym]; !tracked {
			continue
		}
		next[sym] = buildInfo(entry)
	}
	if len(next) == 0 {
		return errs.New("symbol/refresh", errs.CodeProtocol,
			errs.WithMessage("exchangeInfo held none of the configured symbols"))
	}

	c.mu.Lock()
	c.bySymbol = next
	c.fetchedAt = c.now()
	c.mu.Unlock()
	observability.Log().Info("exchangeInfo cache refreshed",
		observability.F("symbols", len(next)))
	return nil
}

func buildInfo(entry exchangeInfoSymbol) Info {
	info := Info{
		Symbol:     strings.ToUpper(entry.Symbol),
		BaseAsset:  entry.BaseAsset,
		QuoteAsset: entry.QuoteAsset,
	}
	for _, f := range entry.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			info.TickSize = parseDecimal(f.TickSize)
			info.MinPrice = parseDecimal(f.MinPrice)
			info.MaxPrice = parseDecimal(f.MaxPrice)
		case "LOT_SIZE":
			info.MinQty = parseDecimal(f.MinQty)
			info.MaxQty = parseDecimal(f.MaxQty)
			info.StepSize = parseDecimal(f.StepSize)
		case "MIN_NOTIONAL", "NOTIONAL":
			info.MinNotional = parseDecimal(f.MinNotional)
		case "PERCENT_PRICE":
			up := parseDecimal(f.MultiplierUp)
			down := parseDecimal(f.MultiplierDown)
			info.Percent = PercentPrice{BidUp: up, BidDown: down, AskUp: up, AskDown: down}
		case "PERCENT_PRICE_BY_SIDE":
			info.Percent = PercentPrice{
				BidUp:   parseDecimal(f.BidMultiplierUp),
				BidDown: parseDecimal(f.BidMultiplierDown),
				AskUp:   parseDecimal(f.AskMultiplierUp),
				AskDown: parseDecimal(f.AskMultiplierDown),
			}
		}
	}
	return info
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
