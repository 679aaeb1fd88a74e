// Package gateway mediates order flow between the trade engine and the
// exchange: request dispatch, filter validation, balance-aware sizing,
// signed submission, and execution-report translation.
package gateway

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/praveen686/omlaxmiquant/internal/auth"
	"github.com/praveen686/omlaxmiquant/internal/errs"
	"github.com/praveen686/omlaxmiquant/internal/numeric"
	"github.com/praveen686/omlaxmiquant/internal/observability"
	"github.com/praveen686/omlaxmiquant/internal/queue"
	"github.com/praveen686/omlaxmiquant/internal/schema"
	"github.com/praveen686/omlaxmiquant/internal/symbol"
	"github.com/praveen686/omlaxmiquant/internal/transport"
)

// Config wires the gateway's collaborators.
type Config struct {
	REST     *transport.RESTClient
	Auth     *auth.Authenticator
	RESTBase string
	Catalog  *symbol.Catalog

	Requests  *queue.SPSC[schema.ClientRequest]
	Responses *queue.SPSC[schema.ClientResponse]

	// LastPrice is the consumer's price tap; the gateway never reads the
	// market-update queue itself.
	LastPrice func(schema.TickerID) (numeric.Price, bool)

	UseTestnet   bool
	RecvWindow   int64
	BalanceTTL   time.Duration
	PollInterval time.Duration
}

type orderMeta struct {
	clientID schema.ClientID
	tickerID schema.TickerID
	side     schema.Side
}

// Gateway runs a single processing loop over the request queue and the
// user-data event channel, so the response queue keeps one producer.
type Gateway struct {
	cfg Config

	idMu       sync.Mutex
	exchangeID map[schema.OrderID]string
	meta       map[schema.OrderID]orderMeta
	dead       map[schema.OrderID]struct{}

	balances *balanceCache
	userCh   chan []byte
	seq      uint64

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an unstarted gateway. The authenticator must hold credentials;
// a gateway is never constructed around an invalid one.
func New(cfg Config) (*Gateway, error) {
	if !cfg.Auth.Valid() {
		return nil, errs.New("gateway/new", errs.CodeCredentialsMissing,
			errs.WithMessage("refusing to start without credentials"))
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	return &Gateway{
		cfg:        cfg,
		exchangeID: make(map[schema.OrderID]string),
		meta:       make(map[schema.OrderID]orderMeta),
		dead:       make(map[schema.OrderID]struct{}),
		balances:   newBalanceCache(cfg.BalanceTTL),
		userCh:     make(chan []byte, 1024),
		now:        time.Now,
		done:       make(chan struct{}),
	}, nil
}

// Start launches the processing loop.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	go g.run()
}

// Stop halts the loop and waits for it to drain.
func (g *Gateway) Stop() {
	g.cancel()
	<-g.done
}

// OnUserData accepts one user-data frame for processing on the gateway
// loop. Frames are dropped (with a metric) if the gateway cannot keep up.
func (g *Gateway) OnUserData(payload []byte) {
	select {
	case g.userCh <- payload:
	default:
		observability.Telemetry().IncCounter(observability.MetricQueueDrops, 1,
			map[string]string{"queue": "user_data"})
	}
}

// ExchangeOrderID reports the mapped exchange id for an internal order.
func (g *Gateway) ExchangeOrderID(id schema.OrderID) (string, bool) {
	g.idMu.Lock()
	defer g.idMu.Unlock()
	v, ok := g.exchangeID[id]
	return v, ok
}

// ResponsesEmitted reports the local response sequence counter.
func (g *Gateway) ResponsesEmitted() uint64 {
	g.idMu.Lock()
	defer g.idMu.Unlock()
	return g.seq
}

func (g *Gateway) run() {
	defer close(g.done)
	for {
		if g.ctx.Err() != nil {
			return
		}
		progressed := false
		select {
		case payload := <-g.userCh:
			g.processUserData(payload)
			progressed = true
		default:
		}
		if req, ok := g.cfg.Requests.Pop(); ok {
			g.dispatch(req)
			progressed = true
		}
		if progressed {
			continue
		}
		select {
		case <-g.ctx.Done():
			return
		case payload := <-g.userCh:
			g.processUserData(payload)
		case <-time.After(g.cfg.PollInterval):
		}
	}
}

func (g *Gateway) dispatch(req schema.ClientRequest) {
	switch req.Type {
	case schema.ClientRequestNew:
		g.processNew(req)
	case schema.ClientRequestCancel:
		g.processCancel(req)
	default:
		observability.Log().Warn("unknown request type dropped",
			observability.F("request", req.String()))
	}
}

// effective filter values after overlaying exchangeInfo on the configured
// per-ticker fallbacks.
type filters struct {
	baseAsset   string
	quoteAsset  string
	minPrice    decimal.Decimal
	maxPrice    decimal.Decimal
	minQty      decimal.Decimal
	maxQty      decimal.Decimal
	stepSize    decimal.Decimal
	minNotional decimal.Decimal
	percent     symbol.PercentPrice
	priceScale  int32
	qtyScale    int32
	testQty     decimal.Decimal
}

func (g *Gateway) filtersFor(sym string) filters {
	var f filters
	info, err := g.cfg.Catalog.Get(g.ctx, sym)
	if err != nil {
		observability.Log().Warn("exchangeInfo unavailable, using configured fallbacks",
			observability.F("symbol", sym),
			observability.F("error", err.Error()))
	}
	f.baseAsset = info.BaseAsset
	f.quoteAsset = info.QuoteAsset
	f.minPrice = info.MinPrice
	f.maxPrice = info.MaxPrice
	f.minQty = info.MinQty
	f.maxQty = info.MaxQty
	f.stepSize = info.StepSize
	f.minNotional = info.MinNotional
	f.percent = info.Percent

	fb, haveFB := g.cfg.Catalog.Fallback(sym)
	if haveFB {
		if f.baseAsset == "" {
			f.baseAsset = fb.BaseAsset
		}
		if f.quoteAsset == "" {
			f.quoteAsset = fb.QuoteAsset
		}
		if f.minQty.IsZero() {
			f.minQty = parseFallback(fb.MinQty)
		}
		if f.maxQty.IsZero() {
			f.maxQty = parseFallback(fb.MaxQty)
		}
		if f.stepSize.IsZero() {
			f.stepSize = parseFallback(fb.StepSize)
		}
		if f.minNotional.IsZero() {
			f.minNotional = parseFallback(fb.MinNotional)
		}
		f.testQty = parseFallback(fb.TestQty)
	}

	switch {
	case info.TickSize.IsPositive():
		f.priceScale = int32(numeric.ScaleFromStep(info.TickSize.String()))
	case haveFB:
		f.priceScale = fb.PricePrecision
	}
	switch {
	case f.stepSize.IsPositive():
		f.qtyScale = int32(numeric.ScaleFromStep(f.stepSize.String()))
	case haveFB:
		f.qtyScale = fb.QtyPrecision
	}
	return f
}

func parseFallback(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// referencePrice prefers the consumer's trade tap; when no trade has been
// seen yet it falls back to GET /api/v3/ticker/price.
func (g *Gateway) referencePrice(id schema.TickerID, sym string) (decimal.Decimal, bool) {
	if g.cfg.LastPrice != nil {
		if p, ok := g.cfg.LastPrice(id); ok && p.Valid() && p > 0 {
			return p.Decimal(), true
		}
	}
	payload, err := g.cfg.REST.Do(g.ctx, http.MethodGet, g.cfg.RESTBase,
		"/api/v3/ticker/price", "symbol="+sym, nil, nil)
	if err != nil {
		observability.Log().Warn("reference price unavailable, skipping percent-price check",
			observability.F("symbol", sym),
			observability.F("error", err.Error()))
		return decimal.Zero, false
	}
	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return decimal.Zero, false
	}
	ref, err := decimal.NewFromString(resp.Price)
	if err != nil || !ref.IsPositive() {
		return decimal.Zero, false
	}
	return ref, true
}

// usableBalance serves the cached free balance for asset, refreshing the
// whole cache over the signed account endpoint when stale. A failed refresh
// skips the balance constraint rather than blocking the order.
func (g *Gateway) usableBalance(asset string) (decimal.Decimal, bool) {
	if asset == "" {
		return decimal.Zero, false
	}
	if g.balances.stale(g.now()) {
		if err := g.refreshBalances(); err != nil {
			observability.Log().Warn("account balance refresh failed, skipping balance constraint",
				observability.F("error", err.Error()))
			return decimal.Zero, false
		}
	}
	return g.balances.freeBalance(asset)
}

func (g *Gateway) refreshBalances() error {
	payload, err := g.signedCall(http.MethodGet, "/api/v3/account", auth.NewParams())
	if err != nil {
		return err
	}
	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return errs.New("gateway/balances", errs.CodeProtocol,
			errs.WithMessage("malformed account response"), errs.WithCause(err))
	}
	next := make(map[string]decimal.Decimal, len(resp.Balances))
	for _, b := range resp.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		next[b.Asset] = free
	}
	g.balances.replaceAll(next, g.now())
	return nil
}

func (g *Gateway) processNew(req schema.ClientRequest) {
	sym, ok := g.cfg.Catalog.Symbol(req.TickerID)
	if !ok {
		g.reject(req, "unknown ticker")
		return
	}
	if req.Price <= 0 || req.Qty <= 0 || req.Side == schema.SideInvalid {
		g.reject(req, "non-positive price or qty")
		return
	}

	f := g.filtersFor(sym)
	price := req.Price.Decimal()

	// PRICE_FILTER: clamp into [minPrice, maxPrice], snap to tick scale.
	if f.minPrice.IsPositive() && price.LessThan(f.minPrice) {
		price = f.minPrice
	}
	if f.maxPrice.IsPositive() && price.GreaterThan(f.maxPrice) {
		price = f.maxPrice
	}
	price = price.Round(f.priceScale)
	priceStr := price.StringFixed(f.priceScale)

	// PERCENT_PRICE[_BY_SIDE]: bound deviation from the reference price,
	// using the side-appropriate multipliers.
	if ref, haveRef := g.referencePrice(req.TickerID, sym); haveRef {
		up, down := f.percent.AskUp, f.percent.AskDown
		if req.Side == schema.SideBuy {
			up, down = f.percent.BidUp, f.percent.BidDown
		}
		if up.IsPositive() && price.GreaterThan(ref.Mul(up)) {
			g.reject(req, "price above percent-price band")
			return
		}
		if down.IsPositive() && price.LessThan(ref.Mul(down)) {
			g.reject(req, "price below percent-price band")
			return
		}
	}

	// LOT_SIZE and balance-aware sizing: trim to 95% of the usable
	// balance, clamp into [minQty, maxQty], floor to the step.
	qty := req.Qty.Decimal()
	asset := f.quoteAsset
	if req.Side == schema.SideSell {
		asset = f.baseAsset
	}
	if free, haveBal := g.usableBalance(asset); haveBal {
		usable := free.Mul(decimal.NewFromFloat(0.95))
		if req.Side == schema.SideBuy && price.IsPositive() {
			usable = usable.Div(price)
		}
		if qty.GreaterThan(usable) {
			qty = usable
		}
	}
	if f.minQty.IsPositive() && qty.LessThan(f.minQty) {
		qty = f.minQty
	}
	if f.maxQty.IsPositive() && qty.GreaterThan(f.maxQty) {
		qty = f.maxQty
	}
	if f.stepSize.IsPositive() {
		qty = qty.Div(f.stepSize).Floor().Mul(f.stepSize)
	}
	// NOTIONAL: raise quantity to meet the minimum, ceiling at 2 dp.
	if f.minNotional.IsPositive() && price.IsPositive() &&
		qty.Mul(price).LessThan(f.minNotional) {
		qty = f.minNotional.Div(price).Shift(2).Ceil().Shift(-2)
	}
	if g.cfg.UseTestnet && f.testQty.IsPositive() && qty.GreaterThan(f.testQty) {
		qty = f.testQty
	}
	if !qty.IsPositive() {
		g.reject(req, "quantity rounded to zero")
		return
	}
	qtyStr := qty.StringFixed(f.qtyScale)

	params := auth.NewParams().
		Set("symbol", sym).
		Set("side", req.Side.Exchange()).
		Set("type", "LIMIT").
		Set("timeInForce", "GTC").
		Set("quantity", qtyStr).
		Set("price", priceStr).
		Set("newClientOrderId", encodeClientOrderID(req.OrderID))

	payload, err := g.signedCall(http.MethodPost, "/api/v3/order", params)
	if err != nil {
		observability.Log().Error("order submit failed",
			observability.F("order", req.OrderID),
			observability.F("error", err.Error()))
		g.reject(req, "submit failed")
		return
	}
	var resp struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.reject(req, "malformed order response")
		return
	}

	g.idMu.Lock()
	g.exchangeID[req.OrderID] = strconv.FormatInt(resp.OrderID, 10)
	g.meta[req.OrderID] = orderMeta{clientID: req.ClientID, tickerID: req.TickerID, side: req.Side}
	g.idMu.Unlock()

	observability.Telemetry().IncCounter(observability.MetricOrdersSubmitted, 1,
		map[string]string{"symbol": sym})
	g.emit(schema.ClientResponse{
		Type:          schema.ClientResponseAccepted,
		ClientID:      req.ClientID,
		TickerID:      req.TickerID,
		ClientOrderID: req.OrderID,
		MarketOrderID: strconv.FormatInt(resp.OrderID, 10),
		Side:          req.Side,
		Price:         numeric.PriceFromDecimal(price),
		ExecQty:       0,
		LeavesQty:     numeric.QtyFromDecimal(qty),
	})
}

func (g *Gateway) processCancel(req schema.ClientRequest) {
	g.idMu.Lock()
	_, isDead := g.dead[req.OrderID]
	exchID, mapped := g.exchangeID[req.OrderID]
	g.idMu.Unlock()
	if isDead {
		// Terminal orders emit nothing further.
		observability.Log().Debug("cancel on dead order ignored",
			observability.F("order", req.OrderID))
		return
	}
	sym, ok := g.cfg.Catalog.Symbol(req.TickerID)
	if !ok {
		g.reject(req, "unknown ticker")
		return
	}
	if !mapped {
		exchID = strconv.FormatUint(uint64(req.OrderID), 10)
	}

	params := auth.NewParams().
		Set("symbol", sym).
		Set("orderId", exchID)
	if _, err := g.signedCall(http.MethodDelete, "/api/v3/order", params); err != nil {
		observability.Log().Error("cancel failed",
			observability.F("order", req.OrderID),
			observability.F("error", err.Error()))
		g.reject(req, "cancel failed")
		return
	}

	g.idMu.Lock()
	g.dead[req.OrderID] = struct{}{}
	g.idMu.Unlock()
	g.emit(schema.ClientResponse{
		Type:          schema.ClientResponseCanceled,
		ClientID:      req.ClientID,
		TickerID:      req.TickerID,
		ClientOrderID: req.OrderID,
		MarketOrderID: exchID,
		Side:          req.Side,
		Price:         req.Price,
		ExecQty:       0,
		LeavesQty:     0,
	})
}

func (g *Gateway) processUserData(payload []byte) {
	eventType, err := parseEventType(payload)
	if err != nil {
		observability.Log().Warn("user-data frame dropped",
			observability.F("error", err.Error()))
		return
	}
	switch eventType {
	case "executionReport":
		g.processExecutionReport(payload)
	case "outboundAccountPosition":
		g.processAccountPosition(payload)
	case "connection_failure":
		observability.Log().Error("user-data stream lost permanently")
	default:
		observability.Log().Debug("user-data event ignored",
			observability.F("type", eventType))
	}
}

func (g *Gateway) processExecutionReport(payload []byte) {
	var report executionReport
	if err := json.Unmarshal(payload, &report); err != nil {
		observability.Log().Warn("malformed execution report",
			observability.F("error", err.Error()))
		return
	}
	orderID, err := decodeClientOrderID(report.ClientOrderID)
	if err != nil {
		observability.Log().Warn("execution report skipped",
			observability.F("error", err.Error()))
		return
	}
	respType, known := mapExecStatus(report.Status)
	if !known {
		observability.Log().Debug("execution status ignored",
			observability.F("status", report.Status),
			observability.F("order", orderID))
		return
	}

	g.idMu.Lock()
	_, isDead := g.dead[orderID]
	if !isDead {
		g.exchangeID[orderID] = strconv.FormatInt(report.ExchangeOrderID, 10)
	}
	meta := g.meta[orderID]
	g.idMu.Unlock()
	if isDead {
		return
	}

	price, err := numeric.PriceFromString(report.Price)
	if err != nil {
		price = numeric.PriceInvalid
	}
	orderQty, err := numeric.QtyFromString(report.Qty)
	if err != nil {
		return
	}
	filled, err := numeric.QtyFromString(report.FilledQty)
	if err != nil {
		return
	}
	leaves := orderQty - filled
	if leaves < 0 {
		leaves = 0
	}

	tickerID := meta.tickerID
	if id, ok := g.cfg.Catalog.Ticker(report.Symbol); ok {
		tickerID = id
	}
	side := parseSide(report.Side)
	if side == schema.SideInvalid {
		side = meta.side
	}

	observability.Log().Info("execution report",
		observability.F("order", orderID),
		observability.F("status", report.Status),
		observability.F("filled", filled.String()))
	g.emit(schema.ClientResponse{
		Type:          respType,
		ClientID:      meta.clientID,
		TickerID:      tickerID,
		ClientOrderID: orderID,
		MarketOrderID: strconv.FormatInt(report.ExchangeOrderID, 10),
		Side:          side,
		Price:         price,
		ExecQty:       filled,
		LeavesQty:     leaves,
	})
	if respType.Terminal() {
		g.idMu.Lock()
		g.dead[orderID] = struct{}{}
		g.idMu.Unlock()
	}
}

func (g *Gateway) processAccountPosition(payload []byte) {
	var pos accountPosition
	if err := json.Unmarshal(payload, &pos); err != nil {
		observability.Log().Warn("malformed account position",
			observability.F("error", err.Error()))
		return
	}
	for _, b := range pos.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		g.balances.update(b.Asset, free)
	}
	observability.Log().Debug("account position applied",
		observability.F("assets", len(pos.Balances)))
}

// reject surfaces a failed request as CANCEL_REJECTED; nothing is thrown
// across the queue boundary.
func (g *Gateway) reject(req schema.ClientRequest, reason string) {
	observability.Log().Warn("request rejected",
		observability.F("order", req.OrderID),
		observability.F("reason", reason))
	g.emit(schema.ClientResponse{
		Type:          schema.ClientResponseCancelRejected,
		ClientID:      req.ClientID,
		TickerID:      req.TickerID,
		ClientOrderID: req.OrderID,
		Side:          req.Side,
		Price:         req.Price,
		ExecQty:       0,
		LeavesQty:     0,
	})
}

func (g *Gateway) emit(resp schema.ClientResponse) {
	g.idMu.Lock()
	g.seq++
	g.idMu.Unlock()
	if !g.cfg.Responses.Push(resp) {
		observability.Telemetry().IncCounter(observability.MetricQueueDrops, 1,
			map[string]string{"queue": "responses"})
		observability.Log().Error("response queue full, dropping",
			observability.F("response", resp.String()))
		return
	}
	observability.Telemetry().IncCounter(observability.MetricResponsesEmitted, 1, nil)
}

func (g *Gateway) signedCall(method, path string, params *auth.Params) ([]byte, error) {
	if g.cfg.RecvWindow > 0 && !params.Has("recvWindow") {
		params.Set("recvWindow", strconv.FormatInt(g.cfg.RecvWindow, 10))
	}
	signed, err := g.cfg.Auth.Sign(params)
	if err != nil {
		return nil, err
	}
	headers := make(http.Header)
	if err := g.cfg.Auth.AuthHeaders(headers); err != nil {
		return nil, err
	}
	return g.cfg.REST.Do(g.ctx, method, g.cfg.RESTBase, path, signed, headers, nil)
}
