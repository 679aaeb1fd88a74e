package symbol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/praveen686/omlaxmiquant/internal/config"
	"github.com/praveen686/omlaxmiquant/internal/transport"
)

const exchangeInfoBody = `{
  "symbols": [
    {
      "symbol": "BTCUSDT", "baseAsset": "BTC", "quoteAsset": "USDT",
      "filters": [
        {"filterType": "PRICE_FILTER", "tickSize": "0.01", "minPrice": "0.01", "maxPrice": "1000000"},
        {"filterType": "LOT_SIZE", "minQty": "0.00001", "maxQty": "9000", "stepSize": "0.00001"},
        {"filterType": "NOTIONAL", "minNotional": "5"},
        {"filterType": "PERCENT_PRICE_BY_SIDE", "bidMultiplierUp": "1.2", "bidMultiplierDown": "0.8",
         "askMultiplierUp": "5", "askMultiplierDown": "0.2"}
      ]
    },
    {"symbol": "IGNOREDUSDT", "baseAsset": "IGN", "quoteAsset": "USDT", "filters": []}
  ]
}`

func testTickers() []config.Ticker {
	return []config.Ticker{{
		TickerID:   0,
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		MinQty:     "0.0001",
		StepSize:   "0.0001",
	}}
}

func TestCatalogResolvesTickers(t *testing.T) {
	c := NewCatalog(nil, "", testTickers(), 0)

	sym, ok := c.Symbol(0)
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", sym)

	id, ok := c.Ticker("btcusdt")
	require.True(t, ok)
	require.Equal(t, uint32(0), uint32(id))

	_, ok = c.Symbol(99)
	require.False(t, ok)
	require.Equal(t, []string{"BTCUSDT"}, c.Symbols())

	fb, ok := c.Fallback("BTCUSDT")
	require.True(t, ok)
	require.Equal(t, "0.0001", fb.MinQty)
}

func TestGetParsesFilters(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		calls.Add(1)
		_, _ = w.Write([]byte(exchangeInfoBody))
	}))
	defer srv.Close()

	c := NewCatalog(transport.NewRESTClient(time.Second), srv.URL, testTickers(), time.Hour)
	info, err := c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, "0.01", info.TickSize.String())
	require.Equal(t, "0.00001", info.StepSize.String())
	require.Equal(t, "5", info.MinNotional.String())
	require.Equal(t, "1.2", info.Percent.BidUp.String())
	require.Equal(t, "0.2", info.Percent.AskDown.String())

	// Second lookup within the TTL serves from cache.
	_, err = c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestGetRefreshesAfterTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(exchangeInfoBody))
	}))
	defer srv.Close()

	c := NewCatalog(transport.NewRESTClient(time.Second), srv.URL, testTickers(), time.Hour)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	_, err := c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	clock = clock.Add(61 * time.Minute)
	_, err = c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestRefreshFailureKeepsEntries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(exchangeInfoBody))
	}))
	defer srv.Close()

	c := NewCatalog(transport.NewRESTClient(time.Second), srv.URL, testTickers(), time.Hour)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	info, err := c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	stale, err := c.Get(context.Background(), "BTCUSDT")
	require.NoError(t, err, "stale entry should survive a failed refresh")
	require.Equal(t, info, stale)
}

func TestGetUnknownSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(exchangeInfoBody))
	}))
	defer srv.Close()

	c := NewCatalog(transport.NewRESTClient(time.Second), srv.URL, testTickers(), time.Hour)
	_, err := c.Get(context.Background(), "DOGEUSDT")
	require.Error(t, err)
}
