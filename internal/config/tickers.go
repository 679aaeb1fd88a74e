package config

import (
	"os"

	json "github.com/goccy/go-json"

	"github.com/praveen686/omlaxmiquant/internal/errs"
)

// Ticker maps an engine ticker id onto an exchange symbol, with fallback
// filter values and testnet safety ceilings.
type Ticker struct {
	TickerID       uint32 `json:"ticker_id"`
	Symbol         string `json:"symbol"`
	BaseAsset      string `json:"base_asset"`
	QuoteAsset     string `json:"quote_asset"`
	MinQty         string `json:"min_qty"`
	MaxQty         string `json:"max_qty"`
	StepSize       string `json:"step_size"`
	MinNotional    string `json:"min_notional"`
	PricePrecision int32  `json:"price_precision"`
	QtyPrecision   int32  `json:"qty_precision"`
	TestPrice      string `json:"test_price"`
	TestQty        string `json:"test_qty"`
}

// OrderGatewaySettings tunes the order path.
type OrderGatewaySettings struct {
	MaxReconnectAttempts int   `json:"max_reconnect_attempts"`
	RecvWindowMillis     int64 `json:"recv_window_ms"`
}

// CacheSettings tunes the exchangeInfo cache.
type CacheSettings struct {
	ExchangeInfoTTLMinutes int `json:"exchange_info_ttl_minutes"`
}

// TickerFile is the on-disk symbol configuration layout.
type TickerFile struct {
	Binance struct {
		UseTestnet    bool                 `json:"use_testnet"`
		Tickers       []Ticker             `json:"tickers"`
		OrderGateway  OrderGatewaySettings `json:"order_gateway"`
		CacheSettings CacheSettings        `json:"cache_settings"`
	} `json:"binance"`
}

// LoadTickers reads the symbol configuration file at path.
func LoadTickers(path string) (TickerFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return TickerFile{}, errs.New("config/tickers", errs.CodeInvalid,
			errs.WithMessage("read ticker file"), errs.WithCause(err))
	}
	var file TickerFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return TickerFile{}, errs.New("config/tickers", errs.CodeInvalid,
			errs.WithMessage("malformed ticker file"), errs.WithCause(err))
	}
	if len(file.Binance.Tickers) == 0 {
		return TickerFile{}, errs.New("config/tickers", errs.CodeInvalid,
			errs.WithMessage("no tickers configured"))
	}
	seen := make(map[uint32]struct{}, len(file.Binance.Tickers))
	for _, t := range file.Binance.Tickers {
		if t.Symbol == "" {
			return TickerFile{}, errs.New("config/tickers", errs.CodeInvalid,
				errs.WithMessage("ticker without symbol"))
		}
		if _, dup := seen[t.TickerID]; dup {
			return TickerFile{}, errs.New("config/tickers", errs.CodeInvalid,
				errs.WithMessage("duplicate ticker_id"))
		}
		seen[t.TickerID] = struct{}{}
	}
	return file, nil
}
