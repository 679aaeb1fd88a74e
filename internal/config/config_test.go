package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/praveen686/omlaxmiquant/internal/config"
	"github.com/praveen686/omlaxmiquant/internal/errs"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app.yaml", `
log_level: debug
http_timeout: 2s
snapshot_interval: 10s
queues:
  requests: 16
  responses: 16
  market_updates: 4096
reconnect:
  initial_delay: 1s
  max_delay: 30s
  max_attempts: 5
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 2*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 16, cfg.Queues.Requests)
	require.Equal(t, 4096, cfg.Queues.MarketUpdates)
	require.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	// Untouched keys keep defaults.
	require.Equal(t, 1000, cfg.SnapshotDepth)
	require.Equal(t, 30*time.Minute, cfg.KeepAliveInterval)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app.yaml", "http_timeout: -1s\n")
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadVault(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "credentials.json",
		`{"binance_testnet":{"api_key":"k","secret_key":"s","use_testnet":true}}`)
	creds, err := config.LoadVault(path)
	require.NoError(t, err)
	require.Equal(t, "k", creds.APIKey)
	require.Equal(t, "s", creds.SecretKey)
	require.True(t, creds.UseTestnet)
}

func TestLoadVaultMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "credentials.json", `{"binance_testnet":{"api_key":" "}}`)
	_, err := config.LoadVault(path)
	require.True(t, errs.HasCode(err, errs.CodeCredentialsMissing))

	_, err = config.LoadVault(filepath.Join(dir, "absent.json"))
	require.True(t, errs.HasCode(err, errs.CodeCredentialsMissing))
}

func TestLoadTickers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tickers.json", `{
  "binance": {
    "use_testnet": true,
    "tickers": [
      {"ticker_id": 0, "symbol": "BTCUSDT", "base_asset": "BTC", "quote_asset": "USDT",
       "min_qty": "0.0001", "max_qty": "10", "step_size": "0.0001", "min_notional": "5",
       "price_precision": 2, "qty_precision": 4, "test_price": "30000", "test_qty": "0.001"}
    ],
    "order_gateway": {"max_reconnect_attempts": 3},
    "cache_settings": {"exchange_info_ttl_minutes": 60}
  }
}`)
	file, err := config.LoadTickers(path)
	require.NoError(t, err)
	require.Len(t, file.Binance.Tickers, 1)
	require.Equal(t, "BTCUSDT", file.Binance.Tickers[0].Symbol)
	require.Equal(t, 3, file.Binance.OrderGateway.MaxReconnectAttempts)
	require.Equal(t, 60, file.Binance.CacheSettings.ExchangeInfoTTLMinutes)
}

func TestLoadTickersRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tickers.json", `{
  "binance": {"tickers": [
    {"ticker_id": 1, "symbol": "BTCUSDT"},
    {"ticker_id": 1, "symbol": "ETHUSDT"}
  ]}
}`)
	_, err := config.LoadTickers(path)
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}
