package auth

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praveen686/omlaxmiquant/internal/config"
	"github.com/praveen686/omlaxmiquant/internal/errs"
)

func TestParamsPreserveInsertionOrder(t *testing.T) {
	p := NewParams().
		Set("symbol", "BTCUSDT").
		Set("side", "BUY").
		Set("quantity", "0.001")
	require.Equal(t, "symbol=BTCUSDT&side=BUY&quantity=0.001", p.Encode())

	p.Set("side", "SELL")
	require.Equal(t, "symbol=BTCUSDT&side=SELL&quantity=0.001", p.Encode(), "replace keeps position")
	require.Equal(t, 3, p.Len())
}

// Golden vector from the exchange API documentation.
func TestSignMatchesDocumentedVector(t *testing.T) {
	a := NewFromCredentials(config.Credentials{
		APIKey:    "vmPUZE6mv9SD5VNHk4HlWFsOr6aKE2zvsw0MuIgwCIPy6utIco14y7Ju91duEh8A",
		SecretKey: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j",
	})
	p := NewParams().
		Set("symbol", "LTCBTC").
		Set("side", "BUY").
		Set("type", "LIMIT").
		Set("timeInForce", "GTC").
		Set("quantity", "1").
		Set("price", "0.1").
		Set("recvWindow", "5000").
		Set("timestamp", "1499827319559")

	signed, err := a.Sign(p)
	require.NoError(t, err)
	require.Equal(t,
		"symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"+
			"&signature=c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71",
		signed)
}

func TestSignAppendsTimestampWhenAbsent(t *testing.T) {
	a := NewFromCredentials(config.Credentials{APIKey: "k", SecretKey: "s"})
	p := NewParams().Set("symbol", "BTCUSDT")
	signed, err := a.Sign(p)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed, "symbol=BTCUSDT&timestamp="))
	require.Contains(t, signed, "&signature=")

	// The signature covers the exact query preceding it.
	ts, ok := p.Get("timestamp")
	require.True(t, ok)
	require.NotEmpty(t, ts)
}

func TestAuthHeaders(t *testing.T) {
	a := NewFromCredentials(config.Credentials{APIKey: "the-key", SecretKey: "s"})
	h := make(http.Header)
	require.NoError(t, a.AuthHeaders(h))
	require.Equal(t, "the-key", h.Get("X-MBX-APIKEY"))
}

func TestInvalidAuthenticatorRefusesOperations(t *testing.T) {
	a, err := New(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	require.False(t, a.Valid())

	_, err = a.Sign(NewParams())
	require.True(t, errs.HasCode(err, errs.CodeAuth))
	require.True(t, errs.HasCode(a.AuthHeaders(make(http.Header)), errs.CodeAuth))
}

func TestReloadRecoversCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	a, err := New(path)
	require.Error(t, err)

	body := `{"binance_testnet":{"api_key":"k","secret_key":"s","use_testnet":true}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	require.NoError(t, a.Reload())
	require.True(t, a.Valid())
	require.True(t, a.UseTestnet())
	require.Equal(t, "https://testnet.binance.vision", a.RESTBaseURL())
	require.Equal(t, "wss://stream.testnet.binance.vision", a.WSBaseURL())
}

func TestLiveBaseURLs(t *testing.T) {
	a := NewFromCredentials(config.Credentials{APIKey: "k", SecretKey: "s", UseTestnet: false})
	require.Equal(t, "https://api.binance.com", a.RESTBaseURL())
	require.Equal(t, "wss://stream.binance.com:9443", a.WSBaseURL())
}
