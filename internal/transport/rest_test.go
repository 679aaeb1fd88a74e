package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/praveen686/omlaxmiquant/internal/errs"
	"github.com/praveen686/omlaxmiquant/internal/transport"
)

func TestDoReturnsBody(t *testing.T) {
	var sawHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawHeader = r.Header.Get("X-MBX-APIKEY")
		require.Equal(t, "/api/v3/ping", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := transport.NewRESTClient(time.Second)
	headers := make(http.Header)
	headers.Set("X-MBX-APIKEY", "key")
	body, err := client.Do(context.Background(), http.MethodGet, srv.URL, "/api/v3/ping", "", headers, nil)
	require.NoError(t, err)
	require.Equal(t, `{}`, string(body))
	require.Equal(t, "key", sawHeader)
}

func TestDoDecodesExchangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance"}`))
	}))
	defer srv.Close()

	client := transport.NewRESTClient(time.Second)
	_, err := client.Do(context.Background(), http.MethodPost, srv.URL, "/api/v3/order", "symbol=BTCUSDT", nil, nil)
	require.True(t, errs.HasCode(err, errs.CodeRejected))

	var envelope *errs.E
	require.ErrorAs(t, err, &envelope)
	require.Equal(t, 400, envelope.HTTP)
	require.Equal(t, "-2010", envelope.RawCode)
	require.Equal(t, "Account has insufficient balance", envelope.RawMsg)
}

func TestDoTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := transport.NewRESTClient(20 * time.Millisecond)
	_, err := client.Do(context.Background(), http.MethodGet, srv.URL, "/api/v3/depth", "symbol=BTCUSDT", nil, nil)
	require.True(t, errs.HasCode(err, errs.CodeTimeout), "got %v", err)
}

func TestPing(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := transport.NewRESTClient(time.Second)
	require.NoError(t, client.Ping(context.Background(), srv.URL))
	require.Equal(t, "/api/v3/ping", path)

	err := client.Ping(context.Background(), "http://127.0.0.1:1")
	require.True(t, errs.HasCode(err, errs.CodeTransport), "got %v", err)
}

func TestDoConnectionRefused(t *testing.T) {
	client := transport.NewRESTClient(time.Second)
	_, err := client.Do(context.Background(), http.MethodGet, "http://127.0.0.1:1", "/api/v3/ping", "", nil, nil)
	require.True(t, errs.HasCode(err, errs.CodeTransport), "got %v", err)
}
