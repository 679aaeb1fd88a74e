package userdata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/praveen686/omlaxmiquant/internal/auth"
	"github.com/praveen686/omlaxmiquant/internal/config"
	"github.com/praveen686/omlaxmiquant/internal/transport"
	"github.com/praveen686/omlaxmiquant/internal/userdata"
)

// fakeExchange serves both the listen-key REST endpoints and the user-data
// WebSocket on one listener.
type fakeExchange struct {
	t *testing.T

	mu        sync.Mutex
	created   int
	keepAlive []string
	closed    []string
	wsPaths   []string
	failPut   bool

	srv *httptest.Server
}

func newFakeExchange(t *testing.T) *fakeExchange {
	f := &fakeExchange{t: t}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeExchange) handle(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/ws/") {
		f.mu.Lock()
		f.wsPaths = append(f.wsPaths, r.URL.Path)
		f.mu.Unlock()
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(`{"e":"executionReport"}`))
		_, _, _ = conn.Read(r.Context())
		return
	}

	require.Equal(f.t, "/api/v3/userDataStream", r.URL.Path)
	require.NotEmpty(f.t, r.Header.Get("X-MBX-APIKEY"))
	switch r.Method {
	case http.MethodPost:
		f.mu.Lock()
		f.created++
		key := "key-" + strconv.Itoa(f.created)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"listenKey":"` + key + `"}`))
	case http.MethodPut:
		f.mu.Lock()
		fail := f.failPut
		f.keepAlive = append(f.keepAlive, r.URL.Query().Get("listenKey"))
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":-1125,"msg":"This listenKey does not exist."}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	case http.MethodDelete:
		f.mu.Lock()
		f.closed = append(f.closed, r.URL.Query().Get("listenKey"))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeExchange) wsBase() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func newTestStream(f *fakeExchange, handler func([]byte), keepAlive time.Duration, attempts int) *userdata.Stream {
	return userdata.NewStream(userdata.Config{
		REST:              transport.NewRESTClient(time.Second),
		Auth:              auth.NewFromCredentials(config.Credentials{APIKey: "k", SecretKey: "s"}),
		RESTBase:          f.srv.URL,
		WSBase:            f.wsBase(),
		Handler:           handler,
		KeepAliveInterval: keepAlive,
		Reconnect: config.ReconnectConfig{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			MaxAttempts:  attempts,
		},
	})
}

func TestStreamDeliversFrames(t *testing.T) {
	f := newFakeExchange(t)
	frames := make(chan string, 8)
	s := newTestStream(f, func(p []byte) { frames <- string(p) }, time.Hour, 0)

	s.Start(context.Background())
	defer s.Stop()

	select {
	case frame := <-frames:
		require.Equal(t, `{"e":"executionReport"}`, frame)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame delivered")
	}
	require.Equal(t, "key-1", s.ListenKey())
}

func TestKeepAliveFailureRotatesKey(t *testing.T) {
	f := newFakeExchange(t)
	frames := make(chan string, 8)
	s := newTestStream(f, func(p []byte) { frames <- string(p) }, 50*time.Millisecond, 0)

	s.Start(context.Background())
	defer s.Stop()
	<-frames // first session is up

	f.mu.Lock()
	f.failPut = true
	f.mu.Unlock()

	// The failed PUT kicks the session; the redial creates a new key.
	deadline := time.Now().Add(5 * time.Second)
	for {
		f.mu.Lock()
		created := f.created
		f.mu.Unlock()
		if created >= 2 {
			break
		}
		require.False(t, time.Now().After(deadline), "no key rotation observed")
		time.Sleep(10 * time.Millisecond)
	}

	deadline = time.Now().Add(5 * time.Second)
	for s.ListenKey() == "key-1" {
		require.False(t, time.Now().After(deadline), "listen key never rotated")
		time.Sleep(10 * time.Millisecond)
	}
	f.mu.Lock()
	require.Contains(t, f.wsPaths, "/ws/key-1")
	require.Contains(t, f.wsPaths, "/ws/"+s.ListenKey())
	f.mu.Unlock()
}

func TestExhaustionEmitsSyntheticEvent(t *testing.T) {
	f := newFakeExchange(t)
	frames := make(chan string, 8)
	s := userdata.NewStream(userdata.Config{
		REST:              transport.NewRESTClient(time.Second),
		Auth:              auth.NewFromCredentials(config.Credentials{APIKey: "k", SecretKey: "s"}),
		RESTBase:          f.srv.URL,
		WSBase:            "ws://127.0.0.1:1", // unreachable stream host
		Handler:           func(p []byte) { frames <- string(p) },
		KeepAliveInterval: time.Hour,
		Reconnect: config.ReconnectConfig{
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     10 * time.Millisecond,
			MaxAttempts:  2,
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	select {
	case frame := <-frames:
		require.JSONEq(t, userdata.ConnectionFailureEvent, frame)
	case <-time.After(5 * time.Second):
		t.Fatal("no synthetic failure event")
	}
}

func TestStopClosesListenKey(t *testing.T) {
	f := newFakeExchange(t)
	frames := make(chan string, 8)
	s := newTestStream(f, func(p []byte) { frames <- string(p) }, time.Hour, 0)

	s.Start(context.Background())
	<-frames
	s.Stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, []string{"key-1"}, f.closed)
}
