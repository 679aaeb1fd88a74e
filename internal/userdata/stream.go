// Package userdata manages the authenticated user-data WebSocket stream:
// listen-key lifecycle, keep-alive, reconnects, and event delivery.
package userdata

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc"

	"github.com/praveen686/omlaxmiquant/internal/auth"
	"github.com/praveen686/omlaxmiquant/internal/config"
	"github.com/praveen686/omlaxmiquant/internal/errs"
	"github.com/praveen686/omlaxmiquant/internal/observability"
	"github.com/praveen686/omlaxmiquant/internal/transport"
)

// ConnectionFailureEvent is the synthetic frame delivered to the handler
// when reconnect attempts are exhausted.
const ConnectionFailureEvent = `{"e":"connection_failure"}`

// Config wires the stream's collaborators.
type Config struct {
	REST     *transport.RESTClient
	Auth     *auth.Authenticator
	RESTBase string
	WSBase   string

	// Handler receives every inbound frame verbatim, plus the synthetic
	// connection-failure event.
	Handler func(payload []byte)

	KeepAliveInterval time.Duration
	Reconnect         config.ReconnectConfig
}

// Stream owns the listen key and the user-data WebSocket session.
type Stream struct {
	cfg Config

	keyMu     sync.Mutex
	listenKey string

	ctx    context.Context
	cancel context.CancelFunc
	ws     *transport.WSClient
	wg     conc.WaitGroup
}

// NewStream builds an unstarted stream.
func NewStream(cfg Config) *Stream {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 30 * time.Minute
	}
	return &Stream{cfg: cfg}
}

// Start connects the stream and launches the keep-alive timer. Every dial
// (initial and reconnect) acquires a fresh listen key.
func (s *Stream) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.ws = transport.NewWSClient(s.ctx, transport.WSConfig{
		Name: "userdata",
		Endpoint: func(ctx context.Context) (string, error) {
			key, err := s.createListenKey(ctx)
			if err != nil {
				return "", err
			}
			return s.cfg.WSBase + "/ws/" + key, nil
		},
		OnMessage: s.cfg.Handler,
		OnExhausted: func() {
			observability.Log().Error("user-data reconnects exhausted")
			if s.cfg.Handler != nil {
				s.cfg.Handler([]byte(ConnectionFailureEvent))
			}
		},
		InitialDelay: s.cfg.Reconnect.InitialDelay,
		MaxDelay:     s.cfg.Reconnect.MaxDelay,
		MaxAttempts:  s.cfg.Reconnect.MaxAttempts,
	})
	s.ws.Start()
	s.wg.Go(s.keepAliveLoop)
}

// Stop closes the listen key at the exchange and tears the session down.
func (s *Stream) Stop() {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.closeListenKey(closeCtx); err != nil {
		observability.Log().Warn("listen key close failed",
			observability.F("error", err.Error()))
	}
	s.cancel()
	s.ws.Stop()
	s.wg.Wait()
}

// ListenKey reports the key of the active session.
func (s *Stream) ListenKey() string {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	return s.listenKey
}

func (s *Stream) keepAliveLoop() {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.keepAlive(s.ctx); err != nil {
			observability.Log().Warn("listen key keep-alive failed, rotating",
				observability.F("error", err.Error()))
			// Force a redial; the endpoint resolver fetches a new key.
			s.ws.Kick()
		}
	}
}

type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

func (s *Stream) createListenKey(ctx context.Context) (string, error) {
	headers := make(http.Header)
	if err := s.cfg.Auth.AuthHeaders(headers); err != nil {
		return "", err
	}
	payload, err := s.cfg.REST.Do(ctx, http.MethodPost, s.cfg.RESTBase, "/api/v3/userDataStream", "", headers, nil)
	if err != nil {
		return "", err
	}
	var resp listenKeyResponse
	if err := json.Unmarshal(payload, &resp); err != nil || resp.ListenKey == "" {
		return "", errs.New("userdata/listen-key", errs.CodeProtocol,
			errs.WithMessage("malformed listenKey response"), errs.WithCause(err))
	}
	s.keyMu.Lock()
	s.listenKey = resp.ListenKey
	s.keyMu.Unlock()
	return resp.ListenKey, nil
}

func (s *Stream) keepAlive(ctx context.Context) error {
	key := s.ListenKey()
	if key == "" {
		return errs.New("userdata/keepalive", errs.CodeInvalid,
			errs.WithMessage("no listen key held"))
	}
	headers := make(http.Header)
	if err := s.cfg.Auth.AuthHeaders(headers); err != nil {
		return err
	}
	query := "listenKey=" + url.QueryEscape(key)
	_, err := s.cfg.REST.Do(ctx, http.MethodPut, s.cfg.RESTBase, "/api/v3/userDataStream", query, headers, nil)
	return err
}

func (s *Stream) closeListenKey(ctx context.Context) error {
	key := s.ListenKey()
	if key == "" {
		return nil
	}
	headers := make(http.Header)
	if err := s.cfg.Auth.AuthHeaders(headers); err != nil {
		return err
	}
	query := "listenKey=" + url.QueryEscape(key)
	_, err := s.cfg.REST.Do(ctx, http.MethodDelete, s.cfg.RESTBase, "/api/v3/userDataStream", query, headers, nil)
	return err
}
