package transport

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/praveen686/omlaxmiquant/internal/observability"
)

// WSConfig configures a reconnecting WebSocket session.
type WSConfig struct {
	// Name labels the session in logs and metrics (e.g. "btcusdt@depth").
	Name string
	// Endpoint resolves the URL to dial. It is re-invoked before every
	// connection attempt so sessions whose URL embeds rotating state (the
	// user-data listen key) pick up a fresh value.
	Endpoint func(ctx context.Context) (string, error)
	// OnMessage receives every inbound frame verbatim.
	OnMessage func(payload []byte)
	// OnState observes connectivity transitions. Invoked with false on every
	// disconnect so owners can mark dependent state dirty.
	OnState func(connected bool)
	// OnExhausted fires once when MaxAttempts consecutive failures occur.
	OnExhausted func()

	InitialDelay time.Duration
	MaxDelay     time.Duration
	// MaxAttempts bounds consecutive failed attempts, counting both dial
	// failures and sessions that drop early; 0 means unlimited. The counter
	// resets once a session stays up past the longest backoff interval.
	MaxAttempts int
}

// WSClient holds one long-lived duplex session and reconnects with
// exponential backoff on any dial or read failure.
type WSClient struct {
	cfg    WSConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn

	done chan struct{}
}

// NewWSClient builds a client; Start launches the session.
func NewWSClient(ctx context.Context, cfg WSConfig) *WSClient {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = 30 * time.Second
	}
	clientCtx, cancel := context.WithCancel(ctx)
	return &WSClient{
		cfg:    cfg,
		ctx:    clientCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start runs the connect/read/reconnect loop in a background goroutine.
func (c *WSClient) Start() {
	go c.run()
}

// Stop cancels the session and waits for the loop to exit.
func (c *WSClient) Stop() {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "shutdown")
		c.conn = nil
	}
	c.mu.Unlock()
	<-c.done
}

// Kick closes the active connection so the loop redials, re-resolving the
// endpoint. Used to rotate session state such as the user-data listen key.
func (c *WSClient) Kick() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "rotate")
	}
	c.mu.Unlock()
}

func (c *WSClient) run() {
	defer close(c.done)

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = c.cfg.InitialDelay
	schedule.MaxInterval = c.cfg.MaxDelay
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0

	attempts := 0
	for {
		if c.ctx.Err() != nil {
			return
		}

		url, err := c.cfg.Endpoint(c.ctx)
		if err == nil {
			var conn *websocket.Conn
			conn, _, err = websocket.Dial(c.ctx, url, nil)
			if err == nil {
				session := uuid.NewString()
				c.mu.Lock()
				c.conn = conn
				c.mu.Unlock()
				conn.SetReadLimit(1 << 22)

				observability.Log().Info("ws connected",
					observability.F("stream", c.cfg.Name),
					observability.F("session", session))
				c.notifyState(true)

				started := time.Now()
				c.readLoop(conn)

				c.mu.Lock()
				c.conn = nil
				c.mu.Unlock()
				observability.Log().Warn("ws disconnected",
					observability.F("stream", c.cfg.Name),
					observability.F("session", session))
				observability.Telemetry().IncCounter(observability.MetricWSReconnects, 1,
					map[string]string{"stream": c.cfg.Name})
				c.notifyState(false)
				if c.ctx.Err() != nil {
					return
				}
				// A session that outlived the longest backoff interval ends
				// the failure streak. Anything shorter counts as one more
				// failed attempt and backs off like a failed dial, so a
				// server that accepts and immediately drops cannot induce a
				// zero-delay redial loop.
				if time.Since(started) >= c.cfg.MaxDelay {
					attempts = 0
					schedule.Reset()
				}
			}
		}

		attempts++
		if err != nil {
			observability.Log().Warn("ws connect failed",
				observability.F("stream", c.cfg.Name),
				observability.F("attempt", attempts),
				observability.F("error", err.Error()))
		}
		if c.cfg.MaxAttempts > 0 && attempts >= c.cfg.MaxAttempts {
			observability.Log().Error("ws reconnect attempts exhausted",
				observability.F("stream", c.cfg.Name))
			if c.cfg.OnExhausted != nil {
				c.cfg.OnExhausted()
			}
			return
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(schedule.NextBackOff()):
		}
	}
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.Read(c.ctx)
		if err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(payload)
		}
	}
}

func (c *WSClient) notifyState(connected bool) {
	if c.cfg.OnState != nil {
		c.cfg.OnState(connected)
	}
}
