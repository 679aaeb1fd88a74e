// Package transport carries the exchange-facing REST and WebSocket plumbing.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/praveen686/omlaxmiquant/internal/errs"
	"github.com/praveen686/omlaxmiquant/internal/observability"
)

// apiError is the exchange's JSON error body on non-2xx responses.
type apiError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

// RESTClient issues exchange REST requests. Every call runs on a fresh
// connection so a stale keep-alive socket can never poison an order.
type RESTClient struct {
	timeout time.Duration
	limiter *rate.Limiter
}

// NewRESTClient builds a client with the given per-request timeout. The
// limiter paces requests toward the exchange weight budget.
func NewRESTClient(timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RESTClient{
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

// Do performs method base+path?query and returns the response body.
// Non-2xx responses decode the exchange {code,msg} body into a rejected
// envelope; timeouts and connection errors map to their own codes.
func (c *RESTClient) Do(ctx context.Context, method, base, path, query string, headers http.Header, body io.Reader) ([]byte, error) {
	op := "transport/rest"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.New(op, errs.CodeTimeout, errs.WithMessage("rate limit wait"), errs.WithCause(err))
	}

	url := strings.TrimRight(base, "/") + path
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errs.New(op, errs.CodeInvalid, errs.WithMessage("build request"), errs.WithCause(err))
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Close = true

	client := &http.Client{
		Timeout:   c.timeout,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	started := time.Now()
	resp, err := client.Do(req)
	observability.Telemetry().ObserveHistogram(observability.MetricRESTLatency,
		float64(time.Since(started).Milliseconds()), map[string]string{"path": path})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, errs.New(op, errs.CodeTimeout, errs.WithMessage(method+" "+path), errs.WithCause(err))
		}
		return nil, errs.New(op, errs.CodeTransport, errs.WithMessage(method+" "+path), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(op, errs.CodeTransport, errs.WithMessage("read response"), errs.WithCause(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var exchErr apiError
		_ = json.Unmarshal(payload, &exchErr)
		return nil, errs.New(op, errs.CodeRejected,
			errs.WithMessage(method+" "+path),
			errs.WithHTTP(resp.StatusCode),
			errs.WithRawCode(fmt.Sprintf("%d", exchErr.Code)),
			errs.WithRawMessage(exchErr.Msg))
	}
	return payload, nil
}

// Ping issues GET /api/v3/ping against base as a connectivity check.
func (c *RESTClient) Ping(ctx context.Context, base string) error {
	_, err := c.Do(ctx, http.MethodGet, base, "/api/v3/ping", "", nil, nil)
	return err
}

func isClientTimeout(err error) bool {
	var urlErr interface{ Timeout() bool }
	return errors.As(err, &urlErr) && urlErr.Timeout()
}
