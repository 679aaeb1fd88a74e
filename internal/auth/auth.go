// Package auth loads exchange credentials and signs REST requests.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/praveen686/omlaxmiquant/internal/config"
	"github.com/praveen686/omlaxmiquant/internal/errs"
)

// Exchange base URLs selected by the testnet flag.
const (
	restBaseLive    = "https://api.binance.com"
	restBaseTestnet = "https://testnet.binance.vision"
	wsBaseLive      = "wss://stream.binance.com:9443"
	wsBaseTestnet   = "wss://stream.testnet.binance.vision"
)

// Authenticator holds credentials and produces signed queries and headers.
type Authenticator struct {
	mu    sync.RWMutex
	path  string
	creds config.Credentials
	valid bool

	// now is swappable for deterministic signing tests.
	now func() time.Time
}

// New loads the credential vault at path. A load failure returns an
// authenticator in the invalid state alongside the error so callers can
// decide whether to refuse startup.
func New(path string) (*Authenticator, error) {
	a := &Authenticator{path: path, now: time.Now}
	creds, err := config.LoadVault(path)
	if err != nil {
		return a, err
	}
	a.creds = creds
	a.valid = true
	return a, nil
}

// NewFromCredentials builds an authenticator around in-memory credentials.
func NewFromCredentials(creds config.Credentials) *Authenticator {
	return &Authenticator{creds: creds, valid: true, now: time.Now}
}

// Reload re-reads the vault; existing credentials survive a failed reload.
func (a *Authenticator) Reload() error {
	if a.path == "" {
		return errs.New("auth/reload", errs.CodeCredentialsMissing,
			errs.WithMessage("no vault path configured"))
	}
	creds, err := config.LoadVault(a.path)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.creds = creds
	a.valid = true
	a.mu.Unlock()
	return nil
}

// Valid reports whether signing operations can proceed.
func (a *Authenticator) Valid() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.valid
}

// UseTestnet reports the configured environment.
func (a *Authenticator) UseTestnet() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.creds.UseTestnet
}

// RESTBaseURL returns the REST host for the configured environment.
func (a *Authenticator) RESTBaseURL() string {
	if a.UseTestnet() {
		return restBaseTestnet
	}
	return restBaseLive
}

// WSBaseURL returns the stream host for the configured environment.
func (a *Authenticator) WSBaseURL() string {
	if a.UseTestnet() {
		return wsBaseTestnet
	}
	return wsBaseLive
}

// Sign appends a millisecond timestamp when absent, computes HMAC-SHA256
// over the encoded query under the secret key, and returns
// "<query>&signature=<lowercase hex>".
func (a *Authenticator) Sign(params *Params) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.valid {
		return "", errs.New("auth/sign", errs.CodeAuth,
			errs.WithMessage("authenticator holds no credentials"))
	}
	if params == nil {
		params = NewParams()
	}
	if !params.Has("timestamp") {
		params.Set("timestamp", strconv.FormatInt(a.now().UnixMilli(), 10))
	}
	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(a.creds.SecretKey))
	mac.Write([]byte(query))
	signature := hex.EncodeToString(mac.Sum(nil))
	return query + "&signature=" + signature, nil
}

// AuthHeaders inserts the API key header used by both signed and key-only
// endpoints.
func (a *Authenticator) AuthHeaders(h http.Header) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.valid {
		return errs.New("auth/headers", errs.CodeAuth,
			errs.WithMessage("authenticator holds no credentials"))
	}
	h.Set("X-MBX-APIKEY", a.creds.APIKey)
	return nil
}
