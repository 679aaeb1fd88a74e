package config

import (
	"os"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/praveen686/omlaxmiquant/internal/errs"
)

// Credentials carries the API key pair and environment selector.
type Credentials struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	UseTestnet bool   `json:"use_testnet"`
}

// Vault is the on-disk credential file layout.
type Vault struct {
	BinanceTestnet Credentials `json:"binance_testnet"`
}

// LoadVault reads and validates the credential file at path.
func LoadVault(path string) (Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, errs.New("config/vault", errs.CodeCredentialsMissing,
			errs.WithMessage("read credential file"), errs.WithCause(err))
	}
	var vault Vault
	if err := json.Unmarshal(raw, &vault); err != nil {
		return Credentials{}, errs.New("config/vault", errs.CodeCredentialsMissing,
			errs.WithMessage("malformed credential file"), errs.WithCause(err))
	}
	creds := vault.BinanceTestnet
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	creds.SecretKey = strings.TrimSpace(creds.SecretKey)
	if creds.APIKey == "" || creds.SecretKey == "" {
		return Credentials{}, errs.New("config/vault", errs.CodeCredentialsMissing,
			errs.WithMessage("api_key and secret_key are required"))
	}
	return creds, nil
}
