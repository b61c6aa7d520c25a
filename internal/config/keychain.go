package config

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

const (
	keychainService = "parrot"
	tokenAccount    = "api_token"
)

// Keychain stores secrets in the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store: macOS Keychain on darwin,
// a 0600 JSON file under XDG_DATA_HOME elsewhere.
func NewKeychain() Keychain {
	return platformKeychain{}
}

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token guarding the HTTP API. PARROT_API_TOKEN
// wins; otherwise the stored token is used, and a new one is generated and
// stored on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv("PARROT_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(keychainService, tokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	tok := uuid.NewString()
	if err := kc.Set(keychainService, tokenAccount, tok); err != nil {
		return "", err
	}
	return tok, nil
}
