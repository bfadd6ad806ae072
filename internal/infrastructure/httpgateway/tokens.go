package httpgateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// KeyringTokens is an [oauth2.TokenSource] that reads a static bearer
// token from the OS keyring.
type KeyringTokens struct {
	Service string
	User    string
}

func (k KeyringTokens) Token() (*oauth2.Token, error) {
	secret, err := keyring.Get(k.Service, k.User)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("no token stored for %s/%s in keyring", k.Service, k.User)
		}
		return nil, fmt.Errorf("read token from keyring: %w", err)
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("empty token stored for %s/%s in keyring", k.Service, k.User)
	}
	return &oauth2.Token{AccessToken: secret, TokenType: "Bearer"}, nil
}

// StoreToken writes the bearer token used for the provisioning API into
// the OS keyring.
func StoreToken(service, user, token string) error {
	if err := keyring.Set(service, user, token); err != nil {
		return fmt.Errorf("store token in keyring: %w", err)
	}
	return nil
}
