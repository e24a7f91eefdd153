// Package credentials persists provider API keys in the key-value store.
package credentials

import (
	"context"
	"errors"
	"strings"
)

const (
	ProviderGemini = "gemini"

	keyPrefix = "credentials/"
)

// KV is the slice of the key-value store the credential store needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Key returns the storage key for a provider token.
func Key(provider string) string {
	return keyPrefix + provider
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	token, ok, err := s.kv.Get(ctx, Key(provider))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	return s.SetToken(ctx, ProviderGemini, key)
}

func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New(provider + " api key is required")
	}
	return s.kv.Set(ctx, Key(provider), token)
}
