// Package auth keeps per-owner admin tokens in the session partition and
// brokers the out-of-band login flow used when the admin API answers 401.
package auth

import (
	"context"

	"github.com/adobe/aem-sidekick-sub001/internal/storage"
)

const tokenKeyPrefix = "auth/"

// TokenStore reads and writes per-owner auth tokens. Tokens live in the
// session area, so they vanish when the service restarts.
type TokenStore struct {
	store storage.Store
}

func NewTokenStore(store storage.Store) *TokenStore {
	return &TokenStore{store: store}
}

// Get returns the cached token for owner, or "" if none is cached.
func (t *TokenStore) Get(ctx context.Context, owner string) (string, error) {
	raw, ok, err := t.store.Get(ctx, storage.AreaSession, tokenKeyPrefix+owner)
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

// Set caches token for owner.
func (t *TokenStore) Set(ctx context.Context, owner, token string) error {
	return t.store.Set(ctx, storage.AreaSession, tokenKeyPrefix+owner, []byte(token))
}

// Revoke forgets any cached token for owner.
func (t *TokenStore) Revoke(ctx context.Context, owner string) error {
	return t.store.Remove(ctx, storage.AreaSession, tokenKeyPrefix+owner)
}
