// Package storage provides the partitioned key/value config store backing
// the sidekick service. Three areas mirror the storage partitions the
// extension clients expect: a synced persistent area for project records,
// a local persistent area for display flags, and a session area that lives
// only as long as the service process.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Area selects one of the three storage partitions.
type Area string

const (
	// AreaSync holds project records and the project index.
	AreaSync Area = "sync"
	// AreaLocal holds per-host display and theme flags.
	AreaLocal Area = "local"
	// AreaSession holds the discovery cache and auth tokens. It is
	// discarded when the store closes, matching browser session storage.
	AreaSession Area = "session"
)

var (
	// ErrUnknownArea is returned when an Area outside the three
	// partitions is used.
	ErrUnknownArea = errors.New("storage: unknown area")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("storage: store is closed")
)

// Store is the minimal cross-package contract for partitioned key/value
// persistence. Implementations must be safe for concurrent use; list-valued
// properties (the project index, the discovery cache rows) rely on Set being
// serialized per store so read-modify-write callers do not lose updates.
type Store interface {
	// Get returns the raw value for key in area. The bool reports
	// whether the key was present.
	Get(ctx context.Context, area Area, key string) ([]byte, bool, error)

	// Set writes value under key in area, overwriting any previous value.
	Set(ctx context.Context, area Area, key string, value []byte) error

	// Remove deletes key from area. Removing an absent key is not an error.
	Remove(ctx context.Context, area Area, key string) error

	// Clear removes every key in area.
	Clear(ctx context.Context, area Area) error

	// Close releases resources. Session data does not survive Close.
	Close() error
}

// GetJSON reads key from area and unmarshals it into v. The bool reports
// whether the key was present; absent keys leave v untouched.
func GetJSON(ctx context.Context, s Store, area Area, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, area, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("storage: decode %s/%s: %w", area, key, err)
	}
	return true, nil
}

// SetJSON marshals v and stores it under key in area.
func SetJSON(ctx context.Context, s Store, area Area, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s/%s: %w", area, key, err)
	}
	return s.Set(ctx, area, key, raw)
}

func validArea(a Area) bool {
	switch a {
	case AreaSync, AreaLocal, AreaSession:
		return true
	}
	return false
}
