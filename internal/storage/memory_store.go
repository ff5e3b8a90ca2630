package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps all three areas in process memory. It is the store of
// choice for tests and for running the service without a storage root.
type MemoryStore struct {
	mu     sync.Mutex
	areas  map[Area]map[string][]byte
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		areas: map[Area]map[string][]byte{
			AreaSync:    {},
			AreaLocal:   {},
			AreaSession: {},
		},
	}
}

func (m *MemoryStore) Get(ctx context.Context, area Area, key string) ([]byte, bool, error) {
	if !validArea(area) {
		return nil, false, ErrUnknownArea
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.areas[area][key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, area Area, key string, value []byte) error {
	if !validArea(area) {
		return ErrUnknownArea
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	m.areas[area][key] = buf
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, area Area, key string) error {
	if !validArea(area) {
		return ErrUnknownArea
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.areas[area], key)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, area Area) error {
	if !validArea(area) {
		return ErrUnknownArea
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.areas[area] = map[string][]byte{}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.areas = nil
	return nil
}

// Keys returns the keys currently present in area, for test assertions.
func (m *MemoryStore) Keys(area Area) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.areas[area] {
		out = append(out, k)
	}
	return out
}
