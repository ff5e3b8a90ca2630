package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adobe/aem-sidekick-sub001/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStore persists the sync and local areas in a SQLite kv table and
// keeps the session area in process memory so it is discarded on Close.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger

	mu      sync.Mutex
	session map[string][]byte
	closed  bool
}

// Ensure SQLiteStore implements Store at compile-time.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore returns a SQLiteStore and runs migrations from schema.sql.
// db should typically be the SQLite DB at <storage root>/sidekick.db.
func NewSQLiteStore(db *sql.DB, logger logging.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		return nil, errors.New("storage: nil logger provided")
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &SQLiteStore{
		db:      db,
		logger:  logger.With(logging.Field{Key: "component", Value: "Storage"}),
		session: make(map[string][]byte),
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, area Area, key string) ([]byte, bool, error) {
	if !validArea(area) {
		return nil, false, ErrUnknownArea
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	if area == AreaSession {
		v, ok := s.session[key]
		if !ok {
			return nil, false, nil
		}
		out := make([]byte, len(v))
		copy(out, v)
		return out, true, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE area = ? AND key = ? LIMIT 1`, string(area), key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: get %s/%s: %w", area, key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, area Area, key string, value []byte) error {
	if !validArea(area) {
		return ErrUnknownArea
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if area == AreaSession {
		buf := make([]byte, len(value))
		copy(buf, value)
		s.session[key] = buf
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (area, key, value, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(area, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(area), key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storage: set %s/%s: %w", area, key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, area Area, key string) error {
	if !validArea(area) {
		return ErrUnknownArea
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if area == AreaSession {
		delete(s.session, key)
		return nil
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE area = ? AND key = ?`, string(area), key); err != nil {
		return fmt.Errorf("storage: remove %s/%s: %w", area, key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, area Area) error {
	if !validArea(area) {
		return ErrUnknownArea
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if area == AreaSession {
		s.session = make(map[string][]byte)
		return nil
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE area = ?`, string(area)); err != nil {
		return fmt.Errorf("storage: clear %s: %w", area, err)
	}
	return nil
}

// Close drops the session area and closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.session = nil
	s.logger.Info("closing config store")
	return s.db.Close()
}
