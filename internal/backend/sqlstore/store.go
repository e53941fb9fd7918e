// Package sqlstore implements the persistence capability over an embedded
// SQLite database, so values survive restarts of the host process.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/srg/nearbyhal/pkg/hal"
)

const opTimeout = 5 * time.Second

// Store is a key/value table in a SQLite file.
type Store struct {
	logger *logrus.Logger
	db     *sql.DB
	path   string
}

// Open opens (or creates) the database at path, creating parent directories,
// and runs the schema migration.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One writer at a time; SQLite serializes them anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	logger.WithField("path", path).Debug("Persistence store opened")
	return &Store{logger: logger, db: db, path: path}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Init() hal.Status {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.WithError(err).Warn("Persistence store unreachable")
		return hal.StatusIOError
	}
	return hal.StatusOK
}

func (s *Store) Read(key string) ([]byte, hal.Status) {
	if key == "" {
		return nil, hal.StatusInvalidArgument
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hal.StatusNotFound
	}
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Persistence read failed")
		return nil, hal.StatusIOError
	}
	if value == nil {
		value = []byte{}
	}
	return value, hal.StatusOK
}

func (s *Store) Write(key string, data []byte) hal.Status {
	if key == "" {
		return hal.StatusInvalidArgument
	}
	if data == nil {
		data = []byte{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Persistence write failed")
		return hal.StatusIOError
	}
	return hal.StatusOK
}

// Delete removes key; deleting an absent key succeeds.
func (s *Store) Delete(key string) hal.Status {
	if key == "" {
		return hal.StatusInvalidArgument
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Persistence delete failed")
		return hal.StatusIOError
	}
	return hal.StatusOK
}

// Keys lists stored keys in order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
