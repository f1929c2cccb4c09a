// Copyright (c) 2025-present deep.rent GmbH (https://www.deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite persists site settings in the key/value table of a SQLite
// database.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/deep-rent/sitegate/internal/settings"
)

const schema = `
CREATE TABLE IF NOT EXISTS global_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the filesystem path to the database file. The parent
	// directory must exist; the file is created on demand.
	Path string

	// PoolSize is the number of pooled connections. Defaults to
	// max(runtime.NumCPU(), 4) if not positive.
	PoolSize int

	// Logger receives pool lifecycle messages. Defaults to a discarding
	// logger.
	Logger *slog.Logger
}

// Store is a settings.Store backed by SQLite. It is safe for concurrent use.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

var _ settings.Store = (*Store)(nil)

// Open creates the connection pool. Connections are prepared lazily; the
// schema is created on each connection's first use.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepare,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	logger.Info("Settings database opened", "path", cfg.Path, "pool_size", size)
	return &Store{
		pool:   pool,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

func prepare(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	return nil
}

// Load reads all settings in a single statement, so the snapshot is
// consistent.
func (s *Store) Load(ctx context.Context) (settings.Settings, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	marks := strings.TrimSuffix(strings.Repeat("?,", len(settings.Keys)), ",")
	args := make([]any, len(settings.Keys))
	for i, k := range settings.Keys {
		args[i] = k
	}

	values := make(map[string]string, len(settings.Keys))
	err = sqlitex.Execute(conn,
		"SELECT key, value FROM global_settings WHERE key IN ("+marks+")",
		&sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				values[stmt.ColumnText(0)] = stmt.ColumnText(1)
				return nil
			},
		},
	)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("sqlite: load settings: %w", err)
	}
	return settings.Parse(values)
}

// Save upserts all settings in one transaction.
func (s *Store) Save(ctx context.Context, v settings.Settings) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	end, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer end(&err)

	values := v.Values()
	now := time.Now().Unix()
	for _, k := range settings.Keys {
		err = sqlitex.Execute(conn,
			`INSERT INTO global_settings (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{k, values[k], now}},
		)
		if err != nil {
			return fmt.Errorf("sqlite: save %s: %w", k, err)
		}
	}
	return nil
}

// Ping checks that a connection can be taken and queried.
func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)
	return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
}

// Close closes all connections. It blocks until borrowed connections are
// returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("Failed to close settings database",
			"path", s.path, "error", err)
		return fmt.Errorf("sqlite: close %s: %w", s.path, err)
	}
	s.logger.Info("Settings database closed", "path", s.path)
	return nil
}
