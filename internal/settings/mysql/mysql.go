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

// Package mysql persists site settings in the global_settings table of a
// MySQL or MariaDB database.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/deep-rent/sitegate/internal/settings"
)

const schema = "CREATE TABLE IF NOT EXISTS global_settings (" +
	"`key` VARCHAR(64) NOT NULL PRIMARY KEY, " +
	"`value` TEXT NOT NULL, " +
	"updated_at BIGINT NOT NULL)"

const upsert = "INSERT INTO global_settings (`key`, `value`, updated_at) " +
	"VALUES (?, ?, ?) " +
	"ON DUPLICATE KEY UPDATE `value` = VALUES(`value`), updated_at = VALUES(updated_at)"

// Config holds the parameters for opening a Store.
type Config struct {
	// DSN is the data source name, e.g. "user:pass@tcp(db:3306)/site".
	DSN string
	// MaxOpenConns limits the connection pool. Defaults to 4.
	MaxOpenConns int
}

// Store is a settings.Store backed by MySQL. The table is created on first
// use, so a fresh database reads as the default settings.
type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	migrated atomic.Bool
}

var _ settings.Store = (*Store)(nil)

// Open validates the DSN and prepares a connection pool. No connection is
// made until the store is first used.
func Open(cfg Config) (*Store, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	db := sql.OpenDB(connector)
	n := cfg.MaxOpenConns
	if n <= 0 {
		n = 4
	}
	db.SetMaxOpenConns(n)
	db.SetMaxIdleConns(n)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db), nil
}

// New wraps an open database handle. The Store takes ownership of db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// migrate creates the table once. A failed attempt is repeated on the next
// call.
func (s *Store) migrate(ctx context.Context) error {
	if s.migrated.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated.Load() {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("mysql: create schema: %w", err)
	}
	s.migrated.Store(true)
	return nil
}

// Load reads all settings in a single statement.
func (s *Store) Load(ctx context.Context) (settings.Settings, error) {
	if err := s.migrate(ctx); err != nil {
		return settings.Settings{}, err
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(settings.Keys)), ",")
	args := make([]any, len(settings.Keys))
	for i, k := range settings.Keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT `key`, `value` FROM global_settings WHERE `key` IN ("+marks+")",
		args...,
	)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("mysql: load settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(settings.Keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return settings.Settings{}, fmt.Errorf("mysql: scan setting: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return settings.Settings{}, fmt.Errorf("mysql: load settings: %w", err)
	}
	return settings.Parse(values)
}

// Save upserts all settings in one transaction.
func (s *Store) Save(ctx context.Context, v settings.Settings) (err error) {
	if err := s.migrate(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	values := v.Values()
	now := time.Now().Unix()
	for _, k := range settings.Keys {
		if _, err = tx.ExecContext(ctx, upsert, k, values[k], now); err != nil {
			return fmt.Errorf("mysql: save %s: %w", k, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable and the table exists.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	return s.migrate(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
