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

package mysql_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/deep-rent/sitegate/internal/settings"
	"github.com/deep-rent/sitegate/internal/settings/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memory is an in-process database/sql connector that behaves like a fresh
// MySQL schema: queries against global_settings fail until it is created.
type memory struct {
	mu      sync.Mutex
	created bool
	creates int
	rows    map[string]string
}

var errNoTable = &gomysql.MySQLError{
	Number:  1146,
	Message: "Table 'site.global_settings' doesn't exist",
}

func newMemory() *memory {
	return &memory{rows: make(map[string]string)}
}

func (m *memory) Connect(context.Context) (driver.Conn, error) { return &memoryConn{m}, nil }
func (m *memory) Driver() driver.Driver                        { return memoryDriver{} }

type memoryDriver struct{}

func (memoryDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("use the connector")
}

type memoryConn struct{ m *memory }

func (c *memoryConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not supported")
}
func (c *memoryConn) Close() error              { return nil }
func (c *memoryConn) Begin() (driver.Tx, error) { return memoryTx{}, nil }

func (c *memoryConn) ExecContext(
	_ context.Context,
	query string,
	args []driver.NamedValue,
) (driver.Result, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	switch {
	case strings.HasPrefix(query, "CREATE TABLE"):
		c.m.created = true
		c.m.creates++
	case strings.HasPrefix(query, "INSERT"):
		if !c.m.created {
			return nil, errNoTable
		}
		c.m.rows[args[0].Value.(string)] = args[1].Value.(string)
	}
	return driver.RowsAffected(1), nil
}

func (c *memoryConn) QueryContext(
	_ context.Context,
	_ string,
	args []driver.NamedValue,
) (driver.Rows, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if !c.m.created {
		return nil, errNoTable
	}
	rows := &memoryRows{}
	for _, a := range args {
		k := a.Value.(string)
		if v, ok := c.m.rows[k]; ok {
			rows.data = append(rows.data, [2]string{k, v})
		}
	}
	return rows, nil
}

type memoryTx struct{}

func (memoryTx) Commit() error   { return nil }
func (memoryTx) Rollback() error { return nil }

type memoryRows struct {
	data [][2]string
	next int
}

func (r *memoryRows) Columns() []string { return []string{"key", "value"} }
func (r *memoryRows) Close() error      { return nil }

func (r *memoryRows) Next(dest []driver.Value) error {
	if r.next == len(r.data) {
		return io.EOF
	}
	dest[0], dest[1] = r.data[r.next][0], r.data[r.next][1]
	r.next++
	return nil
}

func TestStore_FreshDatabase(t *testing.T) {
	m := newMemory()
	st := mysql.New(sql.OpenDB(m))
	t.Cleanup(func() { _ = st.Close() })

	got, err := st.Load(t.Context())
	require.NoError(t, err, "an unprovisioned table must not read as an outage")
	assert.Equal(t, settings.Settings{}, got)

	want := settings.Settings{PasswordEnabled: true, Password: "hunter2"}
	require.NoError(t, st.Save(t.Context(), want))
	got, err = st.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, st.Ping(t.Context()))
	assert.Equal(t, 1, m.creates, "the schema is created once")
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := mysql.Open(mysql.Config{DSN: "user:pass@tcp(db:3306"})
	assert.Error(t, err)
}

// newStore connects to the database named by SITEGATE_TEST_MYSQL_DSN and
// skips the test if it is not set or not reachable.
func newStore(t *testing.T) *mysql.Store {
	t.Helper()
	dsn := os.Getenv("SITEGATE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("SITEGATE_TEST_MYSQL_DSN not set")
	}
	st, err := mysql.Open(mysql.Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		t.Skipf("mysql not reachable: %v", err)
	}
	return st
}

func TestStore_RoundTrip(t *testing.T) {
	st := newStore(t)
	want := settings.Settings{
		UnderConstruction:  true,
		PasswordEnabled:    true,
		Password:           "hunter2",
		MaintenanceMessage: "Back *soon*",
	}

	require.NoError(t, st.Save(t.Context(), want))
	got, err := st.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.UnderConstruction = false
	require.NoError(t, st.Save(t.Context(), want))
	got, err = st.Load(t.Context())
	require.NoError(t, err)
	assert.False(t, got.UnderConstruction)
}
