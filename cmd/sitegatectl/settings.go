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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/deep-rent/sitegate/internal/settings"
	"github.com/deep-rent/sitegate/internal/settings/mysql"
	"github.com/deep-rent/sitegate/internal/settings/redis"
	"github.com/deep-rent/sitegate/internal/settings/sqlite"
)

type storeOptions struct {
	dbPath    string
	redisAddr string
	redisKey  string
	mysqlDSN  string
}

func (o *storeOptions) addFlags(fs *pflag.FlagSet) {
	path := os.Getenv("SITEGATE_SQLITE_PATH")
	if path == "" {
		path = "sitegate.db"
	}
	fs.StringVar(&o.dbPath, "db", path, "path to the SQLite settings database")
	fs.StringVar(&o.redisAddr, "redis", os.Getenv("SITEGATE_REDIS_ADDR"), "use the Redis settings store at this address instead of SQLite")
	fs.StringVar(&o.redisKey, "redis-key", redis.DefaultKey, "name of the Redis hash holding the settings")
	fs.StringVar(&o.mysqlDSN, "mysql", os.Getenv("SITEGATE_MYSQL_DSN"), "use the MySQL settings store with this DSN instead of SQLite")
}

type closingStore interface {
	settings.Store
	io.Closer
}

func (o *storeOptions) open() (closingStore, error) {
	if o.mysqlDSN != "" {
		return mysql.Open(mysql.Config{DSN: o.mysqlDSN, MaxOpenConns: 1})
	}
	if o.redisAddr != "" {
		return redis.New(redis.Config{
			Client: goredis.NewClient(&goredis.Options{Addr: o.redisAddr}),
			Key:    o.redisKey,
		})
	}
	return sqlite.Open(sqlite.Config{Path: o.dbPath, PoolSize: 1})
}

func show(ctx context.Context, opts *storeOptions, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	return printSettings(out, s)
}

func set(ctx context.Context, opts *storeOptions, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("set", pflag.ContinueOnError)
	maintenance := fs.Bool("maintenance", false, "turn maintenance mode on or off")
	enabled := fs.Bool("password-enabled", false, "turn password protection on or off")
	password := fs.String("password", "", "set the site password")
	message := fs.String("message", "", "set the maintenance message (markdown)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NFlag() == 0 {
		return fmt.Errorf("nothing to set")
	}

	st, err := opts.open()
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if fs.Changed("maintenance") {
		s.UnderConstruction = *maintenance
	}
	if fs.Changed("password-enabled") {
		s.PasswordEnabled = *enabled
	}
	if fs.Changed("password") {
		s.Password = *password
	}
	if fs.Changed("message") {
		s.MaintenanceMessage = *message
	}
	if s.PasswordEnabled && s.Password == "" {
		fmt.Fprintln(out, "warning: password protection is on but no password is set; nobody can get in")
	}

	if err := st.Save(ctx, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return printSettings(out, s)
}

func printSettings(out io.Writer, s settings.Settings) error {
	password := "(not set)"
	if s.Password != "" {
		password = "(set)"
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%t\n", settings.KeyUnderConstruction, s.UnderConstruction)
	fmt.Fprintf(tw, "%s\t%t\n", settings.KeyPasswordEnabled, s.PasswordEnabled)
	fmt.Fprintf(tw, "%s\t%s\n", settings.KeyPassword, password)
	fmt.Fprintf(tw, "%s\t%q\n", settings.KeyMaintenanceMessage, s.MaintenanceMessage)
	return tw.Flush()
}
