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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/deep-rent/nexus/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/deep-rent/sitegate/internal/access"
	"github.com/deep-rent/sitegate/internal/client"
	"github.com/deep-rent/sitegate/internal/config"
	"github.com/deep-rent/sitegate/internal/gate"
	"github.com/deep-rent/sitegate/internal/gateway"
	"github.com/deep-rent/sitegate/internal/metrics"
	"github.com/deep-rent/sitegate/internal/pages"
	"github.com/deep-rent/sitegate/internal/retry"
	"github.com/deep-rent/sitegate/internal/server"
	"github.com/deep-rent/sitegate/internal/settings"
	"github.com/deep-rent/sitegate/internal/settings/mysql"
	"github.com/deep-rent/sitegate/internal/settings/redis"
	"github.com/deep-rent/sitegate/internal/settings/sqlite"
	"github.com/deep-rent/sitegate/internal/signer"
	"github.com/deep-rent/sitegate/internal/token"
	"github.com/deep-rent/sitegate/internal/tunnel"
)

// store is a settings backend that must be closed on shutdown.
type store interface {
	settings.Store
	io.Closer
	Ping(ctx context.Context) error
}

// openStore connects to the configured settings backend.
func openStore(cfg *config.Config, logger *slog.Logger) (store, error) {
	switch cfg.SettingsBackend {
	case config.BackendRedis:
		return redis.New(redis.Config{
			Client: goredis.NewClient(&goredis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}),
			Key: cfg.RedisKey,
		})
	case config.BackendMySQL:
		return mysql.Open(mysql.Config{DSN: cfg.MySQLDSN})
	default:
		return sqlite.Open(sqlite.Config{
			Path:     cfg.SQLitePath,
			PoolSize: cfg.SQLitePoolSize,
			Logger:   logger,
		})
	}
}

// run wires the components and serves until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.ShortSecret() {
		logger.Warn("Signing secret is shorter than recommended",
			"length", len(cfg.Secret),
			"recommended", signer.MinimumKeyLength,
		)
	}

	target, err := cfg.UpstreamURL()
	if err != nil {
		return err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close settings store", "error", err)
		}
	}()

	wait, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	err = retry.Until(wait, st.Ping, retry.WithLogger(logger))
	cancel()
	if err != nil {
		// The gate fails closed (or open) until the store becomes reachable.
		logger.Warn("Settings store is not reachable yet",
			"backend", cfg.SettingsBackend,
			"error", err,
		)
	}

	codec, err := token.New(
		cfg.Secret,
		token.WithWindow(cfg.TokenWindow),
		token.WithAlgorithm(signer.ResolveAlgorithm(cfg.SigningAlgorithm)),
	)
	if err != nil {
		return err
	}

	m := metrics.New()
	cache := settings.NewCache(st, settings.WithTTL(cfg.SettingsTTL))
	resolver := client.NewResolver(cfg.TrustForwarded)

	engine := gate.New(&gate.Config{
		Settings:         cache,
		Verifier:         codec,
		Resolver:         resolver,
		CookieName:       cfg.CookieName,
		MaintenancePage:  cfg.MaintenancePage,
		PasswordPage:     cfg.PasswordPage,
		PasswordEndpoint: cfg.PasswordEndpoint,
		ExemptPrefixes:   cfg.Exempt(),
		FailOpen:         cfg.FailOpen,
		Logger:           logger,
		Metrics:          m,
	})

	exchange := access.NewHandler(&access.Config{
		Settings:     cache,
		Issuer:       codec,
		Resolver:     resolver,
		Limiter:      access.NewLimiter(cfg.AttemptBurst, cfg.AttemptRefill),
		CookieName:   cfg.CookieName,
		CookieMaxAge: cfg.CookieMaxAge,
		SecureCookie: cfg.SecureCookie,
		Logger:       logger,
		Metrics:      m,
	})

	var builtin *pages.Pages
	if cfg.ServePages {
		builtin = pages.New(&pages.Config{
			Settings:         cache,
			PasswordEndpoint: cfg.PasswordEndpoint,
			Title:            cfg.SiteTitle,
			Logger:           logger,
		})
	}

	handler := server.New(&server.Config{
		Gate:             engine,
		Access:           exchange,
		Upstream:         tunnel.New(target, cfg.FlushInterval),
		Settings:         st,
		Pages:            builtin,
		MaintenancePage:  cfg.MaintenancePage,
		PasswordPage:     cfg.PasswordPage,
		PasswordEndpoint: cfg.PasswordEndpoint,
		Logger:           logger,
	})

	gws := []*gateway.Gateway{gateway.New(
		gateway.WithHost(cfg.Host),
		gateway.WithPort(cfg.Port),
		gateway.WithHandler(handler),
		gateway.WithReadTimeout(cfg.ReadTimeout),
		gateway.WithReadHeaderTimeout(cfg.ReadHeaderTimeout),
		gateway.WithIdleTimeout(cfg.IdleTimeout),
		gateway.WithMaxHeaderBytes(cfg.MaxHeaderBytes),
		gateway.WithLogger(logger),
	)}
	if cfg.MetricsPort != 0 {
		gws = append(gws, gateway.New(
			gateway.WithHost(cfg.Host),
			gateway.WithPort(cfg.MetricsPort),
			gateway.WithHandler(server.Metrics(m)),
			gateway.WithMiddleware(middleware.Recover(logger)),
			gateway.WithReadHeaderTimeout(cfg.ReadHeaderTimeout),
			gateway.WithLogger(logger.With("listener", "metrics")),
		))
	}

	errCh := make(chan error, len(gws))
	for _, gw := range gws {
		go func() {
			errCh <- gw.Start()
		}()
	}

	err = nil
	select {
	case err = <-errCh:
	case <-ctx.Done():
	}

	stop, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	for _, gw := range gws {
		err = errors.Join(err, gw.Stop(stop))
	}
	return err
}
