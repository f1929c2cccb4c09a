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

// Package gateway runs the HTTP server that fronts the gated site.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/deep-rent/nexus/middleware"
)

const (
	// DefaultHost is the default host to bind to.
	DefaultHost = "" // all interfaces
	// DefaultPort is the default port to listen on.
	DefaultPort = 8080
	// DefaultReadTimeout is the default maximum duration for reading the
	// entire request, including the body.
	DefaultReadTimeout = 30 * time.Second
	// DefaultReadHeaderTimeout is the default maximum duration for reading
	// only the request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultIdleTimeout is the default maximum amount of time to wait for the
	// next request when keep-alives are enabled.
	DefaultIdleTimeout = 90 * time.Second
	// DefaultMaxHeaderBytes is the default maximum size of request headers.
	DefaultMaxHeaderBytes = 1 << 16 // 64 KiB
)

// Gateway is an http.Server with a graceful lifecycle.
type Gateway struct {
	server *http.Server
	logger *slog.Logger
}

// New creates a Gateway. Without WithHandler every request is answered
// with 404.
func New(opts ...Option) *Gateway {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.server.Addr = net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))
	cfg.server.Handler = middleware.Chain(cfg.handler, cfg.middleware...)

	logger := cfg.logger.With("name", "Gateway")
	cfg.server.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)

	return &Gateway{
		server: cfg.server,
		logger: logger,
	}
}

type config struct {
	host       string
	port       int
	handler    http.Handler
	server     *http.Server
	logger     *slog.Logger
	middleware []middleware.Pipe
}

func defaultConfig() config {
	return config{
		host:    DefaultHost,
		port:    DefaultPort,
		handler: http.NotFoundHandler(),
		server: &http.Server{
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			// Streaming responses from the upstream must not be cut off.
			WriteTimeout:   0,
			IdleTimeout:    DefaultIdleTimeout,
			MaxHeaderBytes: DefaultMaxHeaderBytes,
		},
		logger: slog.Default(),
	}
}

// Option configures a Gateway.
type Option func(*config)

// WithHost sets the host to bind to. Empty binds to all interfaces.
func WithHost(h string) Option {
	return func(cfg *config) {
		cfg.host = strings.TrimSpace(h)
	}
}

// WithPort sets the port to listen on. Values outside the valid port range
// are ignored. Zero picks a free port.
func WithPort(p int) Option {
	return func(cfg *config) {
		if p >= 0 && p <= 65535 {
			cfg.port = p
		}
	}
}

// WithHandler sets the handler that middleware is wrapped around. Nil is
// ignored.
func WithHandler(h http.Handler) Option {
	return func(cfg *config) {
		if h != nil {
			cfg.handler = h
		}
	}
}

// WithReadTimeout sets the maximum duration for reading an entire request.
// Non-positive values are ignored.
func WithReadTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.server.ReadTimeout = d
		}
	}
}

// WithReadHeaderTimeout sets the maximum duration for reading the request
// headers. Non-positive values are ignored.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.server.ReadHeaderTimeout = d
		}
	}
}

// WithIdleTimeout sets how long keep-alive connections may stay idle.
// Non-positive values are ignored.
func WithIdleTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.server.IdleTimeout = d
		}
	}
}

// WithMaxHeaderBytes limits the size of request headers. Non-positive values
// are ignored.
func WithMaxHeaderBytes(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.server.MaxHeaderBytes = n
		}
	}
}

// WithMiddleware appends pipes to the handler chain, outermost first. It can
// be given multiple times.
func WithMiddleware(pipes ...middleware.Pipe) Option {
	return func(cfg *config) {
		cfg.middleware = append(cfg.middleware, pipes...)
	}
}

// WithLogger sets the logger for lifecycle events. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// Addr returns the configured listen address.
func (g *Gateway) Addr() string {
	return g.server.Addr
}

// Start listens and serves until the server is stopped. It returns nil
// after a graceful Stop.
func (g *Gateway) Start() error {
	g.logger.Info("Starting server", "address", g.server.Addr)

	err := g.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		g.logger.Error("Server exited with error", "error", err)
		return err
	}
	return nil
}

// Stop shuts the server down gracefully, waiting for active requests until
// ctx is done.
func (g *Gateway) Stop(ctx context.Context) error {
	g.logger.Info("Stopping server")

	if err := g.server.Shutdown(ctx); err != nil {
		g.logger.Error("Server shutdown failed", "error", err)
		return err
	}

	g.logger.Info("Server stopped gracefully")
	return nil
}
