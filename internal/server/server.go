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

// Package server assembles the HTTP routes of the gate: health probes in
// front of the gated site, and the metrics endpoint for a private listener.
package server

import (
	"log/slog"
	"net/http"

	"github.com/deep-rent/nexus/middleware"

	"github.com/deep-rent/sitegate/internal/gate"
	"github.com/deep-rent/sitegate/internal/metrics"
	sitemw "github.com/deep-rent/sitegate/internal/middleware"
	"github.com/deep-rent/sitegate/internal/pages"
	"github.com/deep-rent/sitegate/internal/settings"
)

// Config wires the components served by the handler. Gate, Access, Upstream
// and Settings are required.
type Config struct {
	Gate     *gate.Engine
	Access   http.Handler
	Upstream http.Handler
	Settings settings.Source
	// Pages serves the built-in gate pages. If nil, the upstream is expected
	// to serve them itself.
	Pages *pages.Pages

	MaintenancePage  string
	PasswordPage     string
	PasswordEndpoint string

	Logger *slog.Logger
}

// New returns the root handler.
//
// The probes bypass the gate. Every other request passes the request ID,
// access log, panic recovery and gate middleware, in this order, before it
// reaches the gate pages, the password endpoint, or the upstream. Metrics
// are not served here; see Metrics.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("name", "Server")

	p := newProbe(cfg.Settings, logger)

	site := http.NewServeMux()
	site.Handle(or(cfg.PasswordEndpoint, gate.DefaultPasswordEndpoint), cfg.Access)
	if cfg.Pages != nil {
		site.Handle(or(cfg.PasswordPage, gate.DefaultPasswordPage), cfg.Pages.Password())
		site.Handle(or(cfg.MaintenancePage, gate.DefaultMaintenancePage), cfg.Pages.Maintenance())
	}
	site.Handle("/", cfg.Upstream)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ready", p.ready)
	mux.HandleFunc("GET /healthy", p.healthy)
	mux.Handle("/", middleware.Chain(
		site,
		sitemw.RequestID(),
		middleware.Log(logger),
		sitemw.Recover(logger),
		cfg.Gate.Middleware(),
	))
	return mux
}

// Metrics returns the handler of the metrics listener, which serves GET
// /metrics and nothing else. Responses are never cached.
func Metrics(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", middleware.Chain(m.Handler(), middleware.Volatile()))
	return mux
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
