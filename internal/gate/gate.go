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

// Package gate decides, per request, whether a visitor may reach the site.
//
// Two site-wide modes drive the decision: maintenance mode sends every
// visitor to the maintenance page, and password protection requires a valid
// access token cookie, otherwise the visitor is sent to the password page.
// Maintenance takes precedence over password protection, and exempt path
// prefixes take precedence over both.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/deep-rent/nexus/middleware"

	"github.com/deep-rent/sitegate/internal/client"
	"github.com/deep-rent/sitegate/internal/metrics"
	"github.com/deep-rent/sitegate/internal/settings"
	"github.com/deep-rent/sitegate/internal/token"
)

const (
	// DefaultCookieName is the name of the access token cookie.
	DefaultCookieName = "site_access"
	// DefaultMaintenancePage is the path of the maintenance page.
	DefaultMaintenancePage = "/under-construction"
	// DefaultPasswordPage is the path of the password entry page.
	DefaultPasswordPage = "/site-password"
	// DefaultPasswordEndpoint is the path that password forms submit to.
	DefaultPasswordEndpoint = "/api/site-password"
	// ReturnParam is the query parameter carrying the encoded return path.
	ReturnParam = "return"
)

// DefaultExemptPrefixes are never gated: admin and API routes enforce their
// own authorization, and assets are needed to render the gate pages. Each
// entry matches the path itself and everything below it.
var DefaultExemptPrefixes = []string{
	"/admin",
	"/api",
	"/_next",
	"/static",
	"/favicon.ico",
}

// Action is the outcome of a gate decision.
type Action int

const (
	// Allow lets the request through.
	Allow Action = iota
	// Redirect sends the visitor elsewhere.
	Redirect
)

// Reason explains a decision. It is safe to use as a metric label.
type Reason string

const (
	ReasonExempt          Reason = "exempt"
	ReasonMaintenance     Reason = "maintenance"
	ReasonMaintenancePage Reason = "maintenance-page"
	ReasonOpen            Reason = "open"
	ReasonPasswordPage    Reason = "password-page"
	ReasonGranted         Reason = "granted"
	ReasonDenied          Reason = "denied"
	ReasonFailOpen        Reason = "fail-open"
)

// Decision is the result of evaluating a request.
type Decision struct {
	Action Action
	// Location is the redirect target if Action is Redirect.
	Location string
	Reason   Reason
}

// Verifier checks access tokens.
type Verifier interface {
	Verify(token string, fp token.Fingerprint) (string, bool)
}

// Config configures an Engine. Settings and Verifier are required; zero
// values of the other fields select the defaults.
type Config struct {
	Settings settings.Source
	Verifier Verifier
	Resolver *client.Resolver

	CookieName       string
	MaintenancePage  string
	PasswordPage     string
	PasswordEndpoint string
	ExemptPrefixes   []string

	// FailOpen lets requests through if the settings cannot be read.
	// Otherwise both modes are assumed to be on.
	FailOpen bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Engine evaluates gate decisions. It is safe for concurrent use.
type Engine struct {
	settings         settings.Source
	verifier         Verifier
	resolver         *client.Resolver
	cookieName       string
	maintenancePage  string
	passwordPage     string
	passwordEndpoint string
	exempt           []string
	failOpen         bool
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

// New creates an Engine from cfg.
func New(cfg *Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = client.NewResolver(false)
	}
	exempt := cfg.ExemptPrefixes
	if exempt == nil {
		exempt = DefaultExemptPrefixes
	}
	return &Engine{
		settings:         cfg.Settings,
		verifier:         cfg.Verifier,
		resolver:         resolver,
		cookieName:       or(cfg.CookieName, DefaultCookieName),
		maintenancePage:  or(cfg.MaintenancePage, DefaultMaintenancePage),
		passwordPage:     or(cfg.PasswordPage, DefaultPasswordPage),
		passwordEndpoint: or(cfg.PasswordEndpoint, DefaultPasswordEndpoint),
		exempt:           exempt,
		failOpen:         cfg.FailOpen,
		logger:           logger.With("name", "Gate"),
		metrics:          cfg.Metrics,
	}
}

// Decide evaluates req against the current settings.
func (e *Engine) Decide(req *http.Request) Decision {
	path := req.URL.Path
	if e.isExempt(path) {
		return Decision{Action: Allow, Reason: ReasonExempt}
	}

	s, ok := e.load(req.Context())
	if !ok {
		if e.failOpen {
			return Decision{Action: Allow, Reason: ReasonFailOpen}
		}
		s = settings.Settings{UnderConstruction: true, PasswordEnabled: true}
	}

	if s.UnderConstruction {
		if path == e.maintenancePage {
			return Decision{Action: Allow, Reason: ReasonMaintenancePage}
		}
		return Decision{
			Action:   Redirect,
			Location: e.maintenancePage,
			Reason:   ReasonMaintenance,
		}
	}

	if !s.PasswordEnabled {
		return Decision{Action: Allow, Reason: ReasonOpen}
	}

	if path == e.passwordPage || path == e.passwordEndpoint {
		return Decision{Action: Allow, Reason: ReasonPasswordPage}
	}

	if e.granted(req) {
		return Decision{Action: Allow, Reason: ReasonGranted}
	}

	q := url.Values{ReturnParam: {EncodeReturn(path)}}
	return Decision{
		Action:   Redirect,
		Location: e.passwordPage + "?" + q.Encode(),
		Reason:   ReasonDenied,
	}
}

// Middleware applies the engine's decisions in front of next. Redirects use
// 307 so that the method and body of non-GET requests are preserved.
func (e *Engine) Middleware() middleware.Pipe {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := e.Decide(r)
			e.metrics.Decision(string(d.Reason))
			if d.Action == Redirect {
				e.logger.DebugContext(r.Context(), "Redirecting request",
					"path", r.URL.Path,
					"reason", d.Reason,
					"request_id", middleware.GetRequestID(r.Context()),
				)
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isExempt matches whole path segments: "/api" exempts "/api" and
// "/api/login" but not "/apiary".
func (e *Engine) isExempt(path string) bool {
	for _, prefix := range e.exempt {
		prefix = strings.TrimSuffix(prefix, "/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func (e *Engine) load(ctx context.Context) (settings.Settings, bool) {
	s, err := e.settings.Load(ctx)
	if err != nil {
		e.metrics.SettingsError()
		e.logger.WarnContext(ctx, "Failed to read settings",
			"error", err,
			"fail_open", e.failOpen,
		)
		return settings.Settings{}, false
	}
	return s, true
}

func (e *Engine) granted(req *http.Request) bool {
	c, err := req.Cookie(e.cookieName)
	if err != nil {
		return false
	}
	v, ok := e.verifier.Verify(c.Value, e.resolver.Resolve(req))
	if !ok {
		e.logger.DebugContext(req.Context(), "Rejected access token",
			"request_id", middleware.GetRequestID(req.Context()),
		)
	}
	return ok && v == token.Granted
}

func or(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
