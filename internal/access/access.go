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

// Package access implements the password exchange: a visitor submits the
// site password and, if it matches, receives an access token cookie.
package access

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deep-rent/nexus/middleware"
	"github.com/elnormous/contenttype"

	"github.com/deep-rent/sitegate/internal/client"
	"github.com/deep-rent/sitegate/internal/gate"
	"github.com/deep-rent/sitegate/internal/metrics"
	"github.com/deep-rent/sitegate/internal/settings"
	"github.com/deep-rent/sitegate/internal/token"
)

const (
	// DefaultCookieMaxAge matches the default token freshness window.
	DefaultCookieMaxAge = token.DefaultWindow
	// maxBodyBytes bounds the size of a submission.
	maxBodyBytes = 4 << 10
	// incorrect is the only failure message, whatever the cause.
	incorrect = "incorrect password"
)

// Issuer mints access tokens.
type Issuer interface {
	Issue(value string, fp token.Fingerprint) (string, error)
}

// Config configures a Handler. Settings and Issuer are required.
type Config struct {
	Settings settings.Source
	Issuer   Issuer
	Resolver *client.Resolver
	Limiter  *Limiter

	CookieName   string
	CookieMaxAge time.Duration
	// SecureCookie adds the Secure attribute; enable it in production.
	SecureCookie bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Handler serves password submissions.
type Handler struct {
	settings     settings.Source
	issuer       Issuer
	resolver     *client.Resolver
	limiter      *Limiter
	cookieName   string
	cookieMaxAge time.Duration
	secure       bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

var _ http.Handler = (*Handler)(nil)

// NewHandler creates a Handler from cfg.
func NewHandler(cfg *Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = client.NewResolver(false)
	}
	name := cfg.CookieName
	if name == "" {
		name = gate.DefaultCookieName
	}
	maxAge := cfg.CookieMaxAge
	if maxAge <= 0 {
		maxAge = DefaultCookieMaxAge
	}
	return &Handler{
		settings:     cfg.Settings,
		issuer:       cfg.Issuer,
		resolver:     resolver,
		limiter:      cfg.Limiter,
		cookieName:   name,
		cookieMaxAge: maxAge,
		secure:       cfg.SecureCookie,
		logger:       logger.With("name", "Access"),
		metrics:      cfg.Metrics,
	}
}

// submission is the payload of a password form or JSON request.
type submission struct {
	Password string `json:"password"`
	Return   string `json:"return"`
}

type result struct {
	Success  bool   `json:"success,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		code := http.StatusMethodNotAllowed
		http.Error(w, http.StatusText(code), code)
		return
	}

	asJSON := isJSON(r)
	fp := h.resolver.Resolve(r)

	if !h.limiter.Allow(fp.IP) {
		h.metrics.Attempt("throttled")
		w.Header().Set("Retry-After", "60")
		h.fail(w, asJSON, http.StatusTooManyRequests, "too many attempts")
		return
	}

	sub, err := h.read(w, r, asJSON)
	if err != nil {
		h.metrics.Attempt("invalid")
		h.fail(w, asJSON, http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		return
	}

	if !h.check(r, sub.Password) {
		h.metrics.Attempt("failure")
		h.logger.InfoContext(r.Context(), "Rejected site password",
			"ip", fp.IP,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		h.fail(w, asJSON, http.StatusUnauthorized, incorrect)
		return
	}

	tok, err := h.issuer.Issue(token.Granted, fp)
	if err != nil {
		h.metrics.Attempt("error")
		h.logger.ErrorContext(r.Context(), "Failed to issue access token",
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		code := http.StatusInternalServerError
		h.fail(w, asJSON, code, http.StatusText(code))
		return
	}

	h.metrics.Attempt("success")
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})

	target, ok := gate.DecodeReturn(sub.Return)
	if !ok {
		target = "/"
	}
	if asJSON {
		writeJSON(w, http.StatusOK, result{Success: true, Redirect: target})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) read(
	w http.ResponseWriter,
	r *http.Request,
	asJSON bool,
) (submission, error) {
	var sub submission
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if asJSON {
		err := json.NewDecoder(body).Decode(&sub)
		if err != nil && err != io.EOF {
			return submission{}, err
		}
		return sub, nil
	}
	r.Body = body
	if err := r.ParseForm(); err != nil {
		return submission{}, err
	}
	sub.Password = r.PostForm.Get("password")
	sub.Return = r.PostForm.Get(gate.ReturnParam)
	return sub, nil
}

// check compares the submitted password with the configured one. A missing
// or disabled password and an unreadable settings store are reported just
// like a wrong password.
func (h *Handler) check(r *http.Request, password string) bool {
	s, err := h.settings.Load(r.Context())
	if err != nil {
		h.metrics.SettingsError()
		h.logger.WarnContext(r.Context(), "Failed to read settings", "error", err)
		return false
	}
	if !s.PasswordEnabled || s.Password == "" || password == "" {
		return false
	}
	// Hashing first makes the comparison independent of the lengths.
	want := sha256.Sum256([]byte(s.Password))
	got := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

func (h *Handler) fail(w http.ResponseWriter, asJSON bool, code int, msg string) {
	if asJSON {
		writeJSON(w, code, result{Error: msg})
		return
	}
	http.Error(w, msg, code)
}

var jsonMediaType = contenttype.NewMediaType("application/json")

func isJSON(r *http.Request) bool {
	ctype, err := contenttype.GetMediaType(r)
	return err == nil && ctype.Matches(jsonMediaType)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
