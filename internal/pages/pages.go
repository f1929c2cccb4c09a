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

// Package pages serves the built-in password and maintenance pages.
package pages

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/deep-rent/sitegate/internal/gate"
	"github.com/deep-rent/sitegate/internal/settings"
)

const (
	// DefaultTitle is shown on both pages if no site title is configured.
	DefaultTitle = "Coming soon"
	// DefaultRetryAfter is advertised while maintenance mode is on.
	DefaultRetryAfter = 5 * time.Minute
	// DefaultMessage is rendered if no maintenance message is stored.
	DefaultMessage = "We are working on the site. Please check back soon."
)

var (
	passwordTmpl    = template.Must(template.New("password").Parse(passwordHTML))
	maintenanceTmpl = template.Must(template.New("maintenance").Parse(maintenanceHTML))
)

// Config configures the pages. Settings is required.
type Config struct {
	Settings         settings.Source
	PasswordEndpoint string
	Title            string
	RetryAfter       time.Duration
	Logger           *slog.Logger
}

// Pages renders the gate pages.
type Pages struct {
	settings   settings.Source
	endpoint   string
	title      string
	retryAfter time.Duration
	markdown   goldmark.Markdown
	logger     *slog.Logger
}

// New creates the pages from cfg.
func New(cfg *Config) *Pages {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.PasswordEndpoint
	if endpoint == "" {
		endpoint = gate.DefaultPasswordEndpoint
	}
	title := cfg.Title
	if title == "" {
		title = DefaultTitle
	}
	retryAfter := cfg.RetryAfter
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &Pages{
		settings:   cfg.Settings,
		endpoint:   endpoint,
		title:      title,
		retryAfter: retryAfter,
		// Raw HTML in the message is omitted, as goldmark does by default.
		markdown: goldmark.New(goldmark.WithExtensions(extension.Linkify)),
		logger:   logger.With("name", "Pages"),
	}
}

// Password serves the password entry form. The encoded return path is
// passed through unchanged so the exchange can redirect back after success.
func (p *Pages) Password() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !readOnly(w, r) {
			return
		}
		p.render(w, r, http.StatusOK, passwordTmpl, map[string]any{
			"Title":  p.title,
			"Action": p.endpoint,
			"Return": r.URL.Query().Get(gate.ReturnParam),
			"Param":  gate.ReturnParam,
		})
	})
}

// Maintenance serves the maintenance page with the stored message. The page
// answers 503 while maintenance mode is on and 200 otherwise.
func (p *Pages) Maintenance() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !readOnly(w, r) {
			return
		}
		msg := DefaultMessage
		code := http.StatusServiceUnavailable
		s, err := p.settings.Load(r.Context())
		if err != nil {
			p.logger.WarnContext(r.Context(), "Failed to read settings", "error", err)
		} else {
			if s.MaintenanceMessage != "" {
				msg = s.MaintenanceMessage
			}
			if !s.UnderConstruction {
				code = http.StatusOK
			}
		}

		var buf bytes.Buffer
		if err := p.markdown.Convert([]byte(msg), &buf); err != nil {
			p.logger.ErrorContext(r.Context(), "Failed to render message", "error", err)
			buf.Reset()
			template.HTMLEscape(&buf, []byte(msg))
		}

		if code == http.StatusServiceUnavailable {
			secs := int(p.retryAfter / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		p.render(w, r, code, maintenanceTmpl, map[string]any{
			"Title": p.title,
			// goldmark omits raw HTML unless told otherwise.
			"Message": template.HTML(buf.String()),
		})
	})
}

func (p *Pages) render(
	w http.ResponseWriter,
	r *http.Request,
	code int,
	tmpl *template.Template,
	data any,
) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		p.logger.ErrorContext(r.Context(), "Failed to render page", "error", err)
		code = http.StatusInternalServerError
		http.Error(w, http.StatusText(code), code)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Frame-Options", "DENY")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_, _ = buf.WriteTo(w)
	}
}

func readOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	code := http.StatusMethodNotAllowed
	http.Error(w, http.StatusText(code), code)
	return false
}
