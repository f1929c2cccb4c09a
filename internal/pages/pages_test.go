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

package pages_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/deep-rent/sitegate/internal/gate"
	"github.com/deep-rent/sitegate/internal/pages"
	"github.com/deep-rent/sitegate/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct {
	s   settings.Settings
	err error
}

func (src source) Load(context.Context) (settings.Settings, error) {
	return src.s, src.err
}

func newPages(src settings.Source) *pages.Pages {
	return pages.New(&pages.Config{
		Settings: src,
		Logger:   slog.New(slog.DiscardHandler),
	})
}

func TestPassword(t *testing.T) {
	p := newPages(source{})
	ret := gate.EncodeReturn("/dashboard/admin")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, gate.DefaultPasswordPage+"?return="+ret, nil)
	p.Password().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.Contains(t, body, `action="`+gate.DefaultPasswordEndpoint+`"`)
	assert.Contains(t, body, `name="return" value="`+ret+`"`)
	assert.Contains(t, body, `name="password"`)
}

func TestPassword_EscapesReturn(t *testing.T) {
	p := newPages(source{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, gate.DefaultPasswordPage+"?return="+url.QueryEscape(`"><script>`), nil)
	p.Password().ServeHTTP(rr, req)

	assert.NotContains(t, rr.Body.String(), "<script>")
}

func TestPassword_MethodNotAllowed(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, gate.DefaultPasswordPage, nil)
	newPages(source{}).Password().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMaintenance(t *testing.T) {
	tests := []struct {
		name     string
		src      source
		code     int
		contains string
		excludes string
	}{
		{
			name:     "markdown",
			src:      source{s: settings.Settings{UnderConstruction: true, MaintenanceMessage: "Back **soon**"}},
			code:     http.StatusServiceUnavailable,
			contains: "<strong>soon</strong>",
		},
		{
			name:     "raw html omitted",
			src:      source{s: settings.Settings{UnderConstruction: true, MaintenanceMessage: "<script>alert(1)</script>"}},
			code:     http.StatusServiceUnavailable,
			excludes: "<script>",
		},
		{
			name:     "default message",
			src:      source{s: settings.Settings{UnderConstruction: true}},
			code:     http.StatusServiceUnavailable,
			contains: pages.DefaultMessage,
		},
		{
			name:     "settings unavailable",
			src:      source{err: errors.New("database is locked")},
			code:     http.StatusServiceUnavailable,
			contains: pages.DefaultMessage,
		},
		{
			name: "maintenance off",
			src:  source{s: settings.Settings{}},
			code: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, gate.DefaultMaintenancePage, nil)
			newPages(tc.src).Maintenance().ServeHTTP(rr, req)

			assert.Equal(t, tc.code, rr.Code)
			if tc.code == http.StatusServiceUnavailable {
				assert.Equal(t, "300", rr.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, rr.Header().Get("Retry-After"))
			}
			if tc.contains != "" {
				assert.Contains(t, rr.Body.String(), tc.contains)
			}
			if tc.excludes != "" {
				assert.NotContains(t, rr.Body.String(), tc.excludes)
			}
		})
	}
}

func TestMaintenance_Head(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, gate.DefaultMaintenancePage, nil)
	newPages(source{s: settings.Settings{UnderConstruction: true}}).Maintenance().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Empty(t, rr.Body.String())
}
