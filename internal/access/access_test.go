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

package access_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/deep-rent/sitegate/internal/access"
	"github.com/deep-rent/sitegate/internal/gate"
	"github.com/deep-rent/sitegate/internal/settings"
	"github.com/deep-rent/sitegate/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	remoteAddr = "192.0.2.10:51000"
	userAgent  = "Mozilla/5.0 (test)"
	password   = "open sesame"
)

type source struct {
	s   settings.Settings
	err error
}

func (src source) Load(context.Context) (settings.Settings, error) {
	return src.s, src.err
}

type failingIssuer struct{}

func (failingIssuer) Issue(string, token.Fingerprint) (string, error) {
	return "", errors.New("entropy source exhausted")
}

var locked = settings.Settings{PasswordEnabled: true, Password: password}

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	codec, err := token.New("test-secret-test-secret-test-secret")
	require.NoError(t, err)
	return codec
}

func newHandler(t *testing.T, cfg *access.Config) *access.Handler {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return access.NewHandler(cfg)
}

func form(values url.Values) *http.Request {
	req := httptest.NewRequest(
		http.MethodPost,
		"http://example.com"+gate.DefaultPasswordEndpoint,
		strings.NewReader(values.Encode()),
	)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.RemoteAddr = remoteAddr
	return req
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(
		http.MethodPost,
		"http://example.com"+gate.DefaultPasswordEndpoint,
		strings.NewReader(body),
	)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("User-Agent", userAgent)
	req.RemoteAddr = remoteAddr
	return req
}

func accessCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == gate.DefaultCookieName {
			return c
		}
	}
	return nil
}

func TestHandler_Success(t *testing.T) {
	codec := newCodec(t)
	h := newHandler(t, &access.Config{
		Settings:     source{s: locked},
		Issuer:       codec,
		SecureCookie: true,
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, form(url.Values{
		"password":       {password},
		gate.ReturnParam: {gate.EncodeReturn("/dashboard/admin")},
	}))

	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard/admin", rr.Header().Get("Location"))

	c := accessCookie(rr)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, int(access.DefaultCookieMaxAge/time.Second), c.MaxAge)

	v, ok := codec.Verify(c.Value, token.Fingerprint{
		IP:        "192.0.2.10",
		UserAgent: userAgent,
	})
	assert.True(t, ok)
	assert.Equal(t, token.Granted, v)
}

func TestHandler_ReturnPath(t *testing.T) {
	tests := []struct {
		name string
		ret  string
		want string
	}{
		{"missing", "", "/"},
		{"garbage", "%%%", "/"},
		{"offsite", gate.EncodeReturn("//evil.example/"), "/"},
		{"nested", gate.EncodeReturn("/blog/2024/hello"), "/blog/2024/hello"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandler(t, &access.Config{
				Settings: source{s: locked},
				Issuer:   newCodec(t),
			})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, form(url.Values{
				"password":       {password},
				gate.ReturnParam: {tc.ret},
			}))
			require.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, tc.want, rr.Header().Get("Location"))
		})
	}
}

func TestHandler_JSON(t *testing.T) {
	h := newHandler(t, &access.Config{
		Settings:     source{s: locked},
		Issuer:       newCodec(t),
		CookieMaxAge: time.Minute,
	})

	t.Run("success", func(t *testing.T) {
		rr := httptest.NewRecorder()
		body := `{"password":"open sesame","return":"` + gate.EncodeReturn("/shop") + `"}`
		h.ServeHTTP(rr, jsonRequest(body))

		require.Equal(t, http.StatusOK, rr.Code)
		var res struct {
			Success  bool   `json:"success"`
			Redirect string `json:"redirect"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
		assert.True(t, res.Success)
		assert.Equal(t, "/shop", res.Redirect)

		c := accessCookie(rr)
		require.NotNil(t, c)
		assert.Equal(t, 60, c.MaxAge)
		assert.False(t, c.Secure)
	})

	t.Run("failure", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, jsonRequest(`{"password":"nope"}`))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"incorrect password"}`, rr.Body.String())
		assert.Nil(t, accessCookie(rr))
	})

	t.Run("malformed", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, jsonRequest(`{"password":`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Nil(t, accessCookie(rr))
	})
}

func TestHandler_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		src      source
		password string
	}{
		{"wrong password", source{s: locked}, "open sesame!"},
		{"empty submission", source{s: locked}, ""},
		{"disabled", source{s: settings.Settings{Password: password}}, password},
		{"no password set", source{s: settings.Settings{PasswordEnabled: true}}, ""},
		{"settings unavailable", source{err: errors.New("database is locked")}, password},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandler(t, &access.Config{
				Settings: tc.src,
				Issuer:   newCodec(t),
			})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, form(url.Values{"password": {tc.password}}))

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), "incorrect password")
			assert.Nil(t, accessCookie(rr))
		})
	}
}

func TestHandler_IssueFailure(t *testing.T) {
	h := newHandler(t, &access.Config{
		Settings: source{s: locked},
		Issuer:   failingIssuer{},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, form(url.Values{"password": {password}}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Nil(t, accessCookie(rr))
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newHandler(t, &access.Config{
		Settings: source{s: locked},
		Issuer:   newCodec(t),
	})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, gate.DefaultPasswordEndpoint, nil)
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
}

func TestHandler_Throttled(t *testing.T) {
	h := newHandler(t, &access.Config{
		Settings: source{s: locked},
		Issuer:   newCodec(t),
		Limiter:  access.NewLimiter(2, time.Hour),
	})

	for range 2 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, form(url.Values{"password": {"guess"}}))
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, form(url.Values{"password": {password}}))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Nil(t, accessCookie(rr))

	other := form(url.Values{"password": {password}})
	other.RemoteAddr = "198.51.100.7:4000"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusSeeOther, rr.Code, "other clients are unaffected")
}
