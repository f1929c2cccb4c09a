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

// Package config loads the gate's configuration from SITEGATE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/deep-rent/sitegate/internal/gate"
	"github.com/deep-rent/sitegate/internal/signer"
)

// Settings backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)

// Config holds the complete runtime configuration.
type Config struct {
	LogLevel string `env:"SITEGATE_LOG_LEVEL,default=info"`

	Host              string        `env:"SITEGATE_HOST"`
	Port              int           `env:"SITEGATE_PORT,default=8080"`
	ReadTimeout       time.Duration `env:"SITEGATE_READ_TIMEOUT,default=30s"`
	ReadHeaderTimeout time.Duration `env:"SITEGATE_READ_HEADER_TIMEOUT,default=10s"`
	IdleTimeout       time.Duration `env:"SITEGATE_IDLE_TIMEOUT,default=90s"`
	ShutdownTimeout   time.Duration `env:"SITEGATE_SHUTDOWN_TIMEOUT,default=10s"`
	MaxHeaderBytes    int           `env:"SITEGATE_MAX_HEADER_BYTES,default=65536"`

	// StartupTimeout bounds the wait for the settings store at startup.
	StartupTimeout time.Duration `env:"SITEGATE_STARTUP_TIMEOUT,default=30s"`

	// MetricsPort serves /metrics on a separate listener; 0 disables it.
	MetricsPort int `env:"SITEGATE_METRICS_PORT,default=0"`

	// Upstream is the site behind the gate.
	Upstream      string        `env:"SITEGATE_UPSTREAM"`
	FlushInterval time.Duration `env:"SITEGATE_FLUSH_INTERVAL,default=200ms"`

	Secret           string        `env:"SITEGATE_SECRET"`
	SigningAlgorithm string        `env:"SITEGATE_SIGNING_ALGORITHM,default=sha256"`
	TokenWindow      time.Duration `env:"SITEGATE_TOKEN_WINDOW,default=10m"`

	// CookieMaxAge defaults to TokenWindow if unset.
	CookieMaxAge   time.Duration `env:"SITEGATE_COOKIE_MAX_AGE"`
	CookieName     string        `env:"SITEGATE_COOKIE_NAME,default=site_access"`
	SecureCookie   bool          `env:"SITEGATE_SECURE_COOKIE,default=true"`
	TrustForwarded bool          `env:"SITEGATE_TRUST_FORWARDED,default=false"`

	MaintenancePage  string `env:"SITEGATE_MAINTENANCE_PAGE,default=/under-construction"`
	PasswordPage     string `env:"SITEGATE_PASSWORD_PAGE,default=/site-password"`
	PasswordEndpoint string `env:"SITEGATE_PASSWORD_ENDPOINT,default=/api/site-password"`

	// ServePages serves the built-in gate pages instead of the upstream's.
	ServePages bool   `env:"SITEGATE_SERVE_PAGES,default=true"`
	SiteTitle  string `env:"SITEGATE_SITE_TITLE"`

	// ExemptPrefixes is a comma-separated list; see Exempt.
	ExemptPrefixes string `env:"SITEGATE_EXEMPT_PREFIXES"`
	FailOpen       bool   `env:"SITEGATE_FAIL_OPEN,default=false"`

	AttemptBurst  int           `env:"SITEGATE_ATTEMPT_BURST,default=5"`
	AttemptRefill time.Duration `env:"SITEGATE_ATTEMPT_REFILL,default=12s"`

	SettingsBackend string        `env:"SITEGATE_SETTINGS_BACKEND,default=sqlite"`
	SettingsTTL     time.Duration `env:"SITEGATE_SETTINGS_TTL,default=5s"`
	SQLitePath      string        `env:"SITEGATE_SQLITE_PATH,default=sitegate.db"`
	SQLitePoolSize  int           `env:"SITEGATE_SQLITE_POOL_SIZE,default=4"`
	RedisAddr       string        `env:"SITEGATE_REDIS_ADDR,default=localhost:6379"`
	RedisPassword   string        `env:"SITEGATE_REDIS_PASSWORD"`
	RedisDB         int           `env:"SITEGATE_REDIS_DB,default=0"`
	RedisKey        string        `env:"SITEGATE_REDIS_KEY,default=sitegate:settings"`
	MySQLDSN        string        `env:"SITEGATE_MYSQL_DSN"`
}

// Load decodes the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	err := envdecode.StrictDecode(&cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = cfg.TokenWindow
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Secret == "" {
		return errors.New(`required variable "SITEGATE_SECRET" is not set`)
	}
	if c.Upstream == "" {
		return errors.New(`required variable "SITEGATE_UPSTREAM" is not set`)
	}
	if _, err := c.UpstreamURL(); err != nil {
		return err
	}
	if signer.ResolveAlgorithm(c.SigningAlgorithm) == nil {
		return fmt.Errorf("unsupported signing algorithm %q", c.SigningAlgorithm)
	}
	if c.TokenWindow <= 0 {
		return fmt.Errorf("token window must be positive, got %s", c.TokenWindow)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics port %d out of range", c.MetricsPort)
	}
	if c.MetricsPort != 0 && c.MetricsPort == c.Port {
		return fmt.Errorf("metrics port %d collides with the main port", c.MetricsPort)
	}
	if c.MaxHeaderBytes <= 0 {
		return fmt.Errorf("max header bytes must be positive, got %d", c.MaxHeaderBytes)
	}
	for _, p := range []string{c.MaintenancePage, c.PasswordPage, c.PasswordEndpoint} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("page path %q must start with a slash", p)
		}
	}
	if !slices.Contains([]string{BackendSQLite, BackendRedis, BackendMySQL}, c.SettingsBackend) {
		return fmt.Errorf("unknown settings backend %q", c.SettingsBackend)
	}
	if c.SettingsBackend == BackendMySQL && c.MySQLDSN == "" {
		return errors.New(`variable "SITEGATE_MYSQL_DSN" is required for the mysql backend`)
	}
	return nil
}

// UpstreamURL parses the upstream address, which must be an absolute URL.
func (c *Config) UpstreamURL() (*url.URL, error) {
	u, err := url.Parse(c.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("upstream %q is not an absolute URL", c.Upstream)
	}
	return u, nil
}

// Exempt returns the exempt path prefixes, or gate.DefaultExemptPrefixes if
// none are configured.
func (c *Config) Exempt() []string {
	var prefixes []string
	for p := range strings.SplitSeq(c.ExemptPrefixes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	if len(prefixes) == 0 {
		return slices.Clone(gate.DefaultExemptPrefixes)
	}
	return prefixes
}

// ShortSecret reports whether the secret is shorter than recommended for the
// configured algorithm.
func (c *Config) ShortSecret() bool {
	return len(c.Secret) < signer.MinimumKeyLength
}
