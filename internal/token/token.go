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

// Package token issues and verifies site access tokens.
//
// A token attests a grant value (normally Granted) and binds it to the
// fingerprint of the client it was issued to and to the time of issuance.
// It consists of six dot-separated segments:
//
//	b64url(value) . b64url(issuedAtMs) . ipHash . uaHash . nonce . mac
//
// where ipHash and uaHash are hex-encoded SHA-256 digests of the client IP
// and User-Agent, nonce is hex-encoded randomness and mac is the hex-encoded
// HMAC over the canonical payload
//
//	b64url(value) . issuedAtMs . ipHash . uaHash . nonce
//
// Verification is stateless: no server-side record of issued tokens exists,
// so a token is valid until its freshness window elapses.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/deep-rent/sitegate/internal/signer"
)

const (
	// Granted is the grant value attested by site access tokens.
	Granted = "granted"
	// Unknown stands in for a fingerprint component that cannot be resolved.
	Unknown = "unknown"
	// DefaultWindow is the default maximum token age.
	DefaultWindow = 10 * time.Minute
	// DefaultNonceSize is the default number of random bytes per token.
	DefaultNonceSize = 16
	// MinNonceSize is the smallest nonce size accepted by WithNonceSize.
	MinNonceSize = 16
)

const (
	sep      = "."
	segments = 6
)

// ErrEmptySecret is returned by New if no signing secret is given.
var ErrEmptySecret = errors.New("token: signing secret must not be empty")

// Fingerprint identifies the client a token is bound to.
type Fingerprint struct {
	// IP is the resolved client address, or Unknown.
	IP string
	// UserAgent is the raw User-Agent header value, or Unknown.
	UserAgent string
}

// Codec issues and verifies tokens under a fixed secret.
// A Codec is safe for concurrent use.
type Codec struct {
	signer    signer.Signer
	window    time.Duration
	nonceSize int
	now       func() time.Time
	rand      io.Reader
}

type config struct {
	window    time.Duration
	nonceSize int
	now       func() time.Time
	rand      io.Reader
	alg       signer.Algorithm
}

func defaultConfig() config {
	return config{
		window:    DefaultWindow,
		nonceSize: DefaultNonceSize,
		now:       time.Now,
		rand:      rand.Reader,
		alg:       nil,
	}
}

// Option configures a Codec.
type Option func(*config)

// WithWindow sets the freshness window. Non-positive values are ignored and
// DefaultWindow is used.
func WithWindow(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.window = d
		}
	}
}

// WithNonceSize sets the number of random bytes per token. Values below
// MinNonceSize are ignored.
func WithNonceSize(n int) Option {
	return func(cfg *config) {
		if n >= MinNonceSize {
			cfg.nonceSize = n
		}
	}
}

// WithClock replaces the time source. Nil is ignored.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithRandom replaces the source of nonce bytes. Nil is ignored.
func WithRandom(r io.Reader) Option {
	return func(cfg *config) {
		if r != nil {
			cfg.rand = r
		}
	}
}

// WithAlgorithm selects the MAC hash function. Nil is ignored.
func WithAlgorithm(alg signer.Algorithm) Option {
	return func(cfg *config) {
		if alg != nil {
			cfg.alg = alg
		}
	}
}

// New creates a Codec signing with the given secret.
func New(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Codec{
		signer:    signer.New(secret, signer.WithAlgorithm(cfg.alg)),
		window:    cfg.window,
		nonceSize: cfg.nonceSize,
		now:       cfg.now,
		rand:      cfg.rand,
	}, nil
}

// Window returns the freshness window of issued tokens.
func (c *Codec) Window() time.Duration {
	return c.window
}

// Issue mints a token attesting value for the client identified by fp.
// It only fails if the random source fails.
func (c *Codec) Issue(value string, fp Fingerprint) (string, error) {
	nonce := make([]byte, c.nonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("token: read nonce: %w", err)
	}

	enc := encode(value)
	ms := c.now().UnixMilli()
	ipHash := digest(fp.IP)
	uaHash := digest(fp.UserAgent)
	nonceHex := hex.EncodeToString(nonce)

	sig := c.signer.Sign(payload(enc, ms, ipHash, uaHash, nonceHex))

	return strings.Join([]string{
		enc,
		encode(strconv.FormatInt(ms, 10)),
		ipHash,
		uaHash,
		nonceHex,
		sig,
	}, sep), nil
}

// Verify checks token against the requesting client fp and returns the
// attested value. The second result is false if the token is absent,
// malformed, stale, bound to a different client, or forged. Verify never
// panics on untrusted input.
func (c *Codec) Verify(token string, fp Fingerprint) (string, bool) {
	if token == "" {
		return "", false
	}
	parts := strings.Split(token, sep)
	if len(parts) != segments {
		return "", false
	}
	enc, rawMs, ipHash, uaHash, nonce, sig := parts[0], parts[1], parts[2],
		parts[3], parts[4], parts[5]

	value, ok := decode(enc)
	if !ok {
		return "", false
	}
	s, ok := decode(rawMs)
	if !ok {
		return "", false
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms < 0 || encode(strconv.FormatInt(ms, 10)) != rawMs {
		return "", false
	}
	if c.now().UnixMilli()-ms > c.window.Milliseconds() {
		return "", false
	}

	if !equal(ipHash, digest(fp.IP)) || !equal(uaHash, digest(fp.UserAgent)) {
		return "", false
	}

	// Re-encode the decoded value so that only the canonical encoding of a
	// field can carry a valid signature.
	data := payload(encode(value), ms, ipHash, uaHash, nonce)
	if !c.signer.Verify(data, sig) {
		return "", false
	}
	return value, true
}

func payload(value string, ms int64, ipHash, uaHash, nonce string) string {
	return value + sep + strconv.FormatInt(ms, 10) + sep +
		ipHash + sep + uaHash + sep + nonce
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func decode(s string) (string, bool) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", false
	}
	return string(b), true
}
