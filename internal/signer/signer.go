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

// Package signer computes and checks keyed message authentication codes
// over access token payloads.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

// MinimumKeyLength is the recommended minimum length of a signing key.
// Shorter keys still work but should be reported at startup.
const MinimumKeyLength = 32

// DefaultAlgorithm names the hash used when no algorithm is configured.
const DefaultAlgorithm = "sha256"

// Algorithm constructs the hash function underlying the HMAC.
type Algorithm func() hash.Hash

// Algorithms lists the supported hash functions by name. Only digests of at
// least 256 bits are offered.
var Algorithms = map[string]Algorithm{
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// ResolveAlgorithm looks up an algorithm by its case-insensitive name. An
// empty name resolves to DefaultAlgorithm. It returns nil for unknown names.
func ResolveAlgorithm(name string) Algorithm {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultAlgorithm
	}
	return Algorithms[name]
}

// Signer produces and checks hex-encoded MACs.
type Signer interface {
	// Sign returns the lowercase hex-encoded MAC of data.
	Sign(data string) string
	// Verify reports whether sig is the MAC of data. The comparison runs in
	// constant time with respect to the signature contents.
	Verify(data, sig string) bool
}

// New returns a Signer keyed with key. The key is used as-is; an empty key
// is accepted here, callers are expected to reject it earlier.
func New(key string, opts ...Option) Signer {
	s := &signer{
		key: []byte(key),
		alg: Algorithms[DefaultAlgorithm],
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures a Signer.
type Option func(*signer)

// WithAlgorithm selects the hash function. Nil is ignored.
func WithAlgorithm(alg Algorithm) Option {
	return func(s *signer) {
		if alg != nil {
			s.alg = alg
		}
	}
}

type signer struct {
	key []byte
	alg Algorithm
}

func (s *signer) mac(data string) []byte {
	mac := hmac.New(s.alg, s.key)
	// Hash writes never fail.
	_, _ = mac.Write([]byte(data))
	return mac.Sum(nil)
}

func (s *signer) Sign(data string) string {
	return hex.EncodeToString(s.mac(data))
}

func (s *signer) Verify(data, sig string) bool {
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(s.mac(data), got)
}
