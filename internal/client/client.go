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

// Package client derives the fingerprint that access tokens are bound to
// from an incoming request.
//
// Forwarding headers are only consulted if the resolver is told to trust
// them. They are set by whoever sends the request, so trusting them is only
// sound if a reverse proxy in front of the gate overwrites them. Even then the
// IP binding is a hurdle against naive cookie replay, not a security boundary.
package client

import (
	"net"
	"net/http"
	"strings"

	"github.com/deep-rent/sitegate/internal/token"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// Resolver extracts token fingerprints from requests.
type Resolver struct {
	trustForwarded bool
}

// NewResolver creates a Resolver. If trustForwarded is set, the first entry
// of X-Forwarded-For (or else X-Real-IP) takes precedence over the address
// of the connection peer.
func NewResolver(trustForwarded bool) *Resolver {
	return &Resolver{trustForwarded: trustForwarded}
}

// Resolve returns the fingerprint of the client that sent req. Components
// that cannot be determined are reported as token.Unknown.
func (r *Resolver) Resolve(req *http.Request) token.Fingerprint {
	ua := req.UserAgent()
	if ua == "" {
		ua = token.Unknown
	}
	return token.Fingerprint{
		IP:        r.IP(req),
		UserAgent: ua,
	}
}

// IP returns the best-effort client address of req, or token.Unknown.
func (r *Resolver) IP(req *http.Request) string {
	if r.trustForwarded {
		if v := req.Header.Get(headerForwardedFor); v != "" {
			first, _, _ := strings.Cut(v, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(req.Header.Get(headerRealIP)); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(req.RemoteAddr); addr != "" {
		return addr
	}
	return token.Unknown
}
