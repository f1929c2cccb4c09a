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

// Package tunnel forwards admitted requests to the upstream site.
package tunnel

import (
	"net/http"
	"net/url"
	"time"

	"github.com/deep-rent/nexus/proxy"
)

// DefaultFlushInterval flushes buffered responses periodically so that
// server-rendered pages streamed by the upstream reach the visitor early.
const DefaultFlushInterval = 200 * time.Millisecond

// New returns a reverse proxy to target. A non-positive flush interval
// selects DefaultFlushInterval.
func New(target *url.URL, flush time.Duration) http.Handler {
	if flush <= 0 {
		flush = DefaultFlushInterval
	}
	return proxy.NewHandler(
		target,
		proxy.WithFlushInterval(flush),
		proxy.WithTransport(&http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     true,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			// Pass the upstream encoding through untouched.
			DisableCompression: true,
		}),
	)
}
