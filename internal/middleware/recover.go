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

package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/deep-rent/nexus/middleware"
)

// Recover converts panics into a 500 Internal Server Error and logs the
// panic value, the stack trace and the request id. http.ErrAbortHandler is
// re-raised so that net/http aborts the response silently.
func Recover(logger *slog.Logger) middleware.Pipe {
	logger = logger.With("name", "Recover")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.ErrorContext(r.Context(),
						"An unhandled panic occurred",
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", middleware.GetRequestID(r.Context()),
						"panic", err,
						"stack", string(debug.Stack()),
					)
					code := http.StatusInternalServerError
					http.Error(w, http.StatusText(code), code)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
