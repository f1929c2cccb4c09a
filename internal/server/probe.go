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

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/deep-rent/sitegate/internal/settings"
)

// probeTimeout bounds a single readiness check.
const probeTimeout = 2 * time.Second

// Pinger is implemented by settings stores that can check their backend
// without reading the settings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// probe serves liveness and readiness checks.
type probe struct {
	check  func(ctx context.Context) error
	logger *slog.Logger
}

// newProbe builds a probe around src. If src is a Pinger its Ping is used,
// otherwise readiness means the settings can be loaded.
func newProbe(src settings.Source, logger *slog.Logger) *probe {
	check := func(ctx context.Context) error {
		_, err := src.Load(ctx)
		return err
	}
	if p, ok := src.(Pinger); ok {
		check = p.Ping
	}
	return &probe{check: check, logger: logger}
}

func (p *probe) ready(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), probeTimeout)
	defer cancel()
	if err := p.check(ctx); err != nil {
		p.logger.WarnContext(ctx, "Readiness check failed", "error", err)
		http.Error(res, "not ready", http.StatusServiceUnavailable)
		return
	}
	res.WriteHeader(http.StatusOK)
	_, _ = res.Write([]byte("ready"))
}

func (p *probe) healthy(res http.ResponseWriter, _ *http.Request) {
	res.WriteHeader(http.StatusOK)
	_, _ = res.Write([]byte("healthy"))
}
