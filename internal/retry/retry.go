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

// Package retry repeats an operation with backoff until it succeeds or its
// context ends.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/deep-rent/nexus/backoff"
)

const (
	// DefaultMinDelay is the smallest delay between attempts.
	DefaultMinDelay = 250 * time.Millisecond
	// DefaultMaxDelay caps the delay between attempts.
	DefaultMaxDelay = 5 * time.Second
)

type config struct {
	backoff backoff.Strategy
	logger  *slog.Logger
}

func defaultConfig() config {
	return config{
		backoff: backoff.New(
			backoff.WithMinDelay(DefaultMinDelay),
			backoff.WithMaxDelay(DefaultMaxDelay),
			backoff.WithGrowthFactor(2),
			backoff.WithJitterAmount(0.2),
		),
		logger: slog.New(slog.DiscardHandler),
	}
}

// Option configures Until.
type Option func(*config)

// WithBackoff replaces the default exponential backoff. Nil is ignored.
func WithBackoff(s backoff.Strategy) Option {
	return func(cfg *config) {
		if s != nil {
			cfg.backoff = s
		}
	}
}

// WithLogger reports failed attempts at debug level. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// Until calls op until it returns nil. If ctx ends first, the last error of
// op is returned, or the context error if op never ran.
func Until(ctx context.Context, op func(context.Context) error, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	defer cfg.backoff.Done()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx)
		if err == nil {
			return nil
		}

		wait := cfg.backoff.Next()
		cfg.logger.DebugContext(ctx, "Attempt failed",
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
