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

package settings

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the default time a loaded snapshot is served from memory.
const DefaultTTL = 5 * time.Second

// Cache serves settings from memory for a bounded time before reloading
// them from its Source. Concurrent misses share a single load. Failed loads
// are not cached, so every request after a failure retries the source.
//
// A Cache is safe for concurrent use.
type Cache struct {
	src   Source
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	value   Settings
	fetched time.Time
	valid   bool
}

type cacheConfig struct {
	ttl time.Duration
	now func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*cacheConfig)

// WithTTL sets how long a snapshot stays fresh. A non-positive TTL disables
// caching, so that every Get reaches the source.
func WithTTL(d time.Duration) CacheOption {
	return func(cfg *cacheConfig) {
		cfg.ttl = d
	}
}

// WithClock replaces the time source. Nil is ignored.
func WithClock(now func() time.Time) CacheOption {
	return func(cfg *cacheConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// NewCache wraps src in a Cache.
func NewCache(src Source, opts ...CacheOption) *Cache {
	cfg := cacheConfig{
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{
		src: src,
		ttl: cfg.ttl,
		now: cfg.now,
	}
}

// Get returns the cached settings, loading them if the snapshot is missing
// or stale.
func (c *Cache) Get(ctx context.Context) (Settings, error) {
	if s, ok := c.cached(); ok {
		return s, nil
	}
	v, err, _ := c.group.Do("settings", func() (any, error) {
		// Another caller may have refreshed the entry while we waited.
		if s, ok := c.cached(); ok {
			return s, nil
		}
		s, err := c.src.Load(ctx)
		if err != nil {
			return Settings{}, err
		}
		c.mu.Lock()
		c.value, c.fetched, c.valid = s, c.now(), true
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return Settings{}, err
	}
	return v.(Settings), nil
}

// Load implements Source, so that a Cache can stand in for its source.
func (c *Cache) Load(ctx context.Context) (Settings, error) {
	return c.Get(ctx)
}

// Invalidate drops the cached snapshot. The next Get reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

func (c *Cache) cached() (Settings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || c.now().Sub(c.fetched) >= c.ttl {
		return Settings{}, false
	}
	return c.value, true
}
