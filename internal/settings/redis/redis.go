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

// Package redis keeps site settings in a Redis hash, so that several gate
// instances can share them.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/deep-rent/sitegate/internal/settings"
)

// DefaultKey is the default name of the settings hash.
const DefaultKey = "sitegate:settings"

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// Key is the name of the hash holding the settings.
	// Default: DefaultKey
	Key string
}

// Store implements settings.Store on top of a single Redis hash.
type Store struct {
	client *redis.Client
	key    string
}

var _ settings.Store = (*Store)(nil)

// New creates a Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.Key == "" {
		config.Key = DefaultKey
	}
	return &Store{
		client: config.Client,
		key:    config.Key,
	}, nil
}

// Load reads the whole hash in one round trip.
func (s *Store) Load(ctx context.Context) (settings.Settings, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return settings.Settings{}, fmt.Errorf("failed to read %s: %w", s.key, err)
	}
	return settings.Parse(values)
}

// Save writes all fields of v in one HSET.
func (s *Store) Save(ctx context.Context, v settings.Settings) error {
	values := v.Values()
	pairs := make([]string, 0, 2*len(values))
	for _, k := range settings.Keys {
		pairs = append(pairs, k, values[k])
	}
	if err := s.client.HSet(ctx, s.key, pairs).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
