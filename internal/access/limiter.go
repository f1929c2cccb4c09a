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

package access

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultAttempts is the default burst of password attempts per client.
	DefaultAttempts = 5
	// DefaultRefill is the default time in which one attempt is regained.
	DefaultRefill = 12 * time.Second
	// idleAfter is how long a client must be quiet before it is forgotten.
	idleAfter = 10 * time.Minute
	// sweepAbove is the number of tracked clients that triggers a sweep.
	sweepAbove = 4096
)

// Limiter throttles password attempts per client address with a token
// bucket. A nil *Limiter allows everything.
type Limiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*visitor
}

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewLimiter allows burst attempts per client, regaining one attempt every
// refill. Non-positive arguments select DefaultAttempts and DefaultRefill.
func NewLimiter(burst int, refill time.Duration) *Limiter {
	if burst <= 0 {
		burst = DefaultAttempts
	}
	if refill <= 0 {
		refill = DefaultRefill
	}
	return &Limiter{
		limit:   rate.Every(refill),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*visitor),
	}
}

// Allow reports whether the client identified by key may attempt a password
// submission now, and consumes one attempt if so.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.clients) > sweepAbove {
		l.sweep(now)
	}
	v, ok := l.clients[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = v
	}
	v.seen = now
	return v.limiter.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	for k, v := range l.clients {
		if now.Sub(v.seen) > idleAfter {
			delete(l.clients, k)
		}
	}
}
