// Copyright lynxgate authors.
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

package ratelimit

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PolicyKind names one of the two window-based limiter kinds a route's
// policy rate-limit can select, mirroring the fixed/sliding distinction
// in the spec's rate-limiter catalogue (token bucket and concurrency are
// covered by TokenBucket and ConcurrencyLimiter directly).
type PolicyKind string

const (
	PolicyFixedWindow   PolicyKind = "fixed"
	PolicySlidingWindow PolicyKind = "sliding"
)

// PolicyLimiter is a per-client keyed window limiter: each client key
// (typically the request's IP) gets its own window counter, lazily
// created and evicted after policyIdleTTL of inactivity so a route under
// attack from many distinct IPs doesn't grow the counter set without
// bound. The eviction cache mirrors internal/waf.Scanner's match cache.
type PolicyLimiter struct {
	kind   PolicyKind
	limit  int
	period time.Duration
	cache  *expirable.LRU[string, limiterWindow]
}

// limiterWindow is satisfied by *FixedWindow and *SlidingWindow.
type limiterWindow interface {
	Allow() bool
}

// policyIdleTTL bounds how long an idle client's window counter is kept
// before its slot is reclaimed.
const policyIdleTTL = 10 * time.Minute

// NewPolicyLimiter builds a PolicyLimiter allowing limit requests per
// period per client key, using the window kind named by kind.
func NewPolicyLimiter(kind PolicyKind, limit int, period time.Duration, cacheSize int) *PolicyLimiter {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	return &PolicyLimiter{
		kind:   kind,
		limit:  limit,
		period: period,
		cache:  expirable.NewLRU[string, limiterWindow](cacheSize, nil, policyIdleTTL),
	}
}

// Allow reports whether the request identified by key fits under the
// policy's limit for the current window, creating that client's window
// counter on first use.
func (p *PolicyLimiter) Allow(key string) bool {
	w, ok := p.cache.Get(key)
	if !ok {
		w = p.newWindow()
	}
	p.cache.Add(key, w) // re-adding restarts the idle TTL
	return w.Allow()
}

func (p *PolicyLimiter) newWindow() limiterWindow {
	if p.kind == PolicySlidingWindow {
		return NewSlidingWindow(p.limit, p.period)
	}
	return NewFixedWindow(p.limit, p.period)
}
