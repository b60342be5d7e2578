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
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket wraps golang.org/x/time/rate.Limiter, which already
// implements the classic token-bucket algorithm (refill rate + burst
// capacity) with no busy-waiting.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket builds a bucket refilling at ratePerSec tokens/second
// with burst capacity burst.
func NewTokenBucket(ratePerSec float64, burst int) *TokenBucket {
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Allow reports whether a single token is available right now, consuming
// it if so.
func (b *TokenBucket) Allow() bool {
	return b.limiter.Allow()
}

// AllowN reports whether n tokens are available right now, consuming
// them if so. Used for byte-rate throttling where n is a chunk size.
func (b *TokenBucket) AllowN(n int) bool {
	return b.limiter.AllowN(time.Now(), n)
}

// WaitN blocks until n tokens are available or ctx is done.
func (b *TokenBucket) WaitN(ctx context.Context, n int) error {
	return b.limiter.WaitN(ctx, n)
}

// KeyedTokenBuckets is a registry of per-key TokenBuckets (e.g. one per
// client IP) created lazily on first use.
type KeyedTokenBuckets struct {
	mu         sync.Mutex
	buckets    map[string]*TokenBucket
	ratePerSec float64
	burst      int
}

// NewKeyedTokenBuckets builds a registry where every new key gets its
// own bucket with the given rate and burst.
func NewKeyedTokenBuckets(ratePerSec float64, burst int) *KeyedTokenBuckets {
	return &KeyedTokenBuckets{buckets: map[string]*TokenBucket{}, ratePerSec: ratePerSec, burst: burst}
}

// For returns the bucket for key, creating it on first use.
func (k *KeyedTokenBuckets) For(key string) *TokenBucket {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.buckets[key]
	if !ok {
		b = NewTokenBucket(k.ratePerSec, k.burst)
		k.buckets[key] = b
	}
	return b
}
