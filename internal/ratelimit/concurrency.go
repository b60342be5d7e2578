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

// ConcurrencyLimiter bounds the number of in-flight requests using a
// buffered channel as a semaphore.
type ConcurrencyLimiter struct {
	slots chan struct{}
}

// NewConcurrencyLimiter builds a limiter allowing at most max concurrent
// holders.
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{slots: make(chan struct{}, max)}
}

// TryAcquire reserves one slot without blocking, reporting whether it
// succeeded.
func (c *ConcurrencyLimiter) TryAcquire() bool {
	select {
	case c.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot reserved by a successful TryAcquire.
func (c *ConcurrencyLimiter) Release() {
	select {
	case <-c.slots:
	default:
	}
}
