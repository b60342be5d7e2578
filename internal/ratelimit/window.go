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

// Package ratelimit implements the request-rate and byte-rate controls
// fixed and sliding windows, a token bucket built on
// golang.org/x/time/rate, a concurrency limiter, and byte-rate
// throttling for response bodies.
package ratelimit

import (
	"sync"
	"time"
)

// FixedWindow counts events in non-overlapping windows of Period,
// resetting the counter whenever the current window has elapsed.
type FixedWindow struct {
	Limit  int
	Period time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
	now         func() time.Time
}

// NewFixedWindow builds a counter allowing Limit events per Period.
func NewFixedWindow(limit int, period time.Duration) *FixedWindow {
	return &FixedWindow{Limit: limit, Period: period, now: time.Now}
}

// Allow reports whether one more event fits in the current window,
// incrementing the counter if so.
func (w *FixedWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= w.Period {
		w.windowStart = now
		w.count = 0
	}
	if w.count >= w.Limit {
		return false
	}
	w.count++
	return true
}

// SlidingWindow approximates a true sliding window by weighting the
// previous fixed window's count by the fraction of it still "inside"
// the trailing Period, avoiding the fixed-window edge-burst problem
// where 2x Limit events land just either side of a window boundary.
type SlidingWindow struct {
	Limit  int
	Period time.Duration

	mu        sync.Mutex
	curStart  time.Time
	curCount  int
	prevCount int
	now       func() time.Time
}

// NewSlidingWindow builds a sliding-window counter allowing Limit events
// per Period.
func NewSlidingWindow(limit int, period time.Duration) *SlidingWindow {
	return &SlidingWindow{Limit: limit, Period: period, now: time.Now}
}

// Allow reports whether one more event fits under the weighted count of
// the current and previous windows.
func (w *SlidingWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.curStart.IsZero() {
		w.curStart = now
	}
	elapsed := now.Sub(w.curStart)
	if elapsed >= w.Period {
		periods := elapsed / w.Period
		if periods == 1 {
			w.prevCount = w.curCount
		} else {
			w.prevCount = 0
		}
		w.curCount = 0
		w.curStart = w.curStart.Add(periods * w.Period)
		elapsed = now.Sub(w.curStart)
	}

	weight := 1 - float64(elapsed)/float64(w.Period)
	estimate := float64(w.prevCount)*weight + float64(w.curCount)
	if estimate+1 > float64(w.Limit) {
		return false
	}
	w.curCount++
	return true
}
