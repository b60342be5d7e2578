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

package model

import (
	"sync/atomic"
	"time"
)

type atomicBool struct {
	v atomic.Bool
}

func (a *atomicBool) Load() bool     { return a.v.Load() }
func (a *atomicBool) Store(v bool)   { a.v.Store(v) }

type atomicInt64 struct {
	v atomic.Int64
}

func (a *atomicInt64) Load() int64        { return a.v.Load() }
func (a *atomicInt64) Store(v int64)      { a.v.Store(v) }
func (a *atomicInt64) Add(delta int64) int64 { return a.v.Add(delta) }

// atomicTime stores a time.Time as UnixNano so reads and writes are lock-free.
type atomicTime struct {
	v atomic.Int64
}

func (a *atomicTime) Load() time.Time {
	n := a.v.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (a *atomicTime) Store(t time.Time) {
	a.v.Store(t.UnixNano())
}
