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

package access

import "sync"

// ConnLimitConfig bounds concurrent requests per-IP, per-cluster, in total,
// and per path pattern.
type ConnLimitConfig struct {
	PerIP      int // 0 means unlimited
	PerCluster int
	Total      int
	PathLimits map[string]int // glob -> limit
}

// ConnLimiter tracks the live counters a ConnLimitConfig needs. Acquire
// attempts all applicable counters atomically with respect to each other:
// if any would be exceeded, every counter touched by this call is
// reverted before returning false.
type ConnLimiter struct {
	cfg ConnLimitConfig

	mu       sync.Mutex
	perIP    map[string]int
	perClust map[string]int
	total    int
	perPath  map[string]int
}

// NewConnLimiter builds a limiter for cfg.
func NewConnLimiter(cfg ConnLimitConfig) *ConnLimiter {
	return &ConnLimiter{
		cfg:      cfg,
		perIP:    map[string]int{},
		perClust: map[string]int{},
		perPath:  map[string]int{},
	}
}

// Token represents one successfully acquired set of counters. Release
// must be called exactly once, on every exit path including cancellation.
type Token struct {
	ip, cluster, pathGlob string
	acquired              bool
}

// Acquire attempts to reserve one slot against ip, cluster and whichever
// path-pattern rule (if any) matches path.
func (l *ConnLimiter) Acquire(ip, cluster, path string) (Token, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pathGlob := l.matchPathGlob(path)

	if l.cfg.Total > 0 && l.total+1 > l.cfg.Total {
		return Token{}, false
	}
	if l.cfg.PerIP > 0 && l.perIP[ip]+1 > l.cfg.PerIP {
		return Token{}, false
	}
	if l.cfg.PerCluster > 0 && l.perClust[cluster]+1 > l.cfg.PerCluster {
		return Token{}, false
	}
	if pathGlob != "" {
		limit := l.cfg.PathLimits[pathGlob]
		if limit > 0 && l.perPath[pathGlob]+1 > limit {
			return Token{}, false
		}
	}

	l.total++
	l.perIP[ip]++
	l.perClust[cluster]++
	if pathGlob != "" {
		l.perPath[pathGlob]++
	}
	return Token{ip: ip, cluster: cluster, pathGlob: pathGlob, acquired: true}, true
}

func (l *ConnLimiter) matchPathGlob(path string) string {
	best := ""
	bestLen := -1
	for glob := range l.cfg.PathLimits {
		if globMatch(glob, path) && literalPrefixLen(glob) > bestLen {
			best, bestLen = glob, literalPrefixLen(glob)
		}
	}
	return best
}

// Release returns t's reserved slots. Releasing a zero-value Token (from
// a rejected Acquire) is a no-op, so callers may defer Release
// unconditionally; a Token that was acquired must be released exactly
// once, since a second Release of the same Token decrements again.
func (l *ConnLimiter) Release(t Token) {
	if !t.acquired {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total--
	l.perIP[t.ip]--
	l.perClust[t.cluster]--
	if t.pathGlob != "" {
		l.perPath[t.pathGlob]--
	}
}
