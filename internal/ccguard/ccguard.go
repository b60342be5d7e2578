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

// Package ccguard implements the behavioural challenge-collapsar
// analyser: a per-IP, per-path access counter evaluated on a
// fixed tick, applying four ordered heuristics to flag and temporarily
// ban abusive clients.
package ccguard

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lynxgate/lynxgate/internal/ratelimit"
)

// ccWindowIdleTTL bounds how long an idle client's LimitCc windows are
// kept before their slot is reclaimed, mirroring ratelimit.PolicyLimiter's
// and internal/waf.Scanner's identical bounded-eviction pattern so a
// client population that only ever grows doesn't grow this map forever.
const ccWindowIdleTTL = 10 * time.Minute

const ccWindowCacheSize = 4096

// LimitCc is one per-path request-rate rule: more than LimitNum requests to
// Path within Period bans the client for FbTime, independent of the three
// tick-evaluated heuristics below (this rule fires the instant it's
// tripped, on the Record call itself, since Period is typically much
// longer than one analyser Tick).
type LimitCc struct {
	Path     string
	Period   time.Duration
	LimitNum int
	FbTime   time.Duration
}

// Config tunes the analyser's thresholds.
type Config struct {
	Tick                time.Duration // evaluation interval, spec default 100ms
	FirstByteLimit      int           // requests/tick before a client is even considered
	ReentrancyRatio     float64       // distinct paths / total requests below this looks scripted
	MinAccessInterval   time.Duration // requests closer together than this look scripted
	DominantPathShare   float64       // top DominantPathTopN paths' combined share above this looks scripted
	DominantPathTopN    int           // maxFreqGetNums: how many of the client's busiest paths to sum, default 3
	DominantPathMinReqs int           // maxFreqMinReqs: total requests must exceed this before the share check applies, default 100
	LimitCc             []LimitCc     // per-path request-rate rules, evaluated independently of Tick
	BanDuration         time.Duration
	RejectStatus        int // status code the pipeline returns for a banned client, default 403
}

// DefaultRejectStatus is used when Config.RejectStatus is left unset.
const DefaultRejectStatus = 403

// RejectStatus returns the configured status code a banned client's
// requests should be short-circuited with.
func (g *Guard) RejectStatus() int {
	if g.cfg.RejectStatus > 0 {
		return g.cfg.RejectStatus
	}
	return DefaultRejectStatus
}

// record is one client's sliding state within the current tick.
type record struct {
	count       int
	pathCounts  map[string]int
	lastAccess  time.Time
	minInterval time.Duration
}

// Guard tracks per-client counters and a ban list.
type Guard struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]*record
	bans    map[string]time.Time // client -> ban expiry

	// ccWindows holds the per-(client, LimitCc rule index) fixed-window
	// counters backing heuristic 1, bounded and idle-evicted by the same
	// expirable.LRU shape ratelimit.PolicyLimiter and waf.Scanner use. It
	// has its own lock, separate from mu: checkLimitCc runs after Record
	// has released mu, holds ccMu only while looking windows up, and takes
	// mu only to record a ban.
	ccMu      sync.Mutex
	ccWindows *expirable.LRU[string, map[int]*ratelimit.FixedWindow]
}

// New builds a Guard for cfg, filling in documented defaults for zero
// fields.
func New(cfg Config) *Guard {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.BanDuration <= 0 {
		cfg.BanDuration = 60 * time.Second
	}
	if cfg.DominantPathTopN <= 0 {
		cfg.DominantPathTopN = 3
	}
	if cfg.DominantPathMinReqs <= 0 {
		cfg.DominantPathMinReqs = 100
	}
	return &Guard{
		cfg:       cfg,
		clients:   map[string]*record{},
		bans:      map[string]time.Time{},
		ccWindows: expirable.NewLRU[string, map[int]*ratelimit.FixedWindow](ccWindowCacheSize, nil, ccWindowIdleTTL),
	}
}

// Banned reports whether client is currently under an active ban.
func (g *Guard) Banned(client string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bannedLocked(client, time.Now())
}

func (g *Guard) bannedLocked(client string, now time.Time) bool {
	expiry, ok := g.bans[client]
	if !ok {
		return false
	}
	if now.After(expiry) {
		delete(g.bans, client)
		return false
	}
	return true
}

// Record registers one request from client against path, to be
// evaluated on the next Tick call, and separately checks path against any
// configured LimitCc rules (heuristic 1), which ban immediately rather
// than waiting for the next Tick.
func (g *Guard) Record(client, path string, now time.Time) {
	g.mu.Lock()
	r, ok := g.clients[client]
	if !ok {
		r = &record{pathCounts: map[string]int{}}
		g.clients[client] = r
	}
	if !r.lastAccess.IsZero() {
		if interval := now.Sub(r.lastAccess); r.minInterval == 0 || interval < r.minInterval {
			r.minInterval = interval
		}
	}
	r.lastAccess = now
	r.count++
	r.pathCounts[path]++
	g.mu.Unlock()

	g.checkLimitCc(client, path, now)
}

// checkLimitCc evaluates path against every configured LimitCc rule for
// client, banning for that rule's FbTime the moment one is exceeded.
func (g *Guard) checkLimitCc(client, path string, now time.Time) {
	if len(g.cfg.LimitCc) == 0 {
		return
	}
	g.ccMu.Lock()
	windows, ok := g.ccWindows.Get(client)
	if !ok {
		windows = map[int]*ratelimit.FixedWindow{}
	}
	g.ccWindows.Add(client, windows) // re-adding restarts the idle TTL
	g.ccMu.Unlock()

	for i, rule := range g.cfg.LimitCc {
		if rule.Path != path {
			continue
		}
		g.ccMu.Lock()
		w, ok := windows[i]
		if !ok {
			w = ratelimit.NewFixedWindow(rule.LimitNum, rule.Period)
			windows[i] = w
		}
		g.ccMu.Unlock()

		if !w.Allow() {
			fbTime := rule.FbTime
			if fbTime <= 0 {
				fbTime = g.cfg.BanDuration
			}
			g.mu.Lock()
			g.bans[client] = now.Add(fbTime)
			g.mu.Unlock()
		}
	}
}

// Tick evaluates every client's counters against the three tick-evaluated
// heuristics (2-4; LimitCc, heuristic 1, runs in Record),
// bans clients that trip any of them, and resets counters for the next
// window. It returns the set of clients newly banned by this tick.
func (g *Guard) Tick(now time.Time) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var banned []string
	clients := make([]string, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	sort.Strings(clients) // deterministic evaluation order

	for _, client := range clients {
		r := g.clients[client]
		if g.evaluate(r) {
			g.bans[client] = now.Add(g.cfg.BanDuration)
			banned = append(banned, client)
		}
		delete(g.clients, client)
	}
	return banned
}

// evaluate runs the three tick-evaluated heuristics against r in order, short-circuiting
// (returning true) on the first one that fires.
func (g *Guard) evaluate(r *record) bool {
	if g.cfg.FirstByteLimit > 0 && r.count < g.cfg.FirstByteLimit {
		return false
	}

	// 2. Reentrancy ratio: distinct paths relative to total requests.
	if g.cfg.ReentrancyRatio > 0 {
		ratio := float64(len(r.pathCounts)) / float64(r.count)
		if ratio < g.cfg.ReentrancyRatio {
			return true
		}
	}

	// 3. Access interval: requests arriving faster than a human could.
	if g.cfg.MinAccessInterval > 0 && r.count > 1 {
		if r.minInterval > 0 && r.minInterval < g.cfg.MinAccessInterval {
			return true
		}
	}

	// 4. Dominant-path share: the client's busiest DominantPathTopN paths
	// (maxFreqGetNums) combined take up most of its total requests, once
	// that total clears DominantPathMinReqs (maxFreqMinReqs) — a client
	// with only a handful of requests shares a single path by chance, not
	// by scripting.
	if g.cfg.DominantPathShare > 0 && r.count > g.cfg.DominantPathMinReqs {
		counts := make([]int, 0, len(r.pathCounts))
		for _, n := range r.pathCounts {
			counts = append(counts, n)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(counts)))

		topN := g.cfg.DominantPathTopN
		if topN > len(counts) {
			topN = len(counts)
		}
		sum := 0
		for _, n := range counts[:topN] {
			sum += n
		}
		if float64(sum)/float64(r.count) >= g.cfg.DominantPathShare {
			return true
		}
	}

	return false
}
