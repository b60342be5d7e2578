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

// Package cluster implements destination selection across the eleven load
// balancing policies, plus active and passive health tracking, for one
// upstream pool (model.Cluster).
package cluster

import (
	"context"
	"hash/maphash"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/lynxgate/lynxgate/internal/model"
)

// RequestContext carries the fields a hash-based policy may need to derive
// its key from, without coupling this package to net/http.
type RequestContext struct {
	ClientIP string
	Path     string
	Query    func(name string) string
	Header   func(name string) string
	Cookie   func(name string) string
}

// FromHTTPRequest builds a RequestContext from a live *http.Request.
func FromHTTPRequest(r *http.Request, clientIP string) RequestContext {
	return RequestContext{
		ClientIP: clientIP,
		Path:     r.URL.Path,
		Query:    func(name string) string { return r.URL.Query().Get(name) },
		Header:   func(name string) string { return r.Header.Get(name) },
		Cookie: func(name string) string {
			c, err := r.Cookie(name)
			if err != nil {
				return ""
			}
			return c.Value
		},
	}
}

// Selector wraps a model.Cluster with the mutable state its load-balancing
// policies need (round-robin cursor, smooth-weighted current-weights,
// consistent-hash ring). One Selector is created per Cluster at graph
// build time and lives as long as the Cluster.
type Selector struct {
	mu       sync.Mutex
	c        *model.Cluster
	rrCursor int
	curWeight map[string]int // WeightedRoundRobin current-weight per destination id
	ring      *hashRing      // ConsistentHash, built lazily
}

// NewSelector constructs a Selector for c.
func NewSelector(c *model.Cluster) *Selector {
	return &Selector{c: c, curWeight: map[string]int{}}
}

// Destinations returns the cluster's full destination pool, regardless of
// health. Callers that need to walk the pool themselves (the stream
// proxy's pre-connect probe, for instance) use this instead of Select.
func (s *Selector) Destinations() []*model.Destination {
	return s.c.Destinations
}

// Select picks one destination for ctx, or reports ok=false if the
// cluster has no destinations at all.
func (s *Selector) Select(ctx context.Context, rc RequestContext) (*model.Destination, bool) {
	pool := s.healthyOrAll()
	if len(pool) == 0 {
		return nil, false
	}

	switch s.c.LBPolicy {
	case model.RoundRobin:
		return s.roundRobin(pool), true
	case model.Random:
		return pool[rand.Intn(len(pool))], true
	case model.LeastRequests:
		return leastRequests(pool), true
	case model.PowerOfTwoChoices:
		return powerOfTwo(pool), true
	case model.First:
		return pool[0], true
	case model.WeightedRoundRobin:
		return s.smoothWeighted(pool), true
	case model.WeightedLeastConnections:
		return weightedLeastConnections(pool), true
	case model.WeightedRandom:
		return weightedRandom(pool), true
	case model.IPHash:
		return s.hashPick(pool, rc.ClientIP), true
	case model.GenericHash:
		return s.hashPick(pool, genericHashKey(s.c.HashKeys, rc)), true
	case model.ConsistentHash:
		return s.consistentHashPick(pool, genericHashKey(s.c.HashKeys, rc)), true
	default:
		return s.roundRobin(pool), true
	}
}

// healthyOrAll filters to healthy destinations, falling back to the full
// set if none are healthy so a request can still attempt once.
func (s *Selector) healthyOrAll() []*model.Destination {
	var healthy []*model.Destination
	for _, d := range s.c.Destinations {
		if d.Healthy() {
			healthy = append(healthy, d)
		}
	}
	if len(healthy) > 0 {
		return healthy
	}
	return s.c.Destinations
}

func (s *Selector) roundRobin(pool []*model.Destination) *model.Destination {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := pool[s.rrCursor%len(pool)]
	s.rrCursor++
	return d
}

func leastRequests(pool []*model.Destination) *model.Destination {
	best := pool[0]
	for _, d := range pool[1:] {
		if d.ActiveRequests() < best.ActiveRequests() {
			best = d
		}
	}
	return best
}

func powerOfTwo(pool []*model.Destination) *model.Destination {
	if len(pool) == 1 {
		return pool[0]
	}
	i, j := rand.Intn(len(pool)), rand.Intn(len(pool)-1)
	if j >= i {
		j++
	}
	a, b := pool[i], pool[j]
	if a.ActiveRequests() <= b.ActiveRequests() {
		return a
	}
	return b
}

// smoothWeighted implements the smooth weighted round-robin algorithm:
// each pick selects the destination with the highest current-weight, then
// subtracts the pool's total weight from it; every destination's
// current-weight is incremented by its effective weight after every pick.
// Over sum(weights) picks, each destination is picked weight_i times.
func (s *Selector) smoothWeighted(pool []*model.Destination) *model.Destination {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, d := range pool {
		total += d.EffectiveWeight()
	}

	var best *model.Destination
	bestWeight := 0
	for _, d := range pool {
		s.curWeight[d.ID] += d.EffectiveWeight()
		if best == nil || s.curWeight[d.ID] > bestWeight {
			best = d
			bestWeight = s.curWeight[d.ID]
		}
	}
	s.curWeight[best.ID] -= total
	return best
}

func weightedLeastConnections(pool []*model.Destination) *model.Destination {
	best := pool[0]
	bestRatio := float64(best.ActiveRequests()) / float64(best.EffectiveWeight())
	for _, d := range pool[1:] {
		ratio := float64(d.ActiveRequests()) / float64(d.EffectiveWeight())
		if ratio < bestRatio {
			best, bestRatio = d, ratio
		}
	}
	return best
}

func weightedRandom(pool []*model.Destination) *model.Destination {
	total := 0
	for _, d := range pool {
		total += d.EffectiveWeight()
	}
	if total == 0 {
		return pool[rand.Intn(len(pool))]
	}
	r := rand.Intn(total)
	for _, d := range pool {
		r -= d.EffectiveWeight()
		if r < 0 {
			return d
		}
	}
	return pool[len(pool)-1]
}

func (s *Selector) hashPick(pool []*model.Destination, key string) *model.Destination {
	h := hashString(key)
	return pool[h%uint64(len(pool))]
}

// hashSeed is fixed once per process so that repeated hashString calls for
// the same key are comparable, which IPHash stickiness and the
// consistent-hash ring both depend on.
var hashSeed = maphash.MakeSeed()

func hashString(s string) uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	_, _ = h.WriteString(s)
	return h.Sum64()
}

// genericHashKey evaluates the configured key sources in order and
// concatenates their values, matching the {IP} {Path} {Query.NAME}
// {Header.NAME} {Cookie.NAME} expressions named in the spec.
func genericHashKey(sources []model.HashKeySource, rc RequestContext) string {
	if len(sources) == 0 {
		return rc.ClientIP
	}
	var out string
	for _, src := range sources {
		switch src.Kind {
		case "IP":
			out += rc.ClientIP
		case "Path":
			out += rc.Path
		case "Query":
			if rc.Query != nil {
				out += rc.Query(src.Name)
			}
		case "Header":
			if rc.Header != nil {
				out += rc.Header(src.Name)
			}
		case "Cookie":
			if rc.Cookie != nil {
				out += rc.Cookie(src.Name)
			}
		}
		out += "\x00"
	}
	return out
}

// hashRing is a consistent-hash ring with 160 virtual nodes per weight unit.
type hashRing struct {
	points []ringPoint
}

type ringPoint struct {
	hash uint64
	dest *model.Destination
}

const virtualNodesPerWeight = 160

func buildRing(pool []*model.Destination) *hashRing {
	var points []ringPoint
	for _, d := range pool {
		n := d.EffectiveWeight() * virtualNodesPerWeight
		for i := 0; i < n; i++ {
			h := hashString(d.ID + "#" + strconv.Itoa(i))
			points = append(points, ringPoint{hash: h, dest: d})
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].hash < points[j].hash })
	return &hashRing{points: points}
}

func (r *hashRing) pick(key string) *model.Destination {
	h := hashString(key)
	i := sort.Search(len(r.points), func(i int) bool { return r.points[i].hash >= h })
	if i == len(r.points) {
		i = 0
	}
	return r.points[i].dest
}

func (s *Selector) consistentHashPick(pool []*model.Destination, key string) *model.Destination {
	s.mu.Lock()
	ring := s.ring
	s.mu.Unlock()
	if ring == nil {
		ring = buildRing(pool)
		s.mu.Lock()
		s.ring = ring
		s.mu.Unlock()
	}
	return ring.pick(key)
}
