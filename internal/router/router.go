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

// Package router resolves (host, port, path, method) to a single Route,
// or reports that none matched. Ambiguity resolution is entirely this
// package's responsibility; downstream stages see exactly one route.
package router

import (
	"sort"
	"strconv"
	"strings"

	"github.com/lynxgate/lynxgate/internal/model"
)

// Matcher holds an immutable, pre-sorted copy of a Graph's routes.
type Matcher struct {
	routes []model.Route
}

// New builds a Matcher from routes, computing and applying the specificity order
// formula: host-constrained routes before host-less, specific paths
// before wildcard paths, longer path prefixes before shorter, ties broken
// on id.
func New(routes []model.Route) *Matcher {
	cp := make([]model.Route, len(routes))
	copy(cp, routes)
	sort.SliceStable(cp, func(i, j int) bool {
		return less(cp[i], cp[j])
	})
	return &Matcher{routes: cp}
}

func less(a, b model.Route) bool {
	ah, bh := len(a.Match.Hosts) > 0, len(b.Match.Hosts) > 0
	if ah != bh {
		return ah // host-constrained first
	}
	aw, bw := isWildcardPath(a.Match.Path), isWildcardPath(b.Match.Path)
	if aw != bw {
		return !aw // specific paths first
	}
	al, bl := literalPrefixLen(a.Match.Path), literalPrefixLen(b.Match.Path)
	if al != bl {
		return al > bl // longer literal prefix first
	}
	return a.ID < b.ID
}

func isWildcardPath(p string) bool {
	return strings.Contains(p, "{**")
}

func literalPrefixLen(p string) int {
	if i := strings.Index(p, "{**"); i >= 0 {
		return i
	}
	return len(p)
}

// Match finds the single best route for the given request attributes, or
// ok=false if none match.
func (m *Matcher) Match(host string, port int, path string, method string) (model.Route, bool) {
	var candidates []model.Route
	for _, r := range m.routes {
		if !hostMatches(r.Match.Hosts, host, port) {
			continue
		}
		if !pathMatches(r.Match.Path, path) {
			continue
		}
		if r.Match.Method != "" && !strings.EqualFold(r.Match.Method, method) {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return model.Route{}, false
	}

	// specificity filter: explicit host constraints beat host-less ones.
	if specific := filterHostConstrained(candidates); len(specific) > 0 {
		candidates = specific
	}
	// prefer routes whose host pattern carries an explicit matching port.
	if withPort := filterPortSpecific(candidates, port); len(withPort) > 0 {
		candidates = withPort
	}
	// discard wildcard-path candidates if any specific-path candidate exists.
	if specific := filterSpecificPath(candidates); len(specific) > 0 {
		candidates = specific
	}

	// candidates retain relative order from the pre-sorted route list.
	return candidates[0], true
}

func filterHostConstrained(rs []model.Route) []model.Route {
	var out []model.Route
	for _, r := range rs {
		if len(r.Match.Hosts) > 0 {
			out = append(out, r)
		}
	}
	return out
}

func filterPortSpecific(rs []model.Route, port int) []model.Route {
	var out []model.Route
	for _, r := range rs {
		for _, h := range r.Match.Hosts {
			if _, p, ok := splitHostPort(h); ok && p == port {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func filterSpecificPath(rs []model.Route) []model.Route {
	var out []model.Route
	for _, r := range rs {
		if !isWildcardPath(r.Match.Path) {
			out = append(out, r)
		}
	}
	return out
}

// hostMatches reports whether any of patterns admits host:port.
func hostMatches(patterns []string, host string, port int) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if hostPatternMatches(p, host, port) {
			return true
		}
	}
	return false
}

func hostPatternMatches(pattern, host string, port int) bool {
	pHost, pPort, hasPort := splitHostPort(pattern)

	if hasPort && pPort != port {
		return false
	}
	if pHost == "*" || pHost == "" {
		return true
	}
	if strings.HasPrefix(pHost, "*.") {
		suffix := pHost[1:] // ".example.com"
		bare := pHost[2:]   // "example.com"
		return canonicalHost(host) == bare || strings.HasSuffix(canonicalHost(host), suffix)
	}
	return canonicalHost(pHost) == canonicalHost(host)
}

func splitHostPort(s string) (host string, port int, ok bool) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s, 0, false
	}
	p, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return s, 0, false
	}
	return s[:idx], p, true
}

// canonicalHost normalises the loopback aliases the spec requires be
// treated as equal: localhost, 127.0.0.1, ::1 and [::1].
func canonicalHost(h string) string {
	switch strings.ToLower(h) {
	case "localhost", "127.0.0.1", "::1", "[::1]":
		return "localhost"
	default:
		return strings.ToLower(h)
	}
}

// pathMatches supports literal prefix paths and the two wildcard sink
// tokens. A wildcard pattern matches any request path starting with the
// text before its "{**" token; a literal path must equal the request path.
func pathMatches(pattern, path string) bool {
	if idx := strings.Index(pattern, "{**"); idx >= 0 {
		prefix := pattern[:idx]
		return strings.HasPrefix(path, prefix)
	}
	return pattern == path
}
