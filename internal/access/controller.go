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

// GeoMode selects whether GeoControl.Countries is an allow-list or a
// block-list.
type GeoMode int

const (
	// GeoAllow permits only the listed countries.
	GeoAllow GeoMode = iota
	// GeoDeny blocks the listed countries and permits everything else.
	GeoDeny
)

// GeoLookup resolves a client IP to a country string. internal/geoip
// satisfies this with an IP2Region-backed implementation; Config accepts
// any implementation so tests can stub it.
type GeoLookup interface {
	Country(ip string) (string, bool)
}

// IPControl gates requests by CIDR membership with per-path overrides.
type IPControl struct {
	Enabled   bool
	Blacklist CIDRSet
	PathRules PathRuleSet
}

// GeoControl gates requests by the resolved country of the client IP.
type GeoControl struct {
	Enabled   bool
	Mode      GeoMode
	Countries map[string]bool
	PathRules PathRuleSet
	Lookup    GeoLookup
}

// Config is the full access-control state for one listener or route: an
// IP whitelist that always wins, IP blacklist control, geo control, and
// connection limits.
type Config struct {
	Whitelist       CIDRSet
	IPControl       IPControl
	GeoControl      GeoControl
	ConnectionLimit ConnLimitConfig
}

// Controller evaluates a Config's rules against individual requests and
// tracks the connection-limit counters it owns.
type Controller struct {
	cfg     Config
	limiter *ConnLimiter
}

// NewController builds a Controller, allocating its connection limiter.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg, limiter: NewConnLimiter(cfg.ConnectionLimit)}
}

// Decision is the outcome of evaluating a request against the access
// rules, cheap enough to return by value from Evaluate.
type Decision struct {
	Allowed bool
	Reason  string
	token   Token
}

// Evaluate runs the whitelist, IP control, and geo control checks for one
// request, then attempts to acquire its connection-limit slots. Release
// must be called on every returned Decision with Allowed true and a
// non-nil token, including when the caller aborts the request early.
func (c *Controller) Evaluate(ip, cluster, path string) Decision {
	if c.cfg.Whitelist.Contains(ip) {
		return c.acquire(ip, cluster, path)
	}

	if d, blocked := c.evalIPControl(ip, path); blocked {
		return d
	}
	if d, blocked := c.evalGeoControl(ip, path); blocked {
		return d
	}

	return c.acquire(ip, cluster, path)
}

func (c *Controller) evalIPControl(ip, path string) (Decision, bool) {
	ic := c.cfg.IPControl
	if !ic.Enabled {
		return Decision{}, false
	}
	if rule, ok := ic.PathRules.Match(path); ok {
		if rule.Allow {
			return Decision{}, false
		}
		if rule.Deny {
			return Decision{Allowed: false, Reason: "path rule deny"}, true
		}
	}
	if ic.Blacklist.Contains(ip) {
		return Decision{Allowed: false, Reason: "ip blacklisted"}, true
	}
	return Decision{}, false
}

func (c *Controller) evalGeoControl(ip, path string) (Decision, bool) {
	gc := c.cfg.GeoControl
	if !gc.Enabled || gc.Lookup == nil {
		return Decision{}, false
	}
	if rule, ok := gc.PathRules.Match(path); ok {
		if rule.Allow {
			return Decision{}, false
		}
		if rule.Deny {
			return Decision{Allowed: false, Reason: "path rule deny"}, true
		}
	}
	country, ok := gc.Lookup.Country(ip)
	if !ok {
		return Decision{}, false
	}
	listed := gc.Countries[country]
	blocked := (gc.Mode == GeoDeny && listed) || (gc.Mode == GeoAllow && !listed)
	if blocked {
		return Decision{Allowed: false, Reason: "geo control: " + country}, true
	}
	return Decision{}, false
}

func (c *Controller) acquire(ip, cluster, path string) Decision {
	tok, ok := c.limiter.Acquire(ip, cluster, path)
	if !ok {
		return Decision{Allowed: false, Reason: "connection limit exceeded"}
	}
	return Decision{Allowed: true, token: tok}
}

// Release returns d's connection-limit slots, if any were acquired.
func (c *Controller) Release(d Decision) {
	c.limiter.Release(d.token)
}
