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

package main

import (
	"errors"

	"github.com/lynxgate/lynxgate/internal/access"
	"github.com/lynxgate/lynxgate/internal/compress"
	"github.com/lynxgate/lynxgate/internal/model"
	"github.com/lynxgate/lynxgate/internal/pipeline"
	"github.com/lynxgate/lynxgate/internal/ratelimit"
	"github.com/lynxgate/lynxgate/internal/waf"
)

// errNoWAFConfigured signals that graph carried no "waf { }" block, so
// buildGlobalExtras should leave RouteExtras.WAF nil rather than build an
// always-pass Scanner.
var errNoWAFConfigured = errors.New("no waf block configured")

// buildGlobalExtras builds the one RouteExtras applied to every route.
// internal/confdsl has no per-route access_control/waf/rate_limit block
// syntax yet, so a single process-wide policy compiled from the
// top-level "waf { }" and "rate_limit { }" blocks is the pragmatic
// wiring-layer substitute. When a geo database is configured its lookup
// is attached to the access config, but GeoControl stays disabled with no
// country list, so no request is rejected on geography.
// WAF/concurrency/byte-rate/policy rate-limit only turn on when graph
// actually carries a matching block.
func buildGlobalExtras(geo geoipLookup, graph *model.Graph) pipeline.RouteExtras {
	accessCfg := access.Config{}
	if geo != nil {
		accessCfg.GeoControl.Lookup = geo
	}

	extras := pipeline.RouteExtras{
		Access:   access.NewController(accessCfg),
		Compress: compress.Config{},
	}

	if scanner, err := buildWAFScanner(graph.WAF); err == nil {
		extras.WAF = scanner
	}

	rl := graph.RateLimit
	if rl.Concurrency > 0 {
		extras.Concurrency = ratelimit.NewConcurrencyLimiter(rl.Concurrency)
	}
	if rl.ByteRatePerSec > 0 {
		extras.ByteBucket = ratelimit.NewTokenBucket(rl.ByteRatePerSec, rl.ByteBurst)
	}
	if rl.PolicyKind != "" && rl.PolicyLimit > 0 && rl.PolicyPeriod > 0 {
		kind := ratelimit.PolicyFixedWindow
		if rl.PolicyKind == model.RateLimitSlidingWindow {
			kind = ratelimit.PolicySlidingWindow
		}
		extras.Policy = ratelimit.NewPolicyLimiter(kind, rl.PolicyLimit, rl.PolicyPeriod, 0)
		extras.PolicyRejectStatus = rl.RejectStatus
	}

	return extras
}

// buildWAFScanner compiles cfg's named regex rules into a *waf.Scanner,
// or returns errNoWAFConfigured when graph carried no "waf { }" block at
// all, so the pipeline's WAF stage stays nil (skipped) instead of running
// an always-pass scanner against every request.
func buildWAFScanner(cfg model.WAFConfig) (*waf.Scanner, error) {
	if len(cfg.Rules) == 0 && cfg.MaxRequestBodySize == 0 {
		return nil, errNoWAFConfigured
	}
	rules := make([]waf.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rule, err := waf.CompileRule(r.Name, r.Pattern)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return waf.NewScanner(waf.Config{Rules: rules, MaxRequestBodySize: cfg.MaxRequestBodySize})
}
