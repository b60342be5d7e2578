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

// Package waf scans request query strings and bodies against a set of
// regular-expression rules. Matching uses the standard
// library's RE2 engine: the corpus carries no third-party regex engine,
// and RE2's linear-time guarantee is the right property for scanning
// attacker-controlled input anyway.
package waf

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Rule is one named regular-expression signature.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// CompileRule compiles pattern under name.
func CompileRule(name, pattern string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("waf rule %q: %w", name, err)
	}
	return Rule{Name: name, Pattern: re}, nil
}

// Config is the WAF configuration for one route.
type Config struct {
	Rules              []Rule
	MaxRequestBodySize int64 // 0 means use DefaultMaxBodySize
	cacheSize          int
}

// DefaultMaxBodySize caps how much of a request body the WAF will read
// and parse before rejecting the request with 413.
const DefaultMaxBodySize = 8 << 20 // 8 MiB

// matchCacheTTL is how long a scanned value's verdict is trusted before
// it must be re-evaluated against the (possibly updated) rule set.
const matchCacheTTL = 60 * time.Second

// Scanner evaluates Config against individual requests and caches the
// per-value match verdict for matchCacheTTL, since the same attack
// payloads tend to repeat across a flood.
type Scanner struct {
	cfg   Config
	cache *expirable.LRU[string, string] // value -> matched rule name, "" for no match
}

// NewScanner builds a Scanner, allocating its match-result cache.
func NewScanner(cfg Config) (*Scanner, error) {
	size := cfg.cacheSize
	if size <= 0 {
		size = 2048
	}
	return &Scanner{cfg: cfg, cache: expirable.NewLRU[string, string](size, nil, matchCacheTTL)}, nil
}

// Verdict is the WAF's assessment of one request.
type Verdict struct {
	Blocked    bool
	Rule       string // name of the rule that matched, if Blocked
	Field      string // e.g. "query:user_id" or "body"
	BodyTooBig bool
}

// maxBodySize returns the effective cap, defaulting when unset.
func (s *Scanner) maxBodySize() int64 {
	if s.cfg.MaxRequestBodySize > 0 {
		return s.cfg.MaxRequestBodySize
	}
	return DefaultMaxBodySize
}

// MaxBodySize exposes the effective request-body cap so callers can size
// their read before handing the buffer to ScanBody.
func (s *Scanner) MaxBodySize() int64 { return s.maxBodySize() }

// ScanQuery checks every value in rawQuery (a URL-encoded query string)
// against the configured rules, normalizing percent-escapes first so an
// encoded signature (e.g. "%27%20OR%201=1") can't slip past the scanner.
func (s *Scanner) ScanQuery(rawQuery string) Verdict {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Verdict{}
	}
	for key, vs := range values {
		for _, v := range vs {
			if rule, matched := s.matches(v); matched {
				return Verdict{Blocked: true, Rule: rule, Field: "query:" + key}
			}
		}
	}
	return Verdict{}
}

// ScanBody checks a request body against the configured rules. contentType
// drives how the body is split into discrete values to scan: form-encoded
// bodies are parsed like a query string, everything else is scanned as one
// opaque blob.
func (s *Scanner) ScanBody(contentType string, body []byte) Verdict {
	if int64(len(body)) > s.maxBodySize() {
		return Verdict{BodyTooBig: true}
	}

	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(body))
		if err == nil {
			for key, vs := range values {
				for _, v := range vs {
					if rule, matched := s.matches(v); matched {
						return Verdict{Blocked: true, Rule: rule, Field: "body:" + key}
					}
				}
			}
			return Verdict{}
		}
	}

	if rule, matched := s.matches(string(body)); matched {
		return Verdict{Blocked: true, Rule: rule, Field: "body"}
	}
	return Verdict{}
}

func (s *Scanner) matches(value string) (string, bool) {
	if rule, ok := s.cache.Get(value); ok {
		return rule, rule != ""
	}
	for _, r := range s.cfg.Rules {
		if r.Pattern.MatchString(value) {
			s.cache.Add(value, r.Name)
			return r.Name, true
		}
	}
	s.cache.Add(value, "")
	return "", false
}
