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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lynxgate/lynxgate/internal/model"
)

func TestBuildGlobalExtrasLeavesWAFAndRateLimitNilWithoutConfig(t *testing.T) {
	extras := buildGlobalExtras(nil, &model.Graph{})

	require.NotNil(t, extras.Access)
	require.Nil(t, extras.WAF)
	require.Nil(t, extras.Concurrency)
	require.Nil(t, extras.ByteBucket)
	require.Nil(t, extras.Policy)
}

func TestBuildGlobalExtrasWiresConfiguredRateLimit(t *testing.T) {
	graph := &model.Graph{
		RateLimit: model.RateLimitConfig{
			Concurrency:    10,
			ByteRatePerSec: 1 << 20,
			ByteBurst:      1 << 21,
			PolicyKind:     model.RateLimitFixedWindow,
			PolicyLimit:    5,
			PolicyPeriod:   time.Minute,
			RejectStatus:   429,
		},
	}

	extras := buildGlobalExtras(nil, graph)

	require.NotNil(t, extras.Concurrency)
	require.NotNil(t, extras.ByteBucket)
	require.NotNil(t, extras.Policy)
	require.Equal(t, 429, extras.PolicyRejectStatus)
}

func TestBuildWAFScannerReturnsSentinelWhenUnconfigured(t *testing.T) {
	scanner, err := buildWAFScanner(model.WAFConfig{})
	require.ErrorIs(t, err, errNoWAFConfigured)
	require.Nil(t, scanner)
}

func TestBuildWAFScannerCompilesConfiguredRules(t *testing.T) {
	scanner, err := buildWAFScanner(model.WAFConfig{
		Rules: []model.WAFRule{{Name: "sqli", Pattern: `(?i)union\s+select`}},
	})
	require.NoError(t, err)
	require.NotNil(t, scanner)
}

func TestBuildWAFScannerRejectsBadPattern(t *testing.T) {
	_, err := buildWAFScanner(model.WAFConfig{
		Rules: []model.WAFRule{{Name: "bad", Pattern: "("}},
	})
	require.Error(t, err)
}
