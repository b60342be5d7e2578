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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lynxgate/lynxgate/internal/model"
)

const routingYAML = `
listen:
  - host: ""
    port: 8080
clusters:
  - id: backend
    destinations:
      - address: 10.0.0.1:80
        weight: 2
      - address: 10.0.0.2:80
    lbPolicy: LeastRequests
    healthCheck:
      path: /healthz
      interval: 5s
routes:
  - match:
      path: /api/{**catch-all}
    cluster: backend
respond:
  - match:
      path: /healthz
    statusCode: 200
    body: OK
waf:
  rules:
    - name: sqli
      pattern: "(?i)union select"
rateLimit:
  concurrency: 100
  policyKind: fixed
  policyLimit: 10
  policyPeriod: 1m
`

func writeRoutingYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAMLBuildsGraphEquivalentToDSL(t *testing.T) {
	path := writeRoutingYAML(t, routingYAML)

	graph, err := LoadYAML(path)
	require.NoError(t, err)

	require.Len(t, graph.Listens, 1)
	require.Equal(t, 8080, graph.Listens[0].Port)

	require.Contains(t, graph.Clusters, "backend")
	cluster := graph.Clusters["backend"]
	require.Equal(t, model.LeastRequests, cluster.LBPolicy)
	require.Len(t, cluster.Destinations, 2)
	require.Equal(t, 2, cluster.Destinations[0].EffectiveWeight())
	require.Equal(t, 1, cluster.Destinations[1].EffectiveWeight(), "unset weight defaults to 1")
	require.NotNil(t, cluster.HealthCheck)
	require.Equal(t, "/healthz", cluster.HealthCheck.Path)

	require.Len(t, graph.Routes, 2)

	require.Len(t, graph.WAF.Rules, 1)
	require.Equal(t, "sqli", graph.WAF.Rules[0].Name)

	require.Equal(t, 100, graph.RateLimit.Concurrency)
	require.Equal(t, model.RateLimitFixedWindow, graph.RateLimit.PolicyKind)
}

func TestLoadYAMLRejectsRouteWithUnknownCluster(t *testing.T) {
	path := writeRoutingYAML(t, `
routes:
  - match:
      path: /
    cluster: missing
`)

	_, err := LoadYAML(path)
	require.Error(t, err)
}

func TestLoadYAMLDefaultsHealthCheckMethodAndThresholds(t *testing.T) {
	path := writeRoutingYAML(t, `
clusters:
  - id: backend
    destinations:
      - address: 10.0.0.1:80
    healthCheck: {}
`)

	graph, err := LoadYAML(path)
	require.NoError(t, err)

	hc := graph.Clusters["backend"].HealthCheck
	require.Equal(t, "GET", hc.Method)
	require.Equal(t, "/", hc.Path)
	require.Equal(t, 1, hc.Passes)
	require.Equal(t, 1, hc.Fails)
}
