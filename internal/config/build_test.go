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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lynxgate/lynxgate/internal/confdsl"
	"github.com/lynxgate/lynxgate/internal/model"
)

func parseNodes(t *testing.T, src string) []*confdsl.Node {
	t.Helper()
	nodes, err := confdsl.Parse(src, nil)
	require.NoError(t, err)
	return nodes
}

func TestBuildGraphSingleRoute(t *testing.T) {
	src := `
example.com 8080 {
	route /api/{**catch-all} {
		cluster {
			to 10.0.0.1:9000 weight=2
			to 10.0.0.2:9000 weight=1
			lb_policy WeightedRoundRobin
		}
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)
	require.Len(t, g.Listens, 1)
	require.Equal(t, 8080, g.Listens[0].Port)
	require.Len(t, g.Routes, 1)

	cluster := g.ClusterByID(g.Routes[0].ClusterID)
	require.NotNil(t, cluster)
	require.Equal(t, model.WeightedRoundRobin, cluster.LBPolicy)
	require.Len(t, cluster.Destinations, 2)
	require.Equal(t, 2, cluster.Destinations[0].Weight)
}

func TestBuildGraphClusterHealthCheckAndHTTPClient(t *testing.T) {
	src := `
example.com 8080 {
	route / {
		cluster {
			to 10.0.0.1:9000
			http_client {
				max_conns 50
				request_timeout 5s
				idle_timeout 30s
				verify_tls false
			}
			health_check {
				method HEAD
				path /healthz
				interval 10s
				timeout 2s
				passes 2
				fails 3
				expected_status 200-299
			}
		}
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)

	cluster := g.ClusterByID(g.Routes[0].ClusterID)
	require.NotNil(t, cluster)

	require.Equal(t, 50, cluster.HTTPClient.MaxConnPerServer)
	require.Equal(t, 5*time.Second, cluster.HTTPClient.RequestTimeout.Duration())
	require.Equal(t, 30*time.Second, cluster.HTTPClient.IdleTimeout)
	require.False(t, cluster.HTTPClient.Verify)

	require.NotNil(t, cluster.HealthCheck)
	require.Equal(t, "HEAD", cluster.HealthCheck.Method)
	require.Equal(t, "/healthz", cluster.HealthCheck.Path)
	require.Equal(t, 10*time.Second, cluster.HealthCheck.Interval)
	require.Equal(t, 2*time.Second, cluster.HealthCheck.Timeout)
	require.Equal(t, 2, cluster.HealthCheck.Passes)
	require.Equal(t, 3, cluster.HealthCheck.Fails)
	require.Equal(t, []model.StatusRange{{Low: 200, High: 299}}, cluster.HealthCheck.ExpectedStatus)
}

func TestBuildGraphClusterDefaultsVerifyTLSOn(t *testing.T) {
	src := `
example.com 8080 {
	route / {
		cluster {
			to 10.0.0.1:9000
		}
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)

	cluster := g.ClusterByID(g.Routes[0].ClusterID)
	require.NotNil(t, cluster)
	require.True(t, cluster.HTTPClient.Verify)
	require.True(t, cluster.HTTPClient.RequestTimeout.UseDefault())
	require.Nil(t, cluster.HealthCheck)
}

func TestBuildGraphClusterRequestTimeoutOffDisables(t *testing.T) {
	src := `
example.com 8080 {
	route / {
		cluster {
			to 10.0.0.1:9000
			http_client {
				request_timeout off
			}
		}
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)

	cluster := g.ClusterByID(g.Routes[0].ClusterID)
	require.NotNil(t, cluster)
	require.True(t, cluster.HTTPClient.RequestTimeout.IsDisabled())
}

func TestBuildGraphDeduplicatesIdenticalClusters(t *testing.T) {
	src := `
a.example.com 8080 {
	route / {
		cluster {
			to 10.0.0.1:9000
		}
	}
}
b.example.com 8080 {
	route / {
		cluster {
			to 10.0.0.1:9000
		}
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)
	require.Len(t, g.Routes, 2)
	require.Equal(t, g.Routes[0].ClusterID, g.Routes[1].ClusterID, "identical destination sets should share one cluster")
	require.Len(t, g.Clusters, 1)
}

func TestBuildGraphFileServerUsesUnusedClusterSentinel(t *testing.T) {
	src := `
static.example.com 80 {
	file_server / {
		root /var/www
		try_files {path} {path}/index.html /index.html
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)
	require.Len(t, g.Routes, 1)
	require.Equal(t, model.UnusedClusterID, g.Routes[0].ClusterID)
	require.True(t, g.Routes[0].IsFileServer())

	item := g.FileServerItems[g.Routes[0].ID]
	require.Equal(t, "/var/www", item.Root)
	require.Len(t, item.TryFiles, 3)
}

func TestBuildGraphSimpleResponse(t *testing.T) {
	src := `
health.example.com 80 {
	respond 200 /healthz {
		body OK
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)
	require.Len(t, g.Routes, 1)
	require.True(t, g.Routes[0].IsCannedResponse())

	item := g.SimpleResItems[g.Routes[0].ID]
	require.Equal(t, 200, item.StatusCode)
	require.Equal(t, "OK", item.Body)
}

func TestBuildGraphStreamProxy(t *testing.T) {
	src := `
9000 {
	stream_proxy {
		cluster {
			to 10.0.0.1:6379
			to 10.0.0.2:6379
			lb_policy RoundRobin
		}
		connect_timeout 2s
		data_timeout 5m
		health_check {
			interval 10s
			timeout 2s
			unhealthy_threshold 3
			healthy_threshold 2
		}
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)
	require.Len(t, g.Listens, 1)
	require.True(t, g.Listens[0].StreamProxy)

	cfg, ok := g.StreamProxies[g.Listens[0].Key()]
	require.True(t, ok)
	require.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	require.Equal(t, 5*time.Minute, cfg.DataTimeout)
	require.Equal(t, 10*time.Second, cfg.HealthCheckInterval)
	require.Equal(t, 3, cfg.UnhealthyThreshold)
	require.Equal(t, 2, cfg.HealthyThreshold)

	cluster := g.ClusterByID(cfg.ClusterID)
	require.NotNil(t, cluster)
	require.Len(t, cluster.Destinations, 2)
}

func TestBuildGraphParsesWAFBlock(t *testing.T) {
	src := `
waf {
	rule sqli (?i)union\s+select
	rule xss <script
	max_body_size 65536
}
example.com 8080 {
	respond 200 / {
		body OK
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)
	require.Len(t, g.WAF.Rules, 2)
	require.Equal(t, "sqli", g.WAF.Rules[0].Name)
	require.Equal(t, int64(65536), g.WAF.MaxRequestBodySize)
}

func TestBuildGraphParsesRateLimitBlock(t *testing.T) {
	src := `
rate_limit {
	concurrency 50
	byte_rate 1000000 2000000
	policy fixed 10 1m
	reject_status 429
}
example.com 8080 {
	respond 200 / {
		body OK
	}
}
`
	g, err := BuildGraph(parseNodes(t, src))
	require.NoError(t, err)
	require.Equal(t, 50, g.RateLimit.Concurrency)
	require.Equal(t, float64(1000000), g.RateLimit.ByteRatePerSec)
	require.Equal(t, 2000000, g.RateLimit.ByteBurst)
	require.Equal(t, model.RateLimitFixedWindow, g.RateLimit.PolicyKind)
	require.Equal(t, 10, g.RateLimit.PolicyLimit)
	require.Equal(t, time.Minute, g.RateLimit.PolicyPeriod)
	require.Equal(t, 429, g.RateLimit.RejectStatus)
}

func TestBuildGraphRouteMissingClusterErrors(t *testing.T) {
	src := `
example.com 80 {
	route / {
	}
}
`
	_, err := BuildGraph(parseNodes(t, src))
	require.Error(t, err)
}
