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
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lynxgate/lynxgate/internal/model"
	"github.com/lynxgate/lynxgate/internal/timeout"
)

// RoutingDocument is the YAML-native counterpart to the block-structured
// routing graph internal/confdsl parses: the same model.Graph, expressed
// as a flat document of lists rather than nested "host port { ... }"
// blocks, so a YAML-only deployment never has to learn the DSL's own
// grammar to express the same routes, clusters and policy.
type RoutingDocument struct {
	Listen       []YAMLListener    `yaml:"listen"`
	Clusters     []YAMLCluster     `yaml:"clusters"`
	Routes       []YAMLRoute       `yaml:"routes"`
	FileServers  []YAMLFileServer  `yaml:"fileServers"`
	Respond      []YAMLRespond     `yaml:"respond"`
	Certificates []YAMLCertificate `yaml:"certificates"`
	WAF          YAMLWAF           `yaml:"waf"`
	RateLimit    YAMLRateLimit     `yaml:"rateLimit"`
}

// YAMLListener mirrors model.Listener.
type YAMLListener struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	TLS           bool   `yaml:"tls"`
	AutoHTTPSPort int    `yaml:"autoHttpsPort"`
	ForwardProxy  bool   `yaml:"forwardProxy"`
	StreamProxy   bool   `yaml:"streamProxy"`
}

// YAMLDestination mirrors model.Destination.
type YAMLDestination struct {
	Address string `yaml:"address"`
	Weight  int    `yaml:"weight"`
}

// YAMLHTTPClient mirrors model.HTTPClientConfig. RequestTimeout takes the
// same "off"/"infinity"/Go-duration grammar as the DSL's request_timeout
// directive (internal/config's parseTimeoutArg), via internal/timeout.Parse.
type YAMLHTTPClient struct {
	MaxConnPerServer   int           `yaml:"maxConnPerServer"`
	RequestTimeout     string        `yaml:"requestTimeout"`
	IdleTimeout        time.Duration `yaml:"idleTimeout"`
	ConnectionLifetime time.Duration `yaml:"connectionLifetime"`
	SSLProtocols       []string      `yaml:"sslProtocols"`
	Verify             *bool         `yaml:"verify"`
}

// YAMLHealthCheck mirrors model.HealthCheck.
type YAMLHealthCheck struct {
	Method         string   `yaml:"method"`
	Path           string   `yaml:"path"`
	Query          string   `yaml:"query"`
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	ExpectedStatus []string `yaml:"expectedStatus"`
	Predicate      string   `yaml:"predicate"`
	PredicateValue string   `yaml:"predicateValue"`
	Passes         int      `yaml:"passes"`
	Fails          int      `yaml:"fails"`
}

// YAMLCluster mirrors model.Cluster. Unlike the DSL (which dedupes
// clusters by content hash since "cluster { }" blocks are anonymous),
// a YAML cluster is named directly and referenced by that name from
// routes/file servers, so no dedup pass is needed here.
type YAMLCluster struct {
	ID           string            `yaml:"id"`
	Destinations []YAMLDestination `yaml:"destinations"`
	LBPolicy     string            `yaml:"lbPolicy"`
	HTTPClient   *YAMLHTTPClient   `yaml:"httpClient"`
	HealthCheck  *YAMLHealthCheck  `yaml:"healthCheck"`
}

// YAMLRouteMatch mirrors model.RouteMatch.
type YAMLRouteMatch struct {
	Hosts  []string `yaml:"hosts"`
	Path   string   `yaml:"path"`
	Method string   `yaml:"method"`
}

// YAMLRoute mirrors model.Route for an upstream-proxied route.
type YAMLRoute struct {
	Match   YAMLRouteMatch `yaml:"match"`
	Cluster string         `yaml:"cluster"`
}

// YAMLFileServer mirrors model.FileServerItem plus the route it attaches to.
type YAMLFileServer struct {
	Match         YAMLRouteMatch `yaml:"match"`
	Root          string         `yaml:"root"`
	TryFiles      []string       `yaml:"tryFiles"`
	Browse        bool           `yaml:"browse"`
	PreCompressed bool           `yaml:"preCompressed"`
}

// YAMLRespond mirrors model.SimpleResItem plus the route it attaches to.
type YAMLRespond struct {
	Match       YAMLRouteMatch `yaml:"match"`
	StatusCode  int            `yaml:"statusCode"`
	Body        string         `yaml:"body"`
	ContentType string         `yaml:"contentType"`
	ShowRequest bool           `yaml:"showRequest"`
}

// YAMLCertificate names the PEM leaf/key files for one SNI pattern; like
// the DSL's "tls <path> <path>" directive, the files are read at load time
// (model.CertEntry wants PEM bytes, tls.X509KeyPair's input, not a path).
type YAMLCertificate struct {
	HostPattern string `yaml:"hostPattern"`
	LeafFile    string `yaml:"leafFile"`
	KeyFile     string `yaml:"keyFile"`
}

// YAMLWAFRule mirrors model.WAFRule.
type YAMLWAFRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// YAMLWAF mirrors model.WAFConfig.
type YAMLWAF struct {
	Rules              []YAMLWAFRule `yaml:"rules"`
	MaxRequestBodySize int64         `yaml:"maxRequestBodySize"`
}

// YAMLRateLimit mirrors model.RateLimitConfig.
type YAMLRateLimit struct {
	Concurrency    int           `yaml:"concurrency"`
	ByteRatePerSec float64       `yaml:"byteRatePerSec"`
	ByteBurst      int           `yaml:"byteBurst"`
	PolicyKind     string        `yaml:"policyKind"`
	PolicyLimit    int           `yaml:"policyLimit"`
	PolicyPeriod   time.Duration `yaml:"policyPeriod"`
	RejectStatus   int           `yaml:"rejectStatus"`
}

// LoadYAML reads a RoutingDocument from path and normalizes it into a
// model.Graph, the YAML-native counterpart to internal/config.BuildGraph's
// DSL path. Both paths produce the same model.Graph shape so every
// downstream component (router, cluster selectors, pipeline) is
// indifferent to which serialization produced the graph it was handed.
func LoadYAML(path string) (*model.Graph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing yaml %q: %w", path, err)
	}
	var doc RoutingDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse routing yaml %q: %w", path, err)
	}
	return doc.graph()
}

func (doc RoutingDocument) graph() (*model.Graph, error) {
	listens := make([]model.Listener, 0, len(doc.Listen))
	for _, l := range doc.Listen {
		listens = append(listens, model.Listener{
			Host:          l.Host,
			Port:          l.Port,
			TLS:           l.TLS,
			AutoHTTPSPort: l.AutoHTTPSPort,
			ForwardProxy:  l.ForwardProxy,
			StreamProxy:   l.StreamProxy,
		})
	}
	sort.Slice(listens, func(i, j int) bool { return listens[i].Key() < listens[j].Key() })

	clusters := make(map[string]*model.Cluster, len(doc.Clusters))
	for _, c := range doc.Clusters {
		cl, err := c.cluster()
		if err != nil {
			return nil, err
		}
		clusters[cl.ID] = cl
	}

	var routes []model.Route
	fileItems := make(map[string]model.FileServerItem, len(doc.FileServers))
	simpleItems := make(map[string]model.SimpleResItem, len(doc.Respond))
	order := 0

	for _, r := range doc.Routes {
		if _, ok := clusters[r.Cluster]; !ok {
			return nil, fmt.Errorf("route %q: unknown cluster %q", r.Match.Path, r.Cluster)
		}
		id := fmt.Sprintf("route_%d", order)
		routes = append(routes, model.Route{
			ID:        id,
			Match:     model.RouteMatch{Hosts: r.Match.Hosts, Path: r.Match.Path, Method: r.Match.Method},
			ClusterID: r.Cluster,
			Order:     order,
		})
		order++
	}

	for _, fs := range doc.FileServers {
		id := fmt.Sprintf("route_%d", order)
		fileItems[id] = model.FileServerItem{
			RouteID:       id,
			Root:          fs.Root,
			TryFiles:      fs.TryFiles,
			Browse:        fs.Browse,
			PreCompressed: fs.PreCompressed,
			PathPrefix:    fs.Match.Path,
		}
		path := fs.Match.Path
		if path == "" {
			path = "/{**file-all}"
		}
		routes = append(routes, model.Route{
			ID:        id,
			Match:     model.RouteMatch{Hosts: fs.Match.Hosts, Path: path},
			ClusterID: model.UnusedClusterID,
			Order:     order,
		})
		order++
	}

	for _, sr := range doc.Respond {
		id := fmt.Sprintf("simpleres_%d", order)
		status := sr.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		contentType := sr.ContentType
		if contentType == "" {
			contentType = "text/plain"
		}
		simpleItems[id] = model.SimpleResItem{
			RouteID:     id,
			Body:        sr.Body,
			StatusCode:  status,
			ContentType: contentType,
			ShowReq:     sr.ShowRequest,
		}
		path := sr.Match.Path
		if path == "" {
			path = "/{**catch-all}"
		}
		routes = append(routes, model.Route{
			ID:        id,
			Match:     model.RouteMatch{Hosts: sr.Match.Hosts, Path: path, Method: sr.Match.Method},
			ClusterID: model.UnusedClusterID,
			Order:     order,
		})
		order++
	}

	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Order < routes[j].Order })

	certs := make([]model.CertEntry, 0, len(doc.Certificates))
	for _, c := range doc.Certificates {
		leaf, err := os.ReadFile(c.LeafFile)
		if err != nil {
			return nil, fmt.Errorf("read certificate %q: %w", c.LeafFile, err)
		}
		key, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read certificate key %q: %w", c.KeyFile, err)
		}
		pattern := c.HostPattern
		if pattern == "" {
			pattern = "*"
		}
		certs = append(certs, model.CertEntry{HostPattern: pattern, Leaf: leaf, Key: key})
	}

	return &model.Graph{
		Listens:         listens,
		Routes:          routes,
		Clusters:        clusters,
		FileServerItems: fileItems,
		SimpleResItems:  simpleItems,
		Certificates:    certs,
		StreamProxies:   map[string]model.StreamProxyConfig{},
		WAF:             doc.WAF.wafConfig(),
		RateLimit:       doc.RateLimit.rateLimitConfig(),
	}, nil
}

func (c YAMLCluster) cluster() (*model.Cluster, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("cluster missing id")
	}
	lbPolicy := model.RoundRobin
	if c.LBPolicy != "" {
		lbPolicy = model.LBPolicy(c.LBPolicy)
	}
	cl := &model.Cluster{ID: c.ID, LBPolicy: lbPolicy}
	for i, d := range c.Destinations {
		cl.Destinations = append(cl.Destinations, &model.Destination{
			ID:      fmt.Sprintf("%s_%d", c.ID, i),
			Address: d.Address,
			Weight:  d.Weight,
		})
	}
	cl.HTTPClient = c.HTTPClient.httpClientConfig()
	if c.HealthCheck != nil {
		cl.HealthCheck = c.HealthCheck.healthCheck()
	}
	return cl, nil
}

func (c *YAMLHTTPClient) httpClientConfig() model.HTTPClientConfig {
	cfg := model.HTTPClientConfig{Verify: true}
	if c == nil {
		return cfg
	}
	cfg.MaxConnPerServer = c.MaxConnPerServer
	if c.RequestTimeout != "" {
		s := c.RequestTimeout
		if s == "off" {
			s = "infinity"
		}
		cfg.RequestTimeout = timeout.Parse(s)
	}
	cfg.IdleTimeout = c.IdleTimeout
	cfg.ConnectionLifetime = c.ConnectionLifetime
	cfg.SSLProtocols = c.SSLProtocols
	if c.Verify != nil {
		cfg.Verify = *c.Verify
	}
	return cfg
}

func (h *YAMLHealthCheck) healthCheck() *model.HealthCheck {
	hc := &model.HealthCheck{
		Method:         h.Method,
		Path:           h.Path,
		Query:          h.Query,
		Interval:       h.Interval,
		Timeout:        h.Timeout,
		Predicate:      model.HealthCheckPredicateKind(h.Predicate),
		PredicateValue: h.PredicateValue,
		Passes:         h.Passes,
		Fails:          h.Fails,
	}
	if hc.Method == "" {
		hc.Method = http.MethodGet
	}
	if hc.Path == "" {
		hc.Path = "/"
	}
	if hc.Passes == 0 {
		hc.Passes = 1
	}
	if hc.Fails == 0 {
		hc.Fails = 1
	}
	for _, s := range h.ExpectedStatus {
		if r, ok := parseStatusRange(s); ok {
			hc.ExpectedStatus = append(hc.ExpectedStatus, r)
		}
	}
	return hc
}

// parseStatusRange parses "200" or "200-399" into a model.StatusRange,
// the same grammar internal/config/build.go's identically named helper
// accepts for the DSL's expected_status directive.
func parseStatusRange(s string) (model.StatusRange, bool) {
	var low, high int
	if n, _ := fmt.Sscanf(s, "%d-%d", &low, &high); n == 2 {
		return model.StatusRange{Low: low, High: high}, true
	}
	if _, err := fmt.Sscanf(s, "%d", &low); err == nil {
		return model.StatusRange{Low: low, High: low}, true
	}
	return model.StatusRange{}, false
}

func (w YAMLWAF) wafConfig() model.WAFConfig {
	cfg := model.WAFConfig{MaxRequestBodySize: w.MaxRequestBodySize}
	for _, r := range w.Rules {
		cfg.Rules = append(cfg.Rules, model.WAFRule{Name: r.Name, Pattern: r.Pattern})
	}
	return cfg
}

func (r YAMLRateLimit) rateLimitConfig() model.RateLimitConfig {
	return model.RateLimitConfig{
		Concurrency:    r.Concurrency,
		ByteRatePerSec: r.ByteRatePerSec,
		ByteBurst:      r.ByteBurst,
		PolicyKind:     model.RateLimitPolicyKind(r.PolicyKind),
		PolicyLimit:    r.PolicyLimit,
		PolicyPeriod:   r.PolicyPeriod,
		RejectStatus:   r.RejectStatus,
	}
}
