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

// Package config normalizes a parsed confdsl tree into an immutable
// model.Graph, and hosts the hot-reload Store every other component
// reads the current Graph through.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lynxgate/lynxgate/internal/confdsl"
	"github.com/lynxgate/lynxgate/internal/model"
	"github.com/lynxgate/lynxgate/internal/timeout"
)

// Builder accumulates a Graph across one or more top-level address blocks.
type Builder struct {
	listens  map[string]model.Listener
	routes   []model.Route
	clusters map[string]*model.Cluster
	// clusterHash deduplicates content-identical clusters so the same
	// destination set declared under two sites shares one *model.Cluster.
	clusterHash   map[string]string
	fileItems     map[string]model.FileServerItem
	simpleItems   map[string]model.SimpleResItem
	certs         []model.CertEntry
	streamProxies map[string]model.StreamProxyConfig
	waf           model.WAFConfig
	rateLimit     model.RateLimitConfig
	order         int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		listens:       map[string]model.Listener{},
		clusters:      map[string]*model.Cluster{},
		clusterHash:   map[string]string{},
		fileItems:     map[string]model.FileServerItem{},
		simpleItems:   map[string]model.SimpleResItem{},
		streamProxies: map[string]model.StreamProxyConfig{},
	}
}

// BuildGraph normalizes every top-level address block in nodes into a
// single Graph. Two top-level keys aren't address blocks: "waf" and
// "rate_limit" configure the gateway-wide WAF and rate/throttle policy
// (spec §4.6, §4.7) rather than a listener.
func BuildGraph(nodes []*confdsl.Node) (*model.Graph, error) {
	b := NewBuilder()
	for _, n := range nodes {
		switch n.Key {
		case "waf":
			b.waf = parseWAFConfig(n)
		case "rate_limit":
			b.rateLimit = parseRateLimitConfig(n)
		default:
			if err := b.addSite(n); err != nil {
				return nil, errors.Wrapf(err, "site %q (line %d)", n.Key, n.Line)
			}
		}
	}
	return b.graph(), nil
}

// parseWAFConfig reads a top-level "waf { rule <name> <pattern>; ... ;
// max_body_size <bytes> }" block.
func parseWAFConfig(n *confdsl.Node) model.WAFConfig {
	var cfg model.WAFConfig
	for _, r := range n.Find("rule") {
		if len(r.Args) < 2 {
			continue
		}
		cfg.Rules = append(cfg.Rules, model.WAFRule{Name: r.Args[0], Pattern: strings.Join(r.Args[1:], " ")})
	}
	if m := n.FindOne("max_body_size"); m != nil {
		if v, err := strconv.ParseInt(m.Arg(0), 10, 64); err == nil {
			cfg.MaxRequestBodySize = v
		}
	}
	return cfg
}

// parseRateLimitConfig reads a top-level "rate_limit { concurrency <n>;
// byte_rate <ratePerSec> <burst>; policy <fixed|sliding> <limit>
// <period>; reject_status <code> }" block.
func parseRateLimitConfig(n *confdsl.Node) model.RateLimitConfig {
	var cfg model.RateLimitConfig
	if c := n.FindOne("concurrency"); c != nil {
		cfg.Concurrency, _ = strconv.Atoi(c.Arg(0))
	}
	if br := n.FindOne("byte_rate"); br != nil {
		cfg.ByteRatePerSec, _ = strconv.ParseFloat(br.Arg(0), 64)
		if len(br.Args) > 1 {
			cfg.ByteBurst, _ = strconv.Atoi(br.Args[1])
		}
	}
	if p := n.FindOne("policy"); p != nil && len(p.Args) >= 3 {
		cfg.PolicyKind = model.RateLimitPolicyKind(p.Args[0])
		cfg.PolicyLimit, _ = strconv.Atoi(p.Args[1])
		cfg.PolicyPeriod = parseDurationArg(p.Args[2])
	}
	if rs := n.FindOne("reject_status"); rs != nil {
		cfg.RejectStatus, _ = strconv.Atoi(rs.Arg(0))
	}
	return cfg
}

func (b *Builder) graph() *model.Graph {
	sort.SliceStable(b.routes, func(i, j int) bool { return b.routes[i].Order < b.routes[j].Order })

	listens := make([]model.Listener, 0, len(b.listens))
	for _, l := range b.listens {
		listens = append(listens, l)
	}
	sort.Slice(listens, func(i, j int) bool { return listens[i].Key() < listens[j].Key() })

	return &model.Graph{
		Listens:         listens,
		Routes:          b.routes,
		Clusters:        b.clusters,
		FileServerItems: b.fileItems,
		SimpleResItems:  b.simpleItems,
		Certificates:    b.certs,
		StreamProxies:   b.streamProxies,
		WAF:             b.waf,
		RateLimit:       b.rateLimit,
	}
}

// addSite parses one top-level address block: "host port { ... }", e.g.
// "example.com 8080 { ... }". The DSL lexer tokenizes ':' on its own, so
// site addresses use a space between host and port rather than a colon.
func (b *Builder) addSite(n *confdsl.Node) error {
	host, port, err := parseAddress(n.Key, n.Args)
	if err != nil {
		return err
	}
	var hosts []string
	if host != "" {
		hosts = []string{host}
	}

	tlsNode := n.FindOne("tls")
	listener := model.Listener{
		Host:         "",
		Port:         port,
		TLS:          tlsNode != nil,
		ForwardProxy: n.FindOne("forward_proxy") != nil,
		StreamProxy:  n.FindOne("stream_proxy") != nil,
	}
	if auto := n.FindOne("auto_https"); auto != nil {
		if p, err := strconv.Atoi(auto.Arg(0)); err == nil {
			listener.AutoHTTPSPort = p
		}
	}
	b.listens[listener.Key()] = listener

	if tlsNode != nil {
		if err := b.addCert(tlsNode, hosts); err != nil {
			return err
		}
	}

	for _, child := range n.Children {
		switch child.Key {
		case "route":
			if err := b.addRoute(child, hosts, port); err != nil {
				return err
			}
		case "file_server":
			if err := b.addFileServer(child, hosts, port); err != nil {
				return err
			}
		case "respond":
			if err := b.addSimpleResponse(child, hosts, port); err != nil {
				return err
			}
		case "stream_proxy":
			if err := b.addStreamProxy(child, listener); err != nil {
				return err
			}
		}
	}
	return nil
}

// addStreamProxy normalizes a "stream_proxy { ... }" block attached to a
// listener into a Cluster (so destination selection and health-state
// bookkeeping are shared with the L7 proxy) plus the connect/data
// timeouts and health-check thresholds the stream proxy applies on top.
func (b *Builder) addStreamProxy(n *confdsl.Node, listener model.Listener) error {
	clusterNode := n.FindOne("cluster")
	if clusterNode == nil {
		return errors.New("stream_proxy: missing cluster block")
	}
	cluster, err := b.buildCluster(clusterNode)
	if err != nil {
		return err
	}

	cfg := model.StreamProxyConfig{
		ListenerKey: listener.Key(),
		ClusterID:   cluster.ID,
	}
	if t := n.FindOne("connect_timeout"); t != nil {
		cfg.ConnectTimeout = parseDurationArg(t.Arg(0))
	}
	if t := n.FindOne("data_timeout"); t != nil {
		cfg.DataTimeout = parseDurationArg(t.Arg(0))
	}
	if hc := n.FindOne("health_check"); hc != nil {
		if i := hc.FindOne("interval"); i != nil {
			cfg.HealthCheckInterval = parseDurationArg(i.Arg(0))
		}
		if t := hc.FindOne("timeout"); t != nil {
			cfg.HealthCheckTimeout = parseDurationArg(t.Arg(0))
		}
		if u := hc.FindOne("unhealthy_threshold"); u != nil {
			cfg.UnhealthyThreshold, _ = strconv.Atoi(u.Arg(0))
		}
		if h := hc.FindOne("healthy_threshold"); h != nil {
			cfg.HealthyThreshold, _ = strconv.Atoi(h.Arg(0))
		}
	}

	b.streamProxies[listener.Key()] = cfg
	return nil
}

func parseDurationArg(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func (b *Builder) addCert(n *confdsl.Node, hosts []string) error {
	leaf := n.Arg(0)
	key := n.Arg(1)
	if leaf == "" || key == "" {
		return errors.New("tls directive requires <cert-path> <key-path>")
	}
	pattern := "*"
	if len(hosts) > 0 {
		pattern = hosts[0]
	}
	leafPEM, err := os.ReadFile(leaf)
	if err != nil {
		return errors.Wrapf(err, "read certificate %q", leaf)
	}
	keyPEM, err := os.ReadFile(key)
	if err != nil {
		return errors.Wrapf(err, "read private key %q", key)
	}
	b.certs = append(b.certs, model.CertEntry{HostPattern: pattern, Leaf: leafPEM, Key: keyPEM})
	return nil
}

func (b *Builder) addRoute(n *confdsl.Node, hosts []string, port int) error {
	path := n.Arg(0)
	if path == "" {
		path = "/{**catch-all}"
	}
	method := ""
	if m := n.FindOne("method"); m != nil {
		method = m.Arg(0)
	}

	clusterNode := n.FindOne("cluster")
	if clusterNode == nil {
		return errors.Errorf("route %q: missing cluster block", path)
	}
	cluster, err := b.buildCluster(clusterNode)
	if err != nil {
		return err
	}

	id := fmt.Sprintf("route_%d", b.order)
	b.routes = append(b.routes, model.Route{
		ID:        id,
		Match:     model.RouteMatch{Hosts: hostsOrWildcard(hosts, port), Path: path, Method: method},
		ClusterID: cluster.ID,
		Order:     b.order,
	})
	b.order++
	return nil
}

func (b *Builder) addFileServer(n *confdsl.Node, hosts []string, port int) error {
	root := "."
	if r := n.FindOne("root"); r != nil {
		root = r.Arg(0)
	}
	var tryFiles []string
	if t := n.FindOne("try_files"); t != nil {
		tryFiles = t.Args
	}
	prefix := n.Arg(0)
	if prefix == "" {
		prefix = "/"
	}

	id := fmt.Sprintf("route_%d", b.order)
	b.fileItems[id] = model.FileServerItem{
		RouteID:       id,
		Root:          root,
		TryFiles:      tryFiles,
		Browse:        n.FindOne("browse") != nil,
		PreCompressed: n.FindOne("precompressed") != nil,
		PathPrefix:    prefix,
	}
	b.routes = append(b.routes, model.Route{
		ID:        id,
		Match:     model.RouteMatch{Hosts: hostsOrWildcard(hosts, port), Path: "/{**file-all}"},
		ClusterID: model.UnusedClusterID,
		Order:     b.order,
	})
	b.order++
	return nil
}

func (b *Builder) addSimpleResponse(n *confdsl.Node, hosts []string, port int) error {
	status := 200
	if len(n.Args) > 0 {
		if v, err := strconv.Atoi(n.Args[0]); err == nil {
			status = v
		}
	}
	body := ""
	if bdy := n.FindOne("body"); bdy != nil {
		body = strings.Join(bdy.Args, " ")
	}
	contentType := "text/plain"
	if ct := n.FindOne("content_type"); ct != nil {
		contentType = ct.Arg(0)
	}

	id := fmt.Sprintf("simpleres_%d", b.order)
	b.simpleItems[id] = model.SimpleResItem{
		RouteID:     id,
		Body:        body,
		StatusCode:  status,
		ContentType: contentType,
		ShowReq:     n.FindOne("show_req") != nil,
	}
	path := n.Arg(1)
	if path == "" {
		path = "/{**catch-all}"
	}
	b.routes = append(b.routes, model.Route{
		ID:        id,
		Match:     model.RouteMatch{Hosts: hostsOrWildcard(hosts, port), Path: path},
		ClusterID: model.UnusedClusterID,
		Order:     b.order,
	})
	b.order++
	return nil
}

// buildCluster normalizes a cluster block and deduplicates it by content
// hash, so two routes declaring the same destination set share one
// *model.Cluster and its health-check/load-balancer state.
func (b *Builder) buildCluster(n *confdsl.Node) (*model.Cluster, error) {
	var dests []string
	for _, d := range n.Find("to") {
		address, rest := joinAddrTokens(d.Args)
		dests = append(dests, strings.Join(append([]string{address}, rest...), " "))
	}
	lbPolicy := model.RoundRobin
	if p := n.FindOne("lb_policy"); p != nil {
		lbPolicy = model.LBPolicy(p.Arg(0))
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s", strings.Join(dests, ";"), lbPolicy)
	hash := hex.EncodeToString(h.Sum(nil))[:16]

	if id, ok := b.clusterHash[hash]; ok {
		return b.clusters[id], nil
	}

	id := "cluster_" + hash
	cluster := &model.Cluster{ID: id, LBPolicy: lbPolicy}
	for i, spec := range dests {
		dest, err := parseDestination(fmt.Sprintf("%s_%d", id, i), spec)
		if err != nil {
			return nil, err
		}
		cluster.Destinations = append(cluster.Destinations, dest)
	}
	cluster.HTTPClient = parseHTTPClientConfig(n.FindOne("http_client"))
	if hc := n.FindOne("health_check"); hc != nil {
		cluster.HealthCheck = parseHealthCheck(hc)
	}
	b.clusters[id] = cluster
	b.clusterHash[hash] = id
	return cluster, nil
}

// parseHTTPClientConfig reads an optional "http_client { ... }" block,
// returning the documented defaults (verify on, no caps) when n is nil.
func parseHTTPClientConfig(n *confdsl.Node) model.HTTPClientConfig {
	cfg := model.HTTPClientConfig{Verify: true}
	if n == nil {
		return cfg
	}
	if m := n.FindOne("max_conns"); m != nil {
		cfg.MaxConnPerServer, _ = strconv.Atoi(m.Arg(0))
	}
	if t := n.FindOne("request_timeout"); t != nil {
		cfg.RequestTimeout = parseTimeoutArg(t.Arg(0))
	}
	if t := n.FindOne("idle_timeout"); t != nil {
		cfg.IdleTimeout = parseDurationArg(t.Arg(0))
	}
	if t := n.FindOne("connection_lifetime"); t != nil {
		cfg.ConnectionLifetime = parseDurationArg(t.Arg(0))
	}
	if v := n.FindOne("verify_tls"); v != nil {
		cfg.Verify = v.Arg(0) != "false"
	}
	if p := n.FindOne("ssl_protocols"); p != nil {
		cfg.SSLProtocols = p.Args
	}
	return cfg
}

// parseHealthCheck reads a "health_check { ... }" block attached directly
// to a cluster (as opposed to the one nested under stream_proxy, which
// feeds model.StreamProxyConfig instead).
func parseHealthCheck(n *confdsl.Node) *model.HealthCheck {
	hc := &model.HealthCheck{Method: http.MethodGet, Path: "/", Passes: 1, Fails: 1}
	if m := n.FindOne("method"); m != nil {
		hc.Method = m.Arg(0)
	}
	if p := n.FindOne("path"); p != nil {
		hc.Path = p.Arg(0)
	}
	if q := n.FindOne("query"); q != nil {
		hc.Query = q.Arg(0)
	}
	if i := n.FindOne("interval"); i != nil {
		hc.Interval = parseDurationArg(i.Arg(0))
	}
	if t := n.FindOne("timeout"); t != nil {
		hc.Timeout = parseDurationArg(t.Arg(0))
	}
	if p := n.FindOne("passes"); p != nil {
		hc.Passes, _ = strconv.Atoi(p.Arg(0))
	}
	if f := n.FindOne("fails"); f != nil {
		hc.Fails, _ = strconv.Atoi(f.Arg(0))
	}
	if s := n.FindOne("expected_status"); s != nil {
		for _, a := range s.Args {
			if r, ok := parseStatusRange(a); ok {
				hc.ExpectedStatus = append(hc.ExpectedStatus, r)
			}
		}
	}
	if p := n.FindOne("predicate"); p != nil {
		hc.Predicate = model.HealthCheckPredicateKind(p.Arg(0))
		if len(p.Args) > 1 {
			hc.PredicateValue = strings.Join(p.Args[1:], " ")
		}
	}
	return hc
}

// parseTimeoutArg maps a request_timeout argument onto a three-state
// timeout.Setting: "off" or "infinity" disables the timeout entirely, an
// absent directive (handled by the caller, not here) leaves the documented
// default in effect, and anything else parses as an explicit Go duration,
// matching internal/timeout.Parse's grammar.
func parseTimeoutArg(s string) timeout.Setting {
	if s == "off" {
		s = "infinity"
	}
	return timeout.Parse(s)
}

// parseStatusRange parses "200", "200-399" into a model.StatusRange.
func parseStatusRange(s string) (model.StatusRange, bool) {
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		low, err1 := strconv.Atoi(lo)
		high, err2 := strconv.Atoi(hi)
		if err1 != nil || err2 != nil {
			return model.StatusRange{}, false
		}
		return model.StatusRange{Low: low, High: high}, true
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return model.StatusRange{}, false
	}
	return model.StatusRange{Low: code, High: code}, true
}

// joinAddrTokens reassembles a "host:port" destination address from the
// confdsl lexer's token stream, which tokenizes ':' as its own COLON
// token rather than leaving it attached to its neighbours.
func joinAddrTokens(args []string) (address string, rest []string) {
	if len(args) >= 3 && args[1] == ":" {
		return args[0] + ":" + args[2], args[3:]
	}
	if len(args) >= 1 {
		return args[0], args[1:]
	}
	return "", nil
}

func parseDestination(id, spec string) (*model.Destination, error) {
	// the lexer splits "weight=2" into "weight = 2"; rejoin it
	fields := strings.Fields(strings.ReplaceAll(spec, " = ", "="))
	if len(fields) == 0 {
		return nil, errors.New("empty destination")
	}
	d := &model.Destination{ID: id, Address: fields[0], Weight: 1}
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, "weight=") {
			if w, err := strconv.Atoi(strings.TrimPrefix(f, "weight=")); err == nil {
				d.Weight = w
			}
		}
	}
	d.SetHealthy(true)
	return d, nil
}

func hostsOrWildcard(hosts []string, port int) []string {
	if len(hosts) == 0 {
		return nil
	}
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h
	}
	_ = port
	return out
}

// parseAddress reads a site block's key ("example.com" or "*") and its
// first inline argument (the port) into a host and port pair. A bare
// numeric key (e.g. "8080 {") is treated as a hostless listener on that
// port. A port <= 0 is rejected.
func parseAddress(key string, args []string) (string, int, error) {
	if key == "" {
		return "", 0, errors.New("empty address")
	}
	if port, err := strconv.Atoi(key); err == nil {
		if port <= 0 {
			return "", 0, errors.Errorf("site %q: invalid port %q", key, key)
		}
		return "", port, nil
	}
	if len(args) == 0 {
		return "", 0, errors.Errorf("site %q: missing port", key)
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port <= 0 {
		return "", 0, errors.Errorf("site %q: invalid port %q", key, args[0])
	}
	host := key
	if host == "*" {
		host = ""
	}
	return host, port, nil
}
