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

// Command lynxgate is the gateway's single binary: one file per CLI verb
// (proxy, file, run, start, stop, reload, validate, respond, environ),
// mirroring the teacher's one-file-per-subcommand cmd/contour layout.
// This file assembles the long-running components a "run"/"start" verb
// needs out of a parsed Parameters and routing Graph.
package main

import (
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lynxgate/lynxgate/internal/ccguard"
	"github.com/lynxgate/lynxgate/internal/cluster"
	"github.com/lynxgate/lynxgate/internal/config"
	"github.com/lynxgate/lynxgate/internal/controlplane"
	"github.com/lynxgate/lynxgate/internal/forwardproxy"
	"github.com/lynxgate/lynxgate/internal/geoip"
	"github.com/lynxgate/lynxgate/internal/listener"
	"github.com/lynxgate/lynxgate/internal/model"
	"github.com/lynxgate/lynxgate/internal/netutil"
	"github.com/lynxgate/lynxgate/internal/pipeline"
	"github.com/lynxgate/lynxgate/internal/streamproxy"
	"github.com/lynxgate/lynxgate/internal/workgroup"
	pkgconfig "github.com/lynxgate/lynxgate/pkg/config"
)

// dynamicPipeline lets a bound listener's L7 handler outlive any single
// Graph snapshot: Reload builds a brand new *pipeline.Pipeline (new
// matcher, selectors, extras) and swaps it in here, so a request that
// lands mid-reload always runs against one complete, consistent Pipeline
// rather than ever seeing a part of the old graph and a part of the new.
type dynamicPipeline struct {
	port int
	p    atomic.Pointer[pipeline.Pipeline]
}

func (d *dynamicPipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := d.p.Load()
	if p == nil {
		http.Error(w, "gateway not ready", http.StatusServiceUnavailable)
		return
	}
	p.ServeHTTP(w, r)
}

func newConfigStore(routesFile string) (*config.Store, error) {
	return config.NewStore(routesFile)
}

// gateway holds every long-running piece a run/start verb wires together.
type gateway struct {
	group     workgroup.Group
	stop      chan struct{}
	log       logrus.FieldLogger
	accessLog *logrus.Logger
	ccGuard   *ccguard.Guard
	certs     *listener.CertStore
	resolver  *netutil.Resolver
	store     *config.Store
	geoLookup geoipLookup

	// dynamic holds one dynamicPipeline per L7 listener, keyed by
	// model.Listener.Key(), so config.Store.Reload can rebuild and swap
	// each listener's routing table without rebinding its socket.
	dynamic map[string]*dynamicPipeline
}

// buildGateway constructs every component named by params and the
// routing graph held by store, registering each with a workgroup.Group.
// The control plane is also registered so stop/reload requests delivered
// over its HTTP API reach this same workgroup.
func buildGateway(params pkgconfig.Parameters, store *config.Store, log logrus.FieldLogger) (*gateway, error) {
	accessLog, err := newAccessLogger(params.AccessLog)
	if err != nil {
		return nil, err
	}

	g := &gateway{
		stop:      make(chan struct{}),
		log:       log,
		accessLog: accessLog,
		store:     store,
		dynamic:   map[string]*dynamicPipeline{},
	}

	if params.GeoIP.DatabasePath != "" {
		db, err := geoip.Load(params.GeoIP.DatabasePath)
		if err != nil {
			return nil, err
		}
		cache, err := geoip.NewCachedLookup(db, params.GeoIP.CacheSize)
		if err != nil {
			return nil, err
		}
		g.geoLookup = cache
	}

	g.resolver = &netutil.Resolver{Upstream: params.DNS.Upstream, Timeout: params.DNS.Timeout}
	g.certs = listener.NewCertStore(listener.NullIssuer{})

	g.ccGuard = ccguard.New(ccguard.Config{})
	g.group.Add(func(stop <-chan struct{}) error { return g.ccGuard.Run(stop, log) })

	graph := store.Graph()
	if err := g.certs.Load(graph.Certificates); err != nil {
		return nil, err
	}

	extras, clients, proxyFor := g.buildRouting(graph)

	for _, cl := range graph.Clusters {
		if cl.HealthCheck == nil {
			continue
		}
		hc := &cluster.HealthChecker{Cluster: cl, Client: clients[cl.ID], Log: log}
		g.group.Add(hc.Run)
	}

	if err := g.addListeners(graph, params, extras, proxyFor); err != nil {
		return nil, err
	}

	store.OnReload(g.reloadRouting)

	cp := &controlplane.Server{
		BindAddress: params.ControlPlane.BindAddress,
		BindPort:    params.ControlPlane.BindPort,
		Version:     "lynxgate/dev",
		StartedAt:   time.Now(),
		Params:      params,
		Reloader:    store,
		Stats:       ccguardStats{g.ccGuard},
		Log:         log,
		Stop:        g.stop,
	}
	g.group.Add(cp.Run)

	return g, nil
}

// Run blocks serving every registered component until one exits or the
// control plane's /api/stop handler closes g.stop.
func (g *gateway) Run() error {
	g.group.Add(func(stop <-chan struct{}) error {
		select {
		case <-g.stop:
		case <-stop:
		}
		return nil
	})
	return g.group.Run()
}

func (g *gateway) addListeners(graph *model.Graph, params pkgconfig.Parameters, extras map[string]pipeline.RouteExtras, proxyFor func(clusterID string, dest *model.Destination) http.Handler) error {
	for _, ln := range graph.Listens {
		switch {
		case ln.StreamProxy:
			cfg, ok := graph.StreamProxies[ln.Key()]
			if !ok {
				continue
			}
			cl := graph.ClusterByID(cfg.ClusterID)
			if cl == nil {
				continue
			}
			sel := cluster.NewSelector(cl)
			srv := &streamproxy.Server{Config: cfg, Selector: sel, Log: g.log}
			if cfg.HealthCheckInterval > 0 {
				g.group.Add((&streamproxy.HealthChecker{Cluster: cl, Config: cfg, Log: g.log}).Run)
			}
			netLn, err := net.Listen("tcp", net.JoinHostPort(ln.Host, strconv.Itoa(ln.Port)))
			if err != nil {
				return err
			}
			g.group.Add(func(stop <-chan struct{}) error { return srv.Run(netLn, stop) })

		case ln.ForwardProxy:
			fp := &forwardproxy.Server{
				ACL:         forwardproxy.HostACL{Allow: params.ForwardProxy.AllowHosts, Deny: params.ForwardProxy.DenyHosts},
				Auth:        forwardproxy.Credentials{Required: params.ForwardProxy.RequireAuth},
				Resolver:    g.resolver,
				DataTimeout: 300 * time.Second,
				Log:         g.log,
			}
			netLn, err := net.Listen("tcp", net.JoinHostPort(ln.Host, strconv.Itoa(ln.Port)))
			if err != nil {
				return err
			}
			g.group.Add(func(stop <-chan struct{}) error { return fp.Run(netLn, stop) })

		default:
			dp := &dynamicPipeline{port: ln.Port}
			dp.p.Store(pipeline.New(graph, ln.Port, extras, proxyFor, g.ccGuard, g.log))
			g.dynamic[ln.Key()] = dp

			srv := &listener.Server{
				Listener:  ln,
				Handler:   withAccessLog(dp, g.accessLog),
				CertStore: g.certs,
				Log:       g.log,
			}
			g.group.Add(srv.Run)
		}
	}
	return nil
}

// buildRouting compiles graph into the extras table, per-cluster HTTP
// clients and reverse-proxy factory every L7 listener's Pipeline needs.
// Both the initial build and every subsequent reload go through this one
// path so the two can never drift apart.
func (g *gateway) buildRouting(graph *model.Graph) (map[string]pipeline.RouteExtras, map[string]*http.Client, func(clusterID string, dest *model.Destination) http.Handler) {
	routeExtras := buildGlobalExtras(g.geoLookup, graph)
	extras := make(map[string]pipeline.RouteExtras, len(graph.Routes))
	for _, route := range graph.Routes {
		extras[route.ID] = routeExtras
	}

	// Each cluster gets its own pooled *http.Client, honouring its
	// HTTPClientConfig (max conns, idle timeout, TLS verify, request
	// timeout) instead of sharing one transport across every upstream.
	clients := make(map[string]*http.Client, len(graph.Clusters))
	for _, cl := range graph.Clusters {
		clients[cl.ID] = cluster.NewHTTPClient(cl.HTTPClient, g.resolver.Dial)
	}
	proxyFor := pipeline.ReverseProxyFor(func(clusterID string) http.RoundTripper {
		if c, ok := clients[clusterID]; ok {
			return c.Transport
		}
		return http.DefaultTransport
	})
	return extras, clients, proxyFor
}

// reloadRouting is config.Store's post-reload hook: it rebuilds the
// routing-dependent state (certificates, extras, clients, per-cluster
// selectors) from the freshly swapped Graph and atomically swaps each
// listener's Pipeline, so requests in flight finish against the old
// snapshot while the next request on that listener sees the new one. It
// never rebinds a socket, so listeners added or removed between reloads
// are not picked up — only route/cluster/extras changes on listeners
// that already existed at startup.
func (g *gateway) reloadRouting(graph *model.Graph) {
	if err := g.certs.Load(graph.Certificates); err != nil {
		g.log.WithError(err).Error("reload: certificate load failed, keeping previous certificates")
	}

	extras, _, proxyFor := g.buildRouting(graph)

	for _, dp := range g.dynamic {
		dp.p.Store(pipeline.New(graph, dp.port, extras, proxyFor, g.ccGuard, g.log))
	}
}

// withAccessLog wraps h with a minimal structured request log, the
// wiring layer's stand-in for a dedicated access-log pipeline stage. Each
// request is tagged with a fresh request id so a single line in the
// access log can be correlated with upstream logs or a support ticket.
func withAccessLog(h http.Handler, log logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		if r.Header.Get("X-Request-Id") == "" {
			r.Header.Set("X-Request-Id", reqID)
		}
		w.Header().Set("X-Request-Id", reqID)

		start := time.Now()
		h.ServeHTTP(w, r)
		log.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     r.Method,
			"host":       r.Host,
			"path":       r.URL.Path,
			"duration":   time.Since(start).String(),
		}).Debug("request")
	})
}

// geoipLookup is a local interface with the same method set as
// access.GeoLookup, so *geoip.CachedLookup can be passed around here
// without this file naming the access package's interface.
type geoipLookup interface {
	Country(ip string) (string, bool)
}

// ccguardStats adapts *ccguard.Guard to controlplane.Stats. The guard
// itself only tracks bans and per-tick counters, not cumulative request
// totals, so Snapshot reports ban state; Requests is always 0.
type ccguardStats struct {
	guard *ccguard.Guard
}

func (c ccguardStats) Snapshot(ip string) map[string]controlplane.ClientStats {
	if ip == "" {
		return map[string]controlplane.ClientStats{}
	}
	return map[string]controlplane.ClientStats{
		ip: {Banned: c.guard.Banned(ip)},
	}
}
