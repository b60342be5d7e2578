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

// Package pipeline runs the unified L7 request chain: route
// match, access control, WAF, rate limiting, destination selection and
// proxying, static file serving or canned response, and response
// compression. Every stage can short-circuit the chain with a final
// response; a panic anywhere downstream is recovered into a 500 so one
// bad request can never take down the listener goroutine.
package pipeline

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lynxgate/lynxgate/internal/access"
	"github.com/lynxgate/lynxgate/internal/ccguard"
	"github.com/lynxgate/lynxgate/internal/cluster"
	"github.com/lynxgate/lynxgate/internal/compress"
	"github.com/lynxgate/lynxgate/internal/model"
	"github.com/lynxgate/lynxgate/internal/ratelimit"
	"github.com/lynxgate/lynxgate/internal/respond"
	"github.com/lynxgate/lynxgate/internal/router"
	"github.com/lynxgate/lynxgate/internal/staticfs"
	"github.com/lynxgate/lynxgate/internal/waf"
)

// RouteExtras is the per-route configuration that isn't part of the
// core model.Route/Cluster shape: access rules, WAF, rate limits and
// compression, all optional.
type RouteExtras struct {
	Access             *access.Controller
	WAF                *waf.Scanner
	ByteBucket         *ratelimit.TokenBucket
	Concurrency        *ratelimit.ConcurrencyLimiter
	Policy             *ratelimit.PolicyLimiter
	PolicyRejectStatus int // status written when Policy refuses a permit, default 429
	Compress           compress.Config
}

func (e RouteExtras) policyRejectStatus() int {
	if e.PolicyRejectStatus > 0 {
		return e.PolicyRejectStatus
	}
	return http.StatusTooManyRequests
}

// Pipeline binds a Graph snapshot to the live selectors, file servers and
// canned responders it needs to actually handle requests.
type Pipeline struct {
	graph     *model.Graph
	matcher   *router.Matcher
	selectors map[string]*cluster.Selector
	fileSrvrs map[string]*staticfs.Server
	extras    map[string]RouteExtras
	proxyFor  func(clusterID string, dest *model.Destination) http.Handler
	guard     *ccguard.Guard
	log       logrus.FieldLogger
	port      int
}

// New builds a Pipeline for graph, constructing one Selector per cluster
// and one staticfs.Server per file-server route. guard is the shared
// behavioural CC analyser (may be nil, meaning no ban short-circuit and
// no sample emission); it is consulted at stage 2 and fed at stage 5 of
// every request, per the ordered chain in spec §4.5.
func New(graph *model.Graph, port int, extras map[string]RouteExtras, proxyFor func(clusterID string, dest *model.Destination) http.Handler, guard *ccguard.Guard, log logrus.FieldLogger) *Pipeline {
	p := &Pipeline{
		graph:     graph,
		matcher:   router.New(graph.Routes),
		selectors: map[string]*cluster.Selector{},
		fileSrvrs: map[string]*staticfs.Server{},
		extras:    extras,
		proxyFor:  proxyFor,
		guard:     guard,
		log:       log,
		port:      port,
	}
	for id, c := range graph.Clusters {
		p.selectors[id] = cluster.NewSelector(c)
	}
	for routeID, item := range graph.FileServerItems {
		p.fileSrvrs[routeID] = staticfs.New(staticfs.Config{
			Root:     item.Root,
			TryFiles: item.TryFiles,
		})
	}
	return p
}

// ServeHTTP implements http.Handler, running the full 8-stage pipeline
// from spec §4.5 for one request, in order, with panic recovery at the
// top. Stage 3 (auto-HTTPS redirect) is handled one layer up, by the
// listener that wraps a Pipeline, since it depends on the listener's
// configuration rather than anything route-specific.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.WithField("panic", rec).Error("pipeline: recovered panic")
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()

	clientIP := clientIPOf(r)

	route, ok := p.matcher.Match(r.Host, p.port, r.URL.Path, r.Method)
	if !ok {
		http.NotFound(w, r)
		return
	}

	extras := p.extras[route.ID]

	// Stage 1: response-compression wrapper. Wrapping here, before any
	// stage that can write an error response, means every short-circuit
	// below is itself eligible for compression.
	cw := newCompressingWriter(w, r, extras.Compress)
	defer cw.Close()

	// Stage 2: access control. A client already banned by the CC analyser
	// short-circuits here before whitelist/blacklist/geo/connection-limit
	// rules even run, per "bans... short-circuit at step 2 of the
	// pipeline" (spec §4.12).
	if p.guard != nil && p.guard.Banned(clientIP) {
		http.Error(cw, "forbidden: banned", p.guard.RejectStatus())
		return
	}

	if extras.Access != nil {
		decision := extras.Access.Evaluate(clientIP, route.ClusterID, r.URL.Path)
		if !decision.Allowed {
			http.Error(cw, "forbidden: "+decision.Reason, http.StatusForbidden)
			return
		}
		defer extras.Access.Release(decision)
	}

	if extras.Concurrency != nil {
		if !extras.Concurrency.TryAcquire() {
			http.Error(cw, "too many concurrent requests", http.StatusServiceUnavailable)
			return
		}
		defer extras.Concurrency.Release()
	}

	// Stage 4: WAF inspection.
	if extras.WAF != nil {
		if v := extras.WAF.ScanQuery(r.URL.RawQuery); v.Blocked {
			http.Error(cw, "request blocked", http.StatusForbidden)
			return
		}
		if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
			body, err := io.ReadAll(io.LimitReader(r.Body, extras.WAF.MaxBodySize()+1))
			if err == nil {
				v := extras.WAF.ScanBody(r.Header.Get("Content-Type"), body)
				if v.BodyTooBig {
					http.Error(cw, "request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				if v.Blocked {
					http.Error(cw, "request blocked", http.StatusForbidden)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
		}
	}

	// Stage 5: statistics log + sample emission. The CC analyser sees
	// every request that makes it past access control and the WAF, which
	// is exactly the population its heuristics are evaluated against.
	p.log.WithFields(logrus.Fields{
		"client_ip": clientIP,
		"route":     route.ID,
		"method":    r.Method,
		"path":      r.URL.Path,
	}).Debug("pipeline: request")
	if p.guard != nil {
		p.guard.Record(clientIP, r.URL.Path, time.Now())
	}

	// Stage 6: byte-rate throttle, wrapping everything stages 7-8 write.
	tw := newThrottlingWriter(cw, r, extras.ByteBucket)

	// Stage 7: policy rate-limit.
	if extras.Policy != nil {
		if !extras.Policy.Allow(clientIP) {
			http.Error(tw, "rate limit exceeded", extras.policyRejectStatus())
			return
		}
	}

	// Stage 8: terminal dispatch.
	switch {
	case route.IsFileServer():
		p.serveFile(tw, r, route)
	case route.IsCannedResponse():
		p.serveCanned(tw, r, route, clientIP)
	default:
		p.serveProxy(tw, r, route, clientIP)
	}
}

func (p *Pipeline) serveFile(w http.ResponseWriter, r *http.Request, route model.Route) {
	srv, ok := p.fileSrvrs[route.ID]
	if !ok {
		http.NotFound(w, r)
		return
	}
	srv.ServeHTTP(w, r)
}

func (p *Pipeline) serveCanned(w http.ResponseWriter, r *http.Request, route model.Route, clientIP string) {
	item, ok := p.graph.SimpleResItems[route.ID]
	if !ok {
		http.NotFound(w, r)
		return
	}
	req := respond.FromHTTPRequest(r, portString(p.port), clientIP, route.ID)
	respond.WriteTo(w, respond.Item{
		StatusCode:  item.StatusCode,
		ContentType: item.ContentType,
		Body:        item.Body,
		ShowReq:     item.ShowReq,
		Headers:     item.Headers,
	}, req)
}

func (p *Pipeline) serveProxy(w http.ResponseWriter, r *http.Request, route model.Route, clientIP string) {
	sel, ok := p.selectors[route.ClusterID]
	if !ok {
		http.Error(w, "no cluster configured", http.StatusBadGateway)
		return
	}
	rc := cluster.FromHTTPRequest(r, clientIP)
	dest, ok := sel.Select(r.Context(), rc)
	if !ok {
		http.Error(w, "no healthy upstream", http.StatusServiceUnavailable)
		return
	}

	dest.IncActiveRequests()
	defer dest.DecActiveRequests()

	handler := p.proxyFor(route.ClusterID, dest)
	handler.ServeHTTP(w, r)
}

// ReverseProxyFor builds the *httputil.ReverseProxy dest's address should
// be proxied through, caching one per destination address and asking
// transportFor for the owning cluster's pooled Transport so connections
// are reused per the cluster's HTTPClientConfig rather than globally.
func ReverseProxyFor(transportFor func(clusterID string) http.RoundTripper) func(clusterID string, dest *model.Destination) http.Handler {
	var mu sync.Mutex
	cache := map[string]http.Handler{}
	return func(clusterID string, dest *model.Destination) http.Handler {
		mu.Lock()
		defer mu.Unlock()
		if h, ok := cache[dest.Address]; ok {
			return h
		}
		target := &url.URL{Scheme: "http", Host: dest.Address}
		rp := httputil.NewSingleHostReverseProxy(target)
		rp.Transport = transportFor(clusterID)
		cache[dest.Address] = rp
		return rp
	}
}

func clientIPOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func portString(port int) string {
	return strconv.Itoa(port)
}
