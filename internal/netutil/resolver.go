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

// Package netutil provides the pluggable DNS resolution the cluster HTTP
// client, the forward proxy and the stream proxy all dial through. When a
// custom upstream resolver is configured it is queried directly over the
// DNS wire protocol; otherwise resolution falls back to the OS resolver.
package netutil

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver resolves a hostname to an IP address and dials it. It is the
// single seam every outbound dialer (cluster client, forward proxy,
// stream proxy) goes through.
type Resolver struct {
	// Upstream is the custom DNS server address (host:port) to query. If
	// empty, Dial falls back to net.Dialer's resolver.
	Upstream string
	Timeout  time.Duration
}

// Dial resolves addr's host (if it isn't already an IP literal) using the
// configured resolver and dials the result.
func (r *Resolver) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, ""
	}

	ip := net.ParseIP(host)
	if ip == nil && r.Upstream != "" {
		ip, err = r.lookup(ctx, host)
		if err != nil {
			return nil, err
		}
	}

	dialer := &net.Dialer{Timeout: r.timeout()}
	target := addr
	if ip != nil {
		if port != "" {
			target = net.JoinHostPort(ip.String(), port)
		} else {
			target = ip.String()
		}
	}
	return dialer.DialContext(ctx, network, target)
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout <= 0 {
		return 5 * time.Second
	}
	return r.Timeout
}

func (r *Resolver) lookup(ctx context.Context, host string) (net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	c := &dns.Client{Timeout: r.timeout()}
	in, _, err := c.ExchangeContext(ctx, m, r.Upstream)
	if err != nil {
		return nil, fmt.Errorf("custom dns lookup %q via %q: %w", host, r.Upstream, err)
	}
	for _, ans := range in.Answer {
		if a, ok := ans.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("custom dns lookup %q via %q: no A record", host, r.Upstream)
}
