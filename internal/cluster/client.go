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

package cluster

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/lynxgate/lynxgate/internal/model"
	"github.com/lynxgate/lynxgate/internal/timeout"
)

// DialFunc resolves and dials an upstream address; internal/netutil
// supplies the custom-DNS-aware implementation.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// defaultRequestTimeout is used when a cluster's http_client block leaves
// request_timeout unset (timeout.Setting.UseDefault()).
const defaultRequestTimeout = 30 * time.Second

// NewHTTPClient builds the pooled client a Cluster uses to reach its
// destinations, honouring maxConnPerServer and idle timeout from the
// cluster's HTTPClientConfig; ConnectionLifetime is not applied, so pooled
// connections are not closed on account of their age. HTTP/2 multiplexing is
// enabled by leaving ForceAttemptHTTP2 on the transport, matching Go's
// default client behaviour.
func NewHTTPClient(cfg model.HTTPClientConfig, dial DialFunc) *http.Client {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnPerServer,
		MaxIdleConnsPerHost: cfg.MaxConnPerServer,
		IdleConnTimeout:     cfg.IdleTimeout,
		ForceAttemptHTTP2:   true,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: !cfg.Verify},
	}
	if dial != nil {
		transport.DialContext = dial
	}
	return &http.Client{
		Transport: transport,
		Timeout:   requestTimeout(cfg.RequestTimeout),
	}
}

// requestTimeout resolves a three-state timeout.Setting to the concrete
// duration http.Client.Timeout expects: disabled and "no timeout" are both
// expressed as 0.
func requestTimeout(s timeout.Setting) time.Duration {
	switch {
	case s.IsDisabled():
		return 0
	case s.UseDefault():
		return defaultRequestTimeout
	default:
		return s.Duration()
	}
}
