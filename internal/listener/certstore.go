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

package listener

import (
	"crypto/tls"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/lynxgate/lynxgate/internal/model"
)

// Issuer obtains a certificate for a host it doesn't already have one
// for, e.g. via ACME. NullIssuer is used when no issuer is configured.
type Issuer interface {
	Certificate(host string) (*tls.Certificate, error)
}

// NullIssuer always refuses to issue, for deployments with no ACME
// account configured.
type NullIssuer struct{}

// Certificate always reports that issuance isn't configured.
func (NullIssuer) Certificate(host string) (*tls.Certificate, error) {
	return nil, errors.Errorf("no certificate for %q and no issuer configured", host)
}

type resolvedCert struct {
	pattern string
	cert    *tls.Certificate
}

// CertStore resolves a SNI server name to the tls.Certificate it should
// present, matching literal hostnames before "*.suffix" wildcards. Loaded
// certificates are held behind an atomic pointer so Reload can swap in a
// freshly parsed table without taking a lock on the request path.
type CertStore struct {
	entries atomic.Pointer[[]resolvedCert]
	issuer  Issuer
}

// NewCertStore builds an empty CertStore backed by issuer, which may be
// NullIssuer{} to disable on-demand issuance.
func NewCertStore(issuer Issuer) *CertStore {
	if issuer == nil {
		issuer = NullIssuer{}
	}
	s := &CertStore{issuer: issuer}
	empty := []resolvedCert{}
	s.entries.Store(&empty)
	return s
}

// Load parses every CertEntry in certs into a tls.Certificate and
// publishes the result, replacing whatever table was loaded before.
func (s *CertStore) Load(certs []model.CertEntry) error {
	out := make([]resolvedCert, 0, len(certs))
	for _, c := range certs {
		cert, err := tls.X509KeyPair(c.Leaf, c.Key)
		if err != nil {
			return errors.Wrapf(err, "load certificate for %q", c.HostPattern)
		}
		out = append(out, resolvedCert{pattern: c.HostPattern, cert: &cert})
	}
	s.entries.Store(&out)
	return nil
}

// GetCertificate implements tls.Config.GetCertificate: it matches the
// ClientHello's SNI server name against the loaded table, preferring a
// literal match over a wildcard, and falls back to the configured Issuer
// when nothing matches.
func (s *CertStore) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	host := strings.ToLower(hello.ServerName)
	entries := *s.entries.Load()

	var wildcard *tls.Certificate
	var fallback *tls.Certificate
	for _, e := range entries {
		switch {
		case e.pattern == host:
			return e.cert, nil
		case e.pattern == "*":
			fallback = e.cert
		case strings.HasPrefix(e.pattern, "*.") && wildcardMatches(e.pattern, host):
			wildcard = e.cert
		}
	}
	if wildcard != nil {
		return wildcard, nil
	}
	if s.issuer != nil {
		if cert, err := s.issuer.Certificate(host); err == nil {
			return cert, nil
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, errors.Errorf("no certificate available for %q", host)
}

func wildcardMatches(pattern, host string) bool {
	suffix := pattern[1:] // ".example.com"
	if !strings.HasSuffix(host, suffix) {
		return false
	}
	label := strings.TrimSuffix(host, suffix)
	return label != "" && !strings.Contains(label, ".")
}
