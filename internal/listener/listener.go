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

// Package listener binds the sockets named by a Graph's Listeners,
// resolves SNI certificates for TLS ones, and hands accepted connections
// to the L7 pipeline, the forward proxy, or the stream proxy depending
// on how the listener block is configured.
package listener

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"

	"github.com/lynxgate/lynxgate/internal/model"
)

// Server binds and serves one model.Listener.
type Server struct {
	Listener  model.Listener
	Handler   http.Handler
	CertStore *CertStore
	Log       logrus.FieldLogger

	httpSrv *http.Server
}

// Run binds the listener's socket and serves until stop is closed,
// matching the signature workgroup.Group.Add expects.
func (s *Server) Run(stop <-chan struct{}) error {
	addr := net.JoinHostPort(s.Listener.Host, strconv.Itoa(s.Listener.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.Listener.TLS {
		s.httpSrv.TLSConfig = &tls.Config{
			GetCertificate: s.CertStore.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}
		// Advertise h2 in the TLS handshake so browsers negotiate HTTP/2
		// instead of falling back to 1.1 through the proxy.
		if err := http2.ConfigureServer(s.httpSrv, &http2.Server{}); err != nil {
			return fmt.Errorf("configure http2 for %s: %w", addr, err)
		}
		ln = tls.NewListener(ln, s.httpSrv.TLSConfig)
	} else if s.Listener.AutoHTTPSPort > 0 {
		s.Handler = autoHTTPSRedirect(s.Listener.AutoHTTPSPort)
		s.httpSrv.Handler = s.Handler
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.WithFields(logrus.Fields{"addr": addr, "tls": s.Listener.TLS}).Info("listener: serving")
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(ctx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// autoHTTPSRedirect builds a handler that 301-redirects every request to
// the same host on httpsPort over https.
func autoHTTPSRedirect(httpsPort int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.Host)
		if err != nil {
			host = r.Host
		}
		target := fmt.Sprintf("https://%s", host)
		if httpsPort != 443 {
			target = fmt.Sprintf("https://%s:%d", host, httpsPort)
		}
		target += r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	}
}
