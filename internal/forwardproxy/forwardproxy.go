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

// Package forwardproxy implements a sniff-and-serve forward proxy: a
// single listener that serves HTTP absolute-URI requests, HTTP CONNECT
// tunnels, and SOCKS5 (RFC 1928/1929), distinguishing SOCKS5 from HTTP by
// its leading version byte.
package forwardproxy

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lynxgate/lynxgate/internal/netutil"
)

// Server serves one forward-proxy listener.
type Server struct {
	ACL         HostACL
	Auth        Credentials
	Resolver    *netutil.Resolver
	DataTimeout time.Duration
	Log         logrus.FieldLogger
}

// Run accepts connections on ln until stop is closed, handling each in
// its own goroutine.
func (s *Server) Run(ln net.Listener, stop <-chan struct{}) error {
	go func() {
		<-stop
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	first, err := r.Peek(1)
	if err != nil {
		return
	}

	if first[0] == 0x05 {
		if err := s.serveSOCKS5(conn, r); err != nil {
			s.logf("socks5 session ended: %v", err)
		}
		return
	}
	if err := s.serveHTTP(conn, r); err != nil && err != io.EOF {
		s.logf("http-proxy session ended: %v", err)
	}
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.Log == nil {
		return
	}
	s.Log.Debugf(format, args...)
}

// dial opens a connection to target (host:port), through the configured
// Resolver when one is set.
func (s *Server) dial(target string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout())
	defer cancel()

	if s.Resolver != nil {
		return s.Resolver.Dial(ctx, "tcp", target)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", target)
}

func (s *Server) connectTimeout() time.Duration {
	if s.DataTimeout > 0 {
		return s.DataTimeout
	}
	return 10 * time.Second
}

// tunnel bidirectionally copies between client and upstream and returns
// once both directions have finished (each ends when its source closes).
// No deadline is set on either connection: DataTimeout bounds only the
// upstream dial (see connectTimeout), not an idle tunnel.
func (s *Server) tunnel(client, upstream net.Conn) error {
	_, err := copyAll(client, upstream)
	return err
}

// copyAll pumps both directions of a tunnel concurrently and returns once
// both have finished, returning the first non-nil error encountered.
func copyAll(a, b net.Conn) (int64, error) {
	errCh := make(chan error, 2)
	var total atomic.Int64

	go func() {
		n, err := io.Copy(b, a)
		total.Add(n)
		if tc, ok := b.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		errCh <- err
	}()
	go func() {
		n, err := io.Copy(a, b)
		total.Add(n)
		if tc, ok := a.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		errCh <- err
	}()

	err1 := <-errCh
	err2 := <-errCh
	if err1 != nil {
		return total.Load(), err1
	}
	return total.Load(), err2
}
