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

package forwardproxy

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// serveHTTP runs one HTTP-mode connection: it may carry any number of
// pipelined requests, each either an absolute-URI proxy request or a
// CONNECT tunnel request (which takes over the connection for its
// remaining lifetime).
func (s *Server) serveHTTP(conn net.Conn, r *bufio.Reader) error {
	for {
		req, err := http.ReadRequest(r)
		if err != nil {
			return err
		}

		if !s.authorize(req) {
			resp := "HTTP/1.1 407 Proxy Authentication Required\r\n" +
				"Proxy-Authenticate: Basic realm=\"lynxgate\"\r\n" +
				"Content-Length: 0\r\n\r\n"
			conn.Write([]byte(resp))
			req.Body.Close()
			continue
		}

		if req.Method == http.MethodConnect {
			return s.handleConnect(conn, req)
		}
		if err := s.handleAbsoluteURI(conn, req); err != nil {
			return err
		}
	}
}

func (s *Server) authorize(req *http.Request) bool {
	return s.Auth.CheckBasic(req.Header.Get("Proxy-Authorization"))
}

// handleConnect implements CONNECT-mode tunnelling: parse host:port from
// the request target, check ACLs, open upstream, reply 200, then
// bidirectionally copy.
func (s *Server) handleConnect(conn net.Conn, req *http.Request) error {
	host, _, err := net.SplitHostPort(req.Host)
	if err != nil {
		host = req.Host
	}
	if !s.ACL.Allowed(host) {
		conn.Write([]byte("HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"))
		return fmt.Errorf("connect: host not allowed: %s", host)
	}

	upstream, err := s.dial(req.Host)
	if err != nil {
		conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\nContent-Length: 0\r\n\r\n"))
		return err
	}
	defer upstream.Close()

	if _, err := conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return err
	}
	return s.tunnel(conn, upstream)
}

// handleAbsoluteURI implements HTTP-mode proxying: extract host/port,
// check ACLs, dial upstream, rewrite to origin form, drop Proxy-* headers,
// and stream exactly one framed response back so the connection's
// remaining pipelined requests stay intact.
func (s *Server) handleAbsoluteURI(conn net.Conn, req *http.Request) error {
	if req.URL.Host == "" {
		return errors.New("forwardproxy: request target is not an absolute URI")
	}
	host := req.URL.Hostname()
	if !s.ACL.Allowed(host) {
		conn.Write([]byte("HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"))
		return fmt.Errorf("http-proxy: host not allowed: %s", host)
	}

	target := req.URL.Host
	if req.URL.Port() == "" {
		target = net.JoinHostPort(host, "80")
	}

	upstream, err := s.dial(target)
	if err != nil {
		conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\nContent-Length: 0\r\n\r\n"))
		return err
	}
	defer upstream.Close()

	origin := req.Clone(req.Context())
	origin.RequestURI = ""
	origin.URL.Scheme = ""
	origin.URL.Host = ""
	origin.Host = req.URL.Host
	for h := range origin.Header {
		if strings.HasPrefix(strings.ToLower(h), "proxy-") {
			origin.Header.Del(h)
		}
	}

	if err := origin.Write(upstream); err != nil {
		return err
	}

	resp, err := http.ReadResponse(bufio.NewReader(upstream), origin)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return resp.Write(conn)
}
