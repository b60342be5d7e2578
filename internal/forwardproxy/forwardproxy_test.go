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
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startProxy(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	stop := make(chan struct{})
	go s.Run(ln, stop)
	t.Cleanup(func() { close(stop); ln.Close() })
	return ln.Addr().String()
}

func TestForwardProxyHandlesAbsoluteURIRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "hit")
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	proxyAddr := startProxy(t, &Server{})

	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req, err := http.NewRequest(http.MethodGet, upstream.URL+"/path", nil)
	require.NoError(t, err)
	require.NoError(t, req.Write(conn))

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello", string(body))
	require.Equal(t, "hit", resp.Header.Get("X-Upstream"))
}

func TestForwardProxyDeniesBlockedHostOverHTTP(t *testing.T) {
	proxyAddr := startProxy(t, &Server{ACL: HostACL{Deny: []string{"blocked.invalid"}}})

	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req, err := http.NewRequest(http.MethodGet, "http://blocked.invalid/", nil)
	require.NoError(t, err)
	require.NoError(t, req.Write(conn))

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestForwardProxyConnectTunnelsToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tunnelled"))
	}))
	defer upstream.Close()
	upstreamHost := upstream.Listener.Addr().String()

	proxyAddr := startProxy(t, &Server{})

	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	fmtConnect := "CONNECT " + upstreamHost + " HTTP/1.1\r\nHost: " + upstreamHost + "\r\n\r\n"
	_, err = conn.Write([]byte(fmtConnect))
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, statusLine, "200")
	// consume the trailing blank line of the CONNECT response.
	_, err = br.ReadString('\n')
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "http://"+upstreamHost+"/", nil)
	require.NoError(t, err)
	require.NoError(t, req.Write(conn))

	resp, err := http.ReadResponse(br, req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "tunnelled", string(body))
}

func TestForwardProxySOCKS5NoAuthConnect(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("socks-ok"))
	}))
	defer upstream.Close()
	upstreamAddr := upstream.Listener.Addr().(*net.TCPAddr)

	proxyAddr := startProxy(t, &Server{})

	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// greeting: version 5, 1 method, NO_AUTH
	_, err = conn.Write([]byte{0x05, 0x01, 0x00})
	require.NoError(t, err)

	br := bufio.NewReader(conn)
	greetResp := make([]byte, 2)
	_, err = io.ReadFull(br, greetResp)
	require.NoError(t, err)
	require.Equal(t, []byte{0x05, 0x00}, greetResp)

	// CONNECT request: ver, cmd=1, rsv=0, atyp=1 (IPv4), addr, port
	ip4 := upstreamAddr.IP.To4()
	require.NotNil(t, ip4)
	req := []byte{0x05, 0x01, 0x00, 0x01}
	req = append(req, ip4...)
	portBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(portBuf, uint16(upstreamAddr.Port))
	req = append(req, portBuf...)
	_, err = conn.Write(req)
	require.NoError(t, err)

	reply := make([]byte, 10)
	_, err = io.ReadFull(br, reply)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), reply[1], "expected SUCCEEDED reply code")

	httpReq, err := http.NewRequest(http.MethodGet, "http://"+upstreamAddr.String()+"/", nil)
	require.NoError(t, err)
	require.NoError(t, httpReq.Write(conn))

	resp, err := http.ReadResponse(br, httpReq)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "socks-ok", string(body))
}
