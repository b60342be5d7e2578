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

package streamproxy

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lynxgate/lynxgate/internal/cluster"
	"github.com/lynxgate/lynxgate/internal/model"
)

func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func startStreamProxy(t *testing.T, c *model.Cluster, cfg model.StreamProxyConfig) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &Server{Config: cfg, Selector: cluster.NewSelector(c)}
	stop := make(chan struct{})
	go s.Run(ln, stop)
	t.Cleanup(func() { close(stop); ln.Close() })
	return ln.Addr().String()
}

func TestStreamProxyEchoesThroughSingleUpstream(t *testing.T) {
	upstream := echoServer(t)
	c := &model.Cluster{
		ID:           "c1",
		LBPolicy:     model.First,
		Destinations: []*model.Destination{{ID: "d1", Address: upstream}},
	}
	addr := startStreamProxy(t, c, model.StreamProxyConfig{ConnectTimeout: time.Second})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}

func TestStreamProxySkipsDeadUpstreamViaPreconnectProbe(t *testing.T) {
	upstream := echoServer(t)

	// a destination address nothing listens on, to force a probe failure.
	deadLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := deadLn.Addr().String()
	deadLn.Close()

	c := &model.Cluster{
		ID:       "c1",
		LBPolicy: model.First,
		Destinations: []*model.Destination{
			{ID: "dead", Address: deadAddr},
			{ID: "live", Address: upstream},
		},
	}
	addr := startStreamProxy(t, c, model.StreamProxyConfig{ConnectTimeout: time.Second})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ok"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "ok", string(buf))
}

func TestProbeTimeoutCapsAtFiveSeconds(t *testing.T) {
	require.Equal(t, 5*time.Second, probeTimeout(20*time.Second))
	require.Equal(t, time.Second, probeTimeout(2*time.Second))
}
