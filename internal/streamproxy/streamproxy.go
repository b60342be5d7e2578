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
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lynxgate/lynxgate/internal/cluster"
	"github.com/lynxgate/lynxgate/internal/model"
)

// Server proxies raw TCP connections accepted on one listener to the
// healthy destination of a Cluster, selected by the cluster's configured
// load-balancing policy (RoundRobin, Random or First per the stream-proxy
// upstream contract).
type Server struct {
	Config   model.StreamProxyConfig
	Selector *cluster.Selector
	Log      logrus.FieldLogger
}

// Run accepts connections on ln until stop is closed, proxying each in its
// own goroutine.
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

	dest, err := s.pickReachable()
	if err != nil {
		s.logf("stream proxy: %v", err)
		return
	}

	upstream, err := s.dial(dest.Address)
	if err != nil {
		cluster.RecordPassiveFailure(dest, s.unhealthyThreshold())
		s.logf("stream proxy: dial %s: %v", dest.Address, err)
		return
	}
	defer upstream.Close()
	cluster.RecordPassiveSuccess(dest)

	dest.IncActiveRequests()
	defer dest.DecActiveRequests()

	if _, err := copyAll(conn, upstream, s.dataTimeout()); err != nil && err != io.EOF {
		s.logf("stream proxy: tunnel %s: %v", dest.Address, err)
	}
}

// pickReachable asks the Selector for a destination and, when more than
// one destination is configured, verifies it is actually reachable with a
// short pre-connect probe before committing to it. A probe failure is
// recorded as a passive failure and the remaining pool is tried in turn.
func (s *Server) pickReachable() (*model.Destination, error) {
	pool := s.Selector.Destinations()
	if len(pool) == 0 {
		return nil, fmt.Errorf("no destinations configured")
	}

	first, ok := s.Selector.Select(context.Background(), cluster.RequestContext{})
	if !ok {
		return nil, fmt.Errorf("no destinations configured")
	}
	if len(pool) == 1 {
		return first, nil
	}
	if s.probe(first.Address) {
		return first, nil
	}
	cluster.RecordPassiveFailure(first, s.unhealthyThreshold())

	for _, dest := range pool {
		if dest.ID == first.ID {
			continue
		}
		if s.probe(dest.Address) {
			return dest, nil
		}
		cluster.RecordPassiveFailure(dest, s.unhealthyThreshold())
	}
	return nil, fmt.Errorf("no reachable destination")
}

func (s *Server) probe(address string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout(s.connectTimeout()))
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (s *Server) dial(address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout())
	defer cancel()
	var d net.Dialer
	return d.DialContext(ctx, "tcp", address)
}

func (s *Server) connectTimeout() time.Duration { return connectTimeout(s.Config.ConnectTimeout) }

func (s *Server) dataTimeout() time.Duration { return s.Config.DataTimeout }

func (s *Server) unhealthyThreshold() int {
	if s.Config.UnhealthyThreshold > 0 {
		return s.Config.UnhealthyThreshold
	}
	return 3
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.Log == nil {
		return
	}
	s.Log.Debugf(format, args...)
}

// copyAll pumps both directions of a tunnel concurrently, resetting an
// idle deadline on every byte transferred when idleTimeout is positive, and
// returns once both directions have finished.
func copyAll(a, b net.Conn, idleTimeout time.Duration) (int64, error) {
	errCh := make(chan error, 2)
	var total atomic.Int64

	pump := func(dst, src net.Conn) {
		buf := make([]byte, 32*1024)
		var err error
		for {
			if idleTimeout > 0 {
				src.SetReadDeadline(time.Now().Add(idleTimeout))
			}
			var n int
			n, err = src.Read(buf)
			if n > 0 {
				total.Add(int64(n))
				if _, werr := dst.Write(buf[:n]); werr != nil {
					err = werr
					break
				}
			}
			if err != nil {
				break
			}
		}
		if tc, ok := dst.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		errCh <- err
	}

	go pump(b, a)
	go pump(a, b)

	err1 := <-errCh
	err2 := <-errCh
	if err1 != nil && err1 != io.EOF {
		return total.Load(), err1
	}
	if err2 != nil && err2 != io.EOF {
		return total.Load(), err2
	}
	return total.Load(), nil
}
