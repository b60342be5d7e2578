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
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lynxgate/lynxgate/internal/model"
)

// HealthChecker periodically TCP-dials every destination of a stream
// proxy's cluster and flips Destination.Healthy after the configured
// number of consecutive passes/fails. Runtime connect failures seen by
// Server.handleConn go to cluster.RecordPassiveFailure/RecordPassiveSuccess,
// the destination's own passive counter (not this checker's consecutive
// counts), so a burst of real traffic failures can pull a destination out
// of rotation between ticks.
type HealthChecker struct {
	Cluster *model.Cluster
	Config  model.StreamProxyConfig
	Log     logrus.FieldLogger

	consecutive map[string]int // positive = passes, negative = fails, per destination id
}

// Run blocks probing every destination on Config.HealthCheckInterval until
// stop is closed. An interval of zero disables the active ticker; the
// checker then relies solely on passive failures recorded by the proxy
// loop.
func (h *HealthChecker) Run(stop <-chan struct{}) error {
	if h.Config.HealthCheckInterval <= 0 {
		<-stop
		return nil
	}
	if h.consecutive == nil {
		h.consecutive = map[string]int{}
	}

	ticker := time.NewTicker(h.Config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			h.probeAll()
		}
	}
}

func (h *HealthChecker) probeAll() {
	for _, d := range h.Cluster.Destinations {
		h.probeOne(d)
	}
}

func (h *HealthChecker) probeOne(d *model.Destination) {
	ok := h.dial(d.Address)
	d.SetLastCheck(time.Now())

	if ok {
		h.recordLocked(d, true)
		return
	}
	h.recordLocked(d, false)
}

func (h *HealthChecker) dial(address string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout())
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (h *HealthChecker) timeout() time.Duration {
	if h.Config.HealthCheckTimeout > 0 {
		return h.Config.HealthCheckTimeout
	}
	return 2 * time.Second
}

func (h *HealthChecker) recordLocked(d *model.Destination, ok bool) {
	if ok {
		h.consecutive[d.ID] = max0(h.consecutive[d.ID]) + 1
		if h.consecutive[d.ID] >= h.healthyThreshold() && !d.Healthy() {
			d.SetHealthy(true)
			d.ResetPassiveFailures()
			h.logTransition(d, true)
		}
		return
	}

	h.consecutive[d.ID] = minNeg(h.consecutive[d.ID]) - 1
	if -h.consecutive[d.ID] >= h.unhealthyThreshold() && d.Healthy() {
		d.SetHealthy(false)
		h.logTransition(d, false)
	}
}

func (h *HealthChecker) healthyThreshold() int {
	if h.Config.HealthyThreshold > 0 {
		return h.Config.HealthyThreshold
	}
	return 2
}

func (h *HealthChecker) unhealthyThreshold() int {
	if h.Config.UnhealthyThreshold > 0 {
		return h.Config.UnhealthyThreshold
	}
	return 3
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func minNeg(v int) int {
	if v > 0 {
		return 0
	}
	return v
}

func (h *HealthChecker) logTransition(d *model.Destination, healthy bool) {
	if h.Log == nil {
		return
	}
	h.Log.WithField("destination", d.ID).WithField("healthy", healthy).Info("stream proxy health check state transition")
}
