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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lynxgate/lynxgate/internal/model"
)

// HealthChecker periodically probes every destination of one cluster and
// flips Destination.Healthy after the configured number of consecutive
// passes/fails. It is started via internal/workgroup alongside
// every other long-running loop.
type HealthChecker struct {
	Cluster *model.Cluster
	Client  *http.Client
	Log     logrus.FieldLogger

	consecutive map[string]int // positive = passes, negative = fails, per destination id
}

// Run blocks probing every destination on HealthCheck.Interval until stop
// is closed. A nil HealthCheck makes Run a no-op so clusters without an
// active probe don't need a special case at the call site.
func (h *HealthChecker) Run(stop <-chan struct{}) error {
	hc := h.Cluster.HealthCheck
	if hc == nil {
		<-stop
		return nil
	}
	if h.consecutive == nil {
		h.consecutive = map[string]int{}
	}

	ticker := time.NewTicker(hc.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			h.probeAll(hc)
		}
	}
}

func (h *HealthChecker) probeAll(hc *model.HealthCheck) {
	for _, d := range h.Cluster.Destinations {
		h.probeOne(hc, d)
	}
}

func (h *HealthChecker) probeOne(hc *model.HealthCheck, d *model.Destination) {
	ctx, cancel := context.WithTimeout(context.Background(), hc.Timeout)
	defer cancel()

	ok := h.doProbe(ctx, hc, d)
	d.SetLastCheck(time.Now())

	if ok {
		h.consecutive[d.ID] = max0(h.consecutive[d.ID]) + 1
		if h.consecutive[d.ID] >= hc.Passes && !d.Healthy() {
			d.SetHealthy(true)
			h.logTransition(d, true)
		}
		return
	}

	h.consecutive[d.ID] = minNeg(h.consecutive[d.ID]) - 1
	if -h.consecutive[d.ID] >= hc.Fails && d.Healthy() {
		d.SetHealthy(false)
		h.logTransition(d, false)
	}
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
	h.Log.WithField("destination", d.ID).WithField("healthy", healthy).Info("health check state transition")
}

func (h *HealthChecker) doProbe(ctx context.Context, hc *model.HealthCheck, d *model.Destination) bool {
	url := "http://" + d.Address + hc.Path
	if hc.Query != "" {
		url += "?" + hc.Query
	}
	method := hc.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-Probe-Id", uuid.New().String())
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if !statusAccepted(hc.ExpectedStatus, resp.StatusCode) {
		return false
	}
	if hc.Predicate == model.PredicateNone {
		return true
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	return evalPredicate(hc.Predicate, hc.PredicateValue, body)
}

func statusAccepted(ranges []model.StatusRange, code int) bool {
	if len(ranges) == 0 {
		return code >= 200 && code < 300
	}
	for _, r := range ranges {
		if r.Contains(code) {
			return true
		}
	}
	return false
}

func evalPredicate(kind model.HealthCheckPredicateKind, want string, body []byte) bool {
	switch kind {
	case model.PredicateContains:
		return strings.Contains(string(body), want)
	case model.PredicateMatch:
		return strings.TrimSpace(string(body)) == strings.TrimSpace(want)
	case model.PredicateJSON:
		return jsonSubset(want, body)
	case model.PredicateJSONM:
		return jsonEqual(want, body)
	default:
		return true
	}
}

func jsonSubset(want string, gotBody []byte) bool {
	var w, g map[string]interface{}
	if json.Unmarshal([]byte(want), &w) != nil {
		return false
	}
	if json.Unmarshal(gotBody, &g) != nil {
		return false
	}
	for k, v := range w {
		gv, ok := g[k]
		if !ok || !jsonValueEqual(v, gv) {
			return false
		}
	}
	return true
}

func jsonEqual(want string, gotBody []byte) bool {
	var w, g interface{}
	if json.Unmarshal([]byte(want), &w) != nil {
		return false
	}
	if json.Unmarshal(gotBody, &g) != nil {
		return false
	}
	wb, _ := json.Marshal(w)
	gb, _ := json.Marshal(g)
	return bytes.Equal(wb, gb)
}

func jsonValueEqual(a, b interface{}) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return bytes.Equal(ab, bb)
}

// RecordPassiveFailure increments a destination's passive failure count
// and marks it unhealthy once the threshold is reached. The stream proxy
// calls it on upstream connect and pre-connect probe failures.
func RecordPassiveFailure(d *model.Destination, threshold int) {
	n := d.IncPassiveFailures()
	if int(n) >= threshold {
		d.SetHealthy(false)
	}
}

// RecordPassiveSuccess clears the passive failure counter on a successful
// upstream exchange.
func RecordPassiveSuccess(d *model.Destination) {
	d.ResetPassiveFailures()
}
