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

// Package controlplane exposes the local administrative HTTP API: process
// status and build info, a redacted view of the active configuration,
// graceful stop, hot reload, and per-client access statistics. It is a
// plain workgroup-managed runnable with the same Run(stop) shape every
// other long-running component uses, not a separate daemon.
package controlplane

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	pkgconfig "github.com/lynxgate/lynxgate/pkg/config"
)

// configSections whitelists which top-level Parameters sections /api/config
// is allowed to echo back, so secrets that might land in unlisted fields
// (credentials, DSN strings) are never exposed over the admin API. Keys
// are the names encoding/json gives Parameters' fields (Parameters has no
// json tags, so these are the Go field names).
var configSections = map[string]bool{
	"ErrorLog":     true,
	"AccessLog":    true,
	"PerfLog":      true,
	"PIDFile":      true,
	"RoutesFile":   true,
	"ControlPlane": true,
	"ForwardProxy": true,
	"GeoIP":        true,
	"DNS":          true,
}

// Stats reports per-client counters for /api/statistics.
type Stats interface {
	// Snapshot returns one entry per tracked client, or just ip's entry
	// when ip is non-empty.
	Snapshot(ip string) map[string]ClientStats
}

// ClientStats is one client's current counters.
type ClientStats struct {
	Requests int64     `json:"requests"`
	Banned   bool      `json:"banned"`
	BannedAt time.Time `json:"bannedAt,omitempty"`
}

// Reloader re-reads and re-applies the routing configuration.
type Reloader interface {
	Reload() error
}

// Server serves the control plane's HTTP API on its own listener.
type Server struct {
	BindAddress string
	BindPort    int

	Version   string
	StartedAt time.Time
	Params    pkgconfig.Parameters
	Reloader  Reloader
	Stats     Stats
	Log       logrus.FieldLogger

	// Stop is closed by the /api/stop handler to request process
	// shutdown; the caller (cmd/lynxgate) is responsible for watching it
	// and tearing down the rest of the workgroup.
	Stop chan struct{}

	httpSrv *http.Server
}

// Run binds the control plane listener and serves until stop is closed.
// It matches the workgroup.Group function signature so it can be
// registered alongside every other listener.
func (s *Server) Run(stop <-chan struct{}) error {
	if !isLoopback(s.BindAddress) {
		s.logf("control plane bound to non-loopback address %s; the admin API is reachable from the network", s.BindAddress)
	}

	addr := net.JoinHostPort(s.BindAddress, strconv.Itoa(s.BindPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/reload", s.handleReload)
	mux.HandleFunc("/api/statistics", s.handleStatistics)

	s.httpSrv = &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logf("control plane: serving on %s", addr)
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(ctx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func isLoopback(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.StartedAt).String(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"version":   s.Version,
		"startedAt": s.StartedAt,
		"pid":       s.Params.PIDFile,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := json.Marshal(s.Params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var full map[string]interface{}
	if err := json.Unmarshal(raw, &full); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	filtered := map[string]interface{}{}
	for k, v := range full {
		if configSections[k] {
			filtered[k] = v
		}
	}
	writeJSON(w, filtered)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]interface{}{"status": "stopping"})
	if s.Stop != nil {
		close(s.Stop)
	}
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Reloader == nil {
		http.Error(w, "reload not supported", http.StatusNotImplemented)
		return
	}
	if err := s.Reloader.Reload(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"status": "reloaded"})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if s.Stats == nil {
		writeJSON(w, map[string]interface{}{})
		return
	}
	ip := r.URL.Query().Get("ip")
	writeJSON(w, s.Stats.Snapshot(ip))
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.Log == nil {
		return
	}
	s.Log.Infof(format, args...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
