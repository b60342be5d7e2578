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

// Package config holds the structured YAML configuration the gateway
// reads on startup: file paths, log targets, and the control plane's
// bind address. The routing graph (listeners, routes, clusters) lives
// in its own DSL and is handled by internal/config, not here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LogTarget names where a log stream is written.
type LogTarget string

const (
	LogStdout LogTarget = "stdout"
	LogStderr LogTarget = "stderr"
)

// Validate reports whether t is a recognized target or a file path
// (anything not "stdout"/"stderr" is treated as a path and accepted).
func (t LogTarget) Validate() error {
	return nil
}

// ControlPlaneParameters configures the local administrative HTTP API.
type ControlPlaneParameters struct {
	BindAddress string `yaml:"bindAddress"`
	BindPort    int    `yaml:"bindPort"`
}

// Validate checks the control plane's bind address/port.
func (c *ControlPlaneParameters) Validate() error {
	if c == nil {
		return nil
	}
	if c.BindPort < 0 || c.BindPort > 65535 {
		return fmt.Errorf("invalid control plane port %d", c.BindPort)
	}
	return nil
}

// ForwardProxyParameters configures the HTTP/CONNECT/SOCKS5 egress proxy.
type ForwardProxyParameters struct {
	Enabled     bool     `yaml:"enabled"`
	AllowHosts  []string `yaml:"allowHosts"`
	DenyHosts   []string `yaml:"denyHosts"`
	RequireAuth bool     `yaml:"requireAuth"`
}

// GeoIPParameters configures the optional geo-control database.
type GeoIPParameters struct {
	DatabasePath string `yaml:"databasePath"`
	CacheSize    int    `yaml:"cacheSize"`
}

// Validate rejects a negative CacheSize. It does not require
// DatabasePath to be set.
func (g *GeoIPParameters) Validate() error {
	if g == nil {
		return nil
	}
	if g.CacheSize < 0 {
		return fmt.Errorf("geoip cacheSize must be >= 0")
	}
	return nil
}

// DNSParameters configures the custom upstream resolver used for
// cluster, forward-proxy and stream-proxy dialing.
type DNSParameters struct {
	Upstream string        `yaml:"upstream"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Parameters is the full root configuration document.
type Parameters struct {
	ConfigFile   string                 `yaml:"-"`
	RoutesFile   string                 `yaml:"routesFile"`
	ErrorLog     LogTarget              `yaml:"errorLog"`
	AccessLog    LogTarget              `yaml:"accessLog"`
	PerfLog      LogTarget              `yaml:"perfLog"`
	PIDFile      string                 `yaml:"pidFile"`
	ControlPlane ControlPlaneParameters `yaml:"controlPlane"`
	ForwardProxy ForwardProxyParameters `yaml:"forwardProxy"`
	GeoIP        GeoIPParameters        `yaml:"geoip"`
	DNS          DNSParameters          `yaml:"dns"`
}

// Default returns a Parameters populated with the documented defaults.
func Default() Parameters {
	return Parameters{
		ErrorLog:  LogStderr,
		AccessLog: LogStdout,
		ControlPlane: ControlPlaneParameters{
			BindAddress: "127.0.0.1",
			BindPort:    2022,
		},
	}
}

// Load reads and parses a YAML configuration file on top of Default(),
// so any field the file does not set keeps its default value.
func Load(path string) (Parameters, error) {
	p := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse config file %q: %w", path, err)
	}
	p.ConfigFile = path
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks every sub-section of p.
func (p *Parameters) Validate() error {
	if err := p.ControlPlane.Validate(); err != nil {
		return err
	}
	if err := p.GeoIP.Validate(); err != nil {
		return err
	}
	return nil
}
