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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"
)

// bindCommonFlags registers the flags every verb shares on cmd.
func bindCommonFlags(cmd *kingpin.CmdClause, c *commonFlags) {
	cmd.Flag("env", "Path to a .env file to load before startup.").StringVar(&c.envFile)
	cmd.Flag("e", "Override one environment variable as key=value; repeatable.").Short('e').StringsVar(&c.envOverrides)
	cmd.Flag("pid", "Write the process ID to this file.").StringVar(&c.pidFile)
	cmd.Flag("cert-pem", "PEM certificate chain path (accepted, but not applied to any listener).").StringVar(&c.certPEM)
	cmd.Flag("cert-key", "PEM private key path (accepted, but not applied to any listener).").StringVar(&c.certKey)
	cmd.Flag("perf-log", "Performance log target (stdout, stderr, or a file path).").StringVar(&c.perfLog)
	cmd.Flag("access-log", "Access log target (stdout, stderr, or a file path).").StringVar(&c.accessLog)
	cmd.Flag("error-log", "Error log target (stdout, stderr, or a file path).").StringVar(&c.errorLog)
}

// commonFlags holds the flags shared by every verb: env file and
// overrides, the PID file, the startup certificate pair, and the three
// log targets.
type commonFlags struct {
	envFile      string
	envOverrides []string
	pidFile      string
	certPEM      string
	certKey      string
	perfLog      string
	accessLog    string
	errorLog     string
}

// applyEnv loads c.envFile (if set) into the process environment, then
// applies each "-e key=value" override on top so command-line overrides
// always win over the file.
func (c *commonFlags) applyEnv() error {
	if c.envFile != "" {
		if err := loadEnvFile(c.envFile); err != nil {
			return fmt.Errorf("load env file %q: %w", c.envFile, err)
		}
	}
	for _, kv := range c.envOverrides {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid -e override %q, want key=value", kv)
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}
	return nil
}

// writePIDFile writes the current process ID to path, if path is non-empty.
func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

// loadEnvFile applies a minimal "KEY=value" dotenv file to the process
// environment, one variable per line; blank lines and "#" comments are
// skipped. Existing environment variables are not overwritten.
func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.Trim(strings.TrimSpace(v), `"'`)
		if _, exists := os.LookupEnv(k); !exists {
			os.Setenv(k, v)
		}
	}
	return scanner.Err()
}
