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
	"io"
	"os"

	"github.com/sirupsen/logrus"

	pkgconfig "github.com/lynxgate/lynxgate/pkg/config"
)

// openLogTarget resolves a LogTarget to a writer: stdout/stderr map to
// the process streams, anything else is opened (creating it if absent)
// as an append-only file.
func openLogTarget(target pkgconfig.LogTarget) (io.Writer, error) {
	switch target {
	case pkgconfig.LogStdout, "":
		return os.Stdout, nil
	case pkgconfig.LogStderr:
		return os.Stderr, nil
	default:
		return os.OpenFile(string(target), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	}
}

// newErrorLogger builds the logrus logger every component logs through,
// writing to the configured error-log target in text format.
func newErrorLogger(target pkgconfig.LogTarget) (logrus.FieldLogger, error) {
	w, err := openLogTarget(target)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(w)
	return log, nil
}

// newAccessLogger builds a dedicated logrus instance for the access log,
// so its lines are never interleaved with error-log formatting changes.
func newAccessLogger(target pkgconfig.LogTarget) (*logrus.Logger, error) {
	w, err := openLogTarget(target)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.JSONFormatter{})
	return log, nil
}
