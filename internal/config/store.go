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

package config

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/lynxgate/lynxgate/internal/confdsl"
	"github.com/lynxgate/lynxgate/internal/model"
)

// Store holds the currently active Graph behind an atomic pointer, so
// every request-handling goroutine can read a consistent snapshot
// without locking while Reload swaps in a freshly built one.
type Store struct {
	path    string
	current atomic.Pointer[model.Graph]

	hooksMu sync.Mutex
	hooks   []func(*model.Graph)
}

// NewStore builds a Store by parsing and normalizing the DSL file at
// path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Graph returns the currently active Graph. Safe for concurrent use.
func (s *Store) Graph() *model.Graph {
	return s.current.Load()
}

// OnReload registers fn to run after every future successful Reload,
// with the freshly published Graph. Hooks run synchronously, in
// registration order, on the goroutine that called Reload. OnReload
// does not replay past reloads, so callers must register before the
// first Reload whose result they need to observe.
func (s *Store) OnReload(fn func(*model.Graph)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Reload re-reads and re-parses the configuration file, atomically
// swapping in the new Graph only if it parses and normalizes cleanly;
// a bad edit never tears down a running configuration. Registered
// OnReload hooks then run with the new Graph so dependent components
// (listener handlers, selectors) can rebuild themselves to match.
func (s *Store) Reload() error {
	src, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrapf(err, "read config %q", s.path)
	}

	nodes, err := confdsl.Parse(string(src), fileImporter(s.path))
	if err != nil {
		return errors.Wrapf(err, "parse config %q", s.path)
	}

	graph, err := BuildGraph(nodes)
	if err != nil {
		return errors.Wrapf(err, "build graph from %q", s.path)
	}

	s.current.Store(graph)

	s.hooksMu.Lock()
	hooks := append([]func(*model.Graph){}, s.hooks...)
	s.hooksMu.Unlock()
	for _, hook := range hooks {
		hook(graph)
	}
	return nil
}

// fileImporter resolves "import" directives relative to the importing
// file's own directory.
func fileImporter(base string) confdsl.Importer {
	return func(path string) (string, error) {
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(base), path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrapf(err, "import %q (from %q)", path, base)
		}
		return string(b), nil
	}
}
