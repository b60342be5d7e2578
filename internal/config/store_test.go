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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lynxgate/lynxgate/internal/model"
)

func writeConf(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "lynxgate.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestStoreReloadSwapsGraphAtomically(t *testing.T) {
	dir := t.TempDir()
	path := writeConf(t, dir, `
example.com 80 {
	route / {
		cluster {
			to 10.0.0.1:9000
		}
	}
}
`)
	s, err := NewStore(path)
	require.NoError(t, err)
	require.Len(t, s.Graph().Routes, 1)

	require.NoError(t, os.WriteFile(path, []byte(`
example.com 80 {
	route / {
		cluster {
			to 10.0.0.1:9000
		}
	}
	route /admin {
		cluster {
			to 10.0.0.2:9000
		}
	}
}
`), 0o644))

	require.NoError(t, s.Reload())
	require.Len(t, s.Graph().Routes, 2)
}

func TestStoreOnReloadHookRunsWithFreshGraph(t *testing.T) {
	dir := t.TempDir()
	path := writeConf(t, dir, `
example.com 80 {
	route / {
		cluster {
			to 10.0.0.1:9000
		}
	}
}
`)
	s, err := NewStore(path)
	require.NoError(t, err)

	var seen int
	s.OnReload(func(g *model.Graph) { seen = len(g.Routes) })

	require.NoError(t, os.WriteFile(path, []byte(`
example.com 80 {
	route / {
		cluster {
			to 10.0.0.1:9000
		}
	}
	route /admin {
		cluster {
			to 10.0.0.2:9000
		}
	}
}
`), 0o644))
	require.NoError(t, s.Reload())

	require.Equal(t, 2, seen, "hook should observe the freshly reloaded graph")
}

func TestStoreOnReloadHookNotCalledOnFailedReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConf(t, dir, `
example.com 80 {
	route / {
		cluster {
			to 10.0.0.1:9000
		}
	}
}
`)
	s, err := NewStore(path)
	require.NoError(t, err)

	called := false
	s.OnReload(func(*model.Graph) { called = true })

	require.NoError(t, os.WriteFile(path, []byte(`
example.com 80 {
	route / {
	}
}
`), 0o644))
	require.Error(t, s.Reload())
	require.False(t, called, "a failed reload must not invoke reload hooks")
}

func TestStoreReloadRejectsBadConfigWithoutDroppingCurrent(t *testing.T) {
	dir := t.TempDir()
	path := writeConf(t, dir, `
example.com 80 {
	route / {
		cluster {
			to 10.0.0.1:9000
		}
	}
}
`)
	s, err := NewStore(path)
	require.NoError(t, err)
	original := s.Graph()

	require.NoError(t, os.WriteFile(path, []byte(`
example.com 80 {
	route / {
	}
}
`), 0o644))

	require.Error(t, s.Reload())
	require.Same(t, original, s.Graph(), "a failed reload must not replace the active graph")
}
