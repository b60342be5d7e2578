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
)

func TestDefaultParametersValidate(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	require.Equal(t, "127.0.0.1", p.ControlPlane.BindAddress)
}

func TestLoadOverlaysDocumentOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lynxgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pidFile: /tmp/lynxgate.pid\ncontrolPlane:\n  bindPort: 9000\n"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/lynxgate.pid", p.PIDFile)
	require.Equal(t, 9000, p.ControlPlane.BindPort)
	require.Equal(t, "127.0.0.1", p.ControlPlane.BindAddress, "unset fields should keep the default")
}

func TestControlPlaneValidateRejectsBadPort(t *testing.T) {
	c := &ControlPlaneParameters{BindPort: 70000}
	require.Error(t, c.Validate())
}

func TestGeoIPValidateRejectsNegativeCacheSize(t *testing.T) {
	g := &GeoIPParameters{CacheSize: -1}
	require.Error(t, g.Validate())
}
