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

package compress

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestNegotiatePrefersBrotliOverGzip(t *testing.T) {
	require.Equal(t, EncodingBrotli, Negotiate("gzip, br, deflate"))
}

func TestNegotiateFallsBackToGzip(t *testing.T) {
	require.Equal(t, EncodingGzip, Negotiate("deflate, gzip"))
}

func TestNegotiateIdentityWhenNothingSupported(t *testing.T) {
	require.Equal(t, EncodingIdentity, Negotiate("deflate"))
}

func TestEligibleRejectsSmallResponses(t *testing.T) {
	cfg := Config{MinBytes: 1024}
	require.False(t, cfg.Eligible("text/html", 100))
	require.True(t, cfg.Eligible("text/html", 2048))
}

func TestEligibleFiltersByContentType(t *testing.T) {
	cfg := Config{CompressTypes: []string{"text/html", "application/json"}}
	require.True(t, cfg.Eligible("text/html; charset=utf-8", 10_000))
	require.False(t, cfg.Eligible("image/png", 10_000))
}

func TestNewEncoderGzipRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, EncodingGzip, Config{})
	_, err := enc.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	r, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	defer r.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(r)
	require.NoError(t, err)
	require.Equal(t, "hello world", out.String())
}

func TestApplyHeadersSetsContentEncodingAndDropsLength(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Length", "1234")
	ApplyHeaders(h, EncodingBrotli)
	require.Equal(t, "br", h.Get("Content-Encoding"))
	require.Empty(t, h.Get("Content-Length"))
	require.Equal(t, "Accept-Encoding", h.Get("Vary"))
}

func TestApplyHeadersNoopForIdentity(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Length", "1234")
	ApplyHeaders(h, EncodingIdentity)
	require.Equal(t, "1234", h.Get("Content-Length"))
}
