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

package staticfs

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

func TestResolveRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{Root: dir})

	_, err := s.resolve("../../etc/passwd")
	require.ErrorIs(t, err, ErrTraversal)
}

func TestTryFilesFallsBackThroughChain(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "home")

	s := New(Config{Root: dir, TryFiles: []string{"{path}", "{path}/index.html", "/index.html"}})
	abs, ok := s.tryFiles("/missing")
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "index.html"), abs)
}

func TestServeHTTPServesPlainFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.txt", "hello world")

	s := New(Config{Root: dir})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/hello.txt", nil)
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello world", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("ETag"))
}

func TestServeHTTPNegotiatesPrecompressedVariant(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.js", "uncompressed")
	writeFile(t, dir, "app.js.br", "brotli-body")

	s := New(Config{Root: dir, PrecompressedSuffixes: map[string]string{"br": ".br"}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/app.js", nil)
	req.Header.Set("Accept-Encoding", "br, gzip")
	s.ServeHTTP(rec, req)

	require.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	require.Equal(t, "brotli-body", rec.Body.String())
}

func TestServeHTTPNotFoundWhenNoCandidateExists(t *testing.T) {
	dir := t.TempDir()
	s := New(Config{Root: dir})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseRangeMiddleSpan(t *testing.T) {
	rng, ok, err := parseRange("bytes=2-5", 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), rng.start)
	require.Equal(t, int64(5), rng.end)
}

func TestParseRangeSuffixForm(t *testing.T) {
	rng, ok, err := parseRange("bytes=-3", 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), rng.start)
	require.Equal(t, int64(9), rng.end)
}

func TestParseRangeOpenEndedBeyondSizeReturnsZeroLength(t *testing.T) {
	rng, ok, err := parseRange("bytes=20-", 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(20), rng.start)
	require.Equal(t, int64(19), rng.end)
	require.LessOrEqual(t, rng.end-rng.start+1, int64(0))
}

func TestServeRangeZeroLengthEdgeCaseReturns206(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.bin", "0123456789")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/f.bin", nil)
	req.Header.Set("Range", "bytes=20-")
	ServeRange(rec, req, f, 10)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	require.Equal(t, "0", rec.Header().Get("Content-Length"))
	require.Empty(t, rec.Body.String())
}

func TestServeRangePartialContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.bin", "0123456789")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/f.bin", nil)
	req.Header.Set("Range", "bytes=2-4")
	ServeRange(rec, req, f, 10)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	require.Equal(t, "234", rec.Body.String())
	require.Equal(t, "bytes 2-4/10", rec.Header().Get("Content-Range"))
}

func TestETagIsStableForSameInputs(t *testing.T) {
	mt := time.Unix(1000, 0)
	require.Equal(t, ETag(mt, 42), ETag(mt, 42))
	require.NotEqual(t, ETag(mt, 42), ETag(mt, 43))
}
