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

// Package compress negotiates response compression: brotli
// preferred over gzip when the client advertises both, gated by the
// response's MIME type and size.
package compress

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Config controls which responses are eligible for compression.
type Config struct {
	MinBytes      int64
	CompressTypes []string // e.g. "text/html", "application/json"
	BrotliLevel   int
	GzipLevel     int
}

// DefaultMinBytes is the size below which compressing a response isn't
// worth the CPU.
const DefaultMinBytes = 256

func (c Config) minBytes() int64 {
	if c.MinBytes > 0 {
		return c.MinBytes
	}
	return DefaultMinBytes
}

// Eligible reports whether a response of size contentLength and the
// given Content-Type header should be compressed under cfg.
func (c Config) Eligible(contentType string, contentLength int64) bool {
	if contentLength >= 0 && contentLength < c.minBytes() {
		return false
	}
	if len(c.CompressTypes) == 0 {
		return true
	}
	base, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		base = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	for _, t := range c.CompressTypes {
		if strings.EqualFold(t, base) {
			return true
		}
	}
	return false
}

// Encoding is a negotiated content-coding.
type Encoding string

const (
	// EncodingIdentity means no compression.
	EncodingIdentity Encoding = ""
	EncodingBrotli   Encoding = "br"
	EncodingGzip     Encoding = "gzip"
)

// Negotiate picks the best encoding the client accepts, preferring
// brotli over gzip when both are offered.
func Negotiate(acceptEncoding string) Encoding {
	accepts := func(name string) bool {
		for _, part := range strings.Split(acceptEncoding, ",") {
			token := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
			if strings.EqualFold(token, name) {
				return true
			}
		}
		return false
	}
	if accepts("br") {
		return EncodingBrotli
	}
	if accepts("gzip") {
		return EncodingGzip
	}
	return EncodingIdentity
}

// NewEncoder wraps w with a compressing writer for enc, or returns w
// unchanged for EncodingIdentity. The caller must Close the returned
// writer (a no-op for identity) to flush any trailing compressed bytes.
func NewEncoder(w io.Writer, enc Encoding, cfg Config) io.WriteCloser {
	switch enc {
	case EncodingBrotli:
		level := cfg.BrotliLevel
		if level == 0 {
			level = brotli.DefaultCompression
		}
		return brotli.NewWriterLevel(w, level)
	case EncodingGzip:
		level := cfg.GzipLevel
		if level == 0 {
			level = gzip.DefaultCompression
		}
		gw, _ := gzip.NewWriterLevel(w, level)
		return gw
	default:
		return nopCloser{w}
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// ApplyHeaders sets the Content-Encoding and removes Content-Length (the
// compressed size isn't known up front) on a response about to be
// encoded with enc.
func ApplyHeaders(h http.Header, enc Encoding) {
	if enc == EncodingIdentity {
		return
	}
	h.Set("Content-Encoding", string(enc))
	h.Del("Content-Length")
	h.Add("Vary", "Accept-Encoding")
}

// ParseContentLength reads the Content-Length header, returning -1 if
// absent or malformed.
func ParseContentLength(h http.Header) int64 {
	v := h.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
