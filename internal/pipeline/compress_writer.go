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

package pipeline

import (
	"net/http"

	"github.com/lynxgate/lynxgate/internal/compress"
)

// compressingWriter defers the compress/identity decision until the
// handler calls WriteHeader (or writes its first byte without an
// explicit call), since eligibility depends on the Content-Type and
// Content-Length the handler itself sets.
type compressingWriter struct {
	http.ResponseWriter
	req           *http.Request
	cfg           compress.Config
	wroteHeader   bool
	enc           compress.Encoding
	encoder       interface {
		Write([]byte) (int, error)
		Close() error
	}
}

func newCompressingWriter(w http.ResponseWriter, r *http.Request, cfg compress.Config) *compressingWriter {
	return &compressingWriter{ResponseWriter: w, req: r, cfg: cfg}
}

func (c *compressingWriter) WriteHeader(status int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true

	length := compress.ParseContentLength(c.ResponseWriter.Header())
	if status == http.StatusOK && c.cfg.Eligible(c.ResponseWriter.Header().Get("Content-Type"), length) {
		c.enc = compress.Negotiate(c.req.Header.Get("Accept-Encoding"))
	}
	compress.ApplyHeaders(c.ResponseWriter.Header(), c.enc)
	c.encoder = compress.NewEncoder(c.ResponseWriter, c.enc, c.cfg)
	c.ResponseWriter.WriteHeader(status)
}

func (c *compressingWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	return c.encoder.Write(p)
}

// Close flushes any buffered compressed output. Callers must invoke this
// after the wrapped handler returns.
func (c *compressingWriter) Close() error {
	if !c.wroteHeader {
		return nil
	}
	return c.encoder.Close()
}
