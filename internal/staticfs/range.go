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
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// byteRange is one parsed "first-byte_pos-last-byte_pos" spec.
type byteRange struct {
	start, end int64 // inclusive, both resolved against size
}

// parseRange parses a single-range "Range: bytes=X-Y" header (multi-range
// requests are not supported; they fall back to a full 200 response).
// The "bytes=X-" form where X >= size is accepted and resolves to an
// empty, zero-length range rather than an error, matching the behavior
// callers of this proxy depend on for probing file size without a HEAD.
func parseRange(header string, size int64) (byteRange, bool, error) {
	if header == "" {
		return byteRange{}, false, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, false, nil
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return byteRange{}, false, nil // multi-range: skip, serve whole file
	}

	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return byteRange{}, false, fmt.Errorf("malformed range %q", header)
	}

	switch {
	case parts[0] == "" && parts[1] != "":
		// suffix range: last N bytes
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return byteRange{}, false, err
		}
		if n > size {
			n = size
		}
		return byteRange{start: size - n, end: size - 1}, true, nil

	case parts[0] != "" && parts[1] == "":
		start, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return byteRange{}, false, err
		}
		if start >= size {
			// Spec edge case: bytes=X- with X >= size returns a valid,
			// zero-length 206 instead of a 416.
			return byteRange{start: start, end: start - 1}, true, nil
		}
		return byteRange{start: start, end: size - 1}, true, nil

	default:
		start, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return byteRange{}, false, err
		}
		end, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return byteRange{}, false, err
		}
		if end >= size {
			end = size - 1
		}
		if start > end {
			return byteRange{}, false, fmt.Errorf("invalid range %q", header)
		}
		return byteRange{start: start, end: end}, true, nil
	}
}

// ServeRange writes content (a ReaderAt seekable to size bytes) to w,
// honoring r's Range header when present.
func ServeRange(w http.ResponseWriter, r *http.Request, content io.ReaderAt, size int64) {
	rng, ok, err := parseRange(r.Header.Get("Range"), size)
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if !ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.Copy(w, io.NewSectionReader(content, 0, size))
		}
		return
	}

	length := rng.end - rng.start + 1
	if length < 0 {
		length = 0
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead || length == 0 {
		return
	}
	_, _ = io.Copy(w, io.NewSectionReader(content, rng.start, length))
}
