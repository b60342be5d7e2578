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

package ratelimit

import (
	"context"
	"io"
)

// ThrottledWriter wraps an io.Writer so every Write is metered against a
// TokenBucket, one token per byte. Used to cap per-URL response
// bandwidth (shared bucket for the URL) or per-IP bandwidth (bucket
// looked up from a KeyedTokenBuckets).
type ThrottledWriter struct {
	w      io.Writer
	ctx    context.Context
	bucket *TokenBucket
	chunk  int
}

// NewThrottledWriter wraps w, throttling writes against bucket in chunks
// of at most chunkSize bytes (and at most the bucket's burst) so a single
// huge Write doesn't stall behind one giant WaitN call.
func NewThrottledWriter(ctx context.Context, w io.Writer, bucket *TokenBucket, chunkSize int) *ThrottledWriter {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &ThrottledWriter{w: w, ctx: ctx, bucket: bucket, chunk: chunkSize}
}

// Write throttles p against the configured bucket before passing it to
// the underlying writer, chunk by chunk.
func (t *ThrottledWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := t.chunk
		if n > len(p) {
			n = len(p)
		}
		// WaitN cannot grant more than the bucket's burst in one call.
		if b := t.bucket.limiter.Burst(); b > 0 && n > b {
			n = b
		}
		if err := t.bucket.WaitN(t.ctx, n); err != nil {
			return written, err
		}
		wn, err := t.w.Write(p[:n])
		written += wn
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
