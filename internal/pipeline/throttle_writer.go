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

	"github.com/lynxgate/lynxgate/internal/ratelimit"
)

// throttlingWriter paces every Write through a ratelimit.ThrottledWriter
// bound to the route's byte-rate bucket, implementing the §4.7 byte-rate
// throttle pipeline stage. Cancellation reaches the throttle through the
// request context the pipeline hands to NewThrottledWriter.
type throttlingWriter struct {
	http.ResponseWriter
	tw *ratelimit.ThrottledWriter
}

func newThrottlingWriter(w http.ResponseWriter, r *http.Request, bucket *ratelimit.TokenBucket) http.ResponseWriter {
	if bucket == nil {
		return w
	}
	return &throttlingWriter{
		ResponseWriter: w,
		tw:             ratelimit.NewThrottledWriter(r.Context(), w, bucket, 0),
	}
}

func (t *throttlingWriter) Write(p []byte) (int, error) {
	return t.tw.Write(p)
}
