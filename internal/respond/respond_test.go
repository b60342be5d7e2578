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

package respond

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	req := Request{Host: "example.com", Path: "/status", Method: "GET", RouteID: "r1"}
	item := Item{Body: "{METHOD} {HOST}{PATH} via {ROUTE_ID}"}

	out := Render(item, req)
	require.Equal(t, "GET example.com/status via r1", out)
}

func TestRenderShowReqAppendsHeaderDump(t *testing.T) {
	req := Request{
		Method: "GET",
		URL:    "/x",
		Header: http.Header{"X-Test": []string{"a"}, "Accept": []string{"*/*"}},
	}
	item := Item{Body: "ok", ShowReq: true}

	out := Render(item, req)
	require.Contains(t, out, "ok")
	require.Contains(t, out, "GET /x")
	require.Contains(t, out, "Accept: */*")
	require.Contains(t, out, "X-Test: a")
}

func TestWriteToSetsStatusAndContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTo(rec, Item{StatusCode: 503, ContentType: "text/plain", Body: "down"}, Request{})

	require.Equal(t, 503, rec.Code)
	require.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	require.Equal(t, "down", rec.Body.String())
}

func TestWriteToDefaultsStatusAndContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTo(rec, Item{Body: "hi"}, Request{})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestFromHTTPRequestDetectsScheme(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/a?b=c", nil)
	req := FromHTTPRequest(r, "8080", "1.2.3.4", "route-1")

	require.Equal(t, "http", req.Scheme)
	require.Equal(t, "8080", req.Port)
	require.Equal(t, "1.2.3.4", req.ClientIP)
	require.Equal(t, "b=c", req.Query)
}
