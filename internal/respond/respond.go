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

// Package respond renders canned responses, substituting request-derived
// placeholders into a configured body template.
package respond

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Request is the minimal request context a canned response template can
// reference, decoupled from *http.Request so callers outside the HTTP
// pipeline (e.g. tests) can construct one directly.
type Request struct {
	Port      string
	Host      string
	Path      string
	Method    string
	Query     string
	Scheme    string
	ClientIP  string
	URL       string
	UserAgent string
	RouteID   string
	Header    http.Header
}

// FromHTTPRequest builds a Request from a live *http.Request, port and
// routeID supplied by the caller since neither is directly recoverable
// from the request alone.
func FromHTTPRequest(r *http.Request, port, clientIP, routeID string) Request {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return Request{
		Port:      port,
		Host:      r.Host,
		Path:      r.URL.Path,
		Method:    r.Method,
		Query:     r.URL.RawQuery,
		Scheme:    scheme,
		ClientIP:  clientIP,
		URL:       r.URL.String(),
		UserAgent: r.UserAgent(),
		RouteID:   routeID,
		Header:    r.Header,
	}
}

// Item is one configured canned response.
type Item struct {
	StatusCode  int
	ContentType string
	Body        string // may contain {PLACEHOLDER} tokens
	ShowReq     bool   // append a dump of request headers to the body
	Headers     map[string]string
}

// Render substitutes req's fields into item's body template and, if
// ShowReq is set, appends a header dump.
func Render(item Item, req Request) string {
	now := time.Now()
	replacer := strings.NewReplacer(
		"{PORT}", req.Port,
		"{HOST}", req.Host,
		"{PATH}", req.Path,
		"{METHOD}", req.Method,
		"{QUERY}", req.Query,
		"{SCHEME}", req.Scheme,
		"{CLIENT_IP}", req.ClientIP,
		"{TIME}", now.Format("15:04:05"),
		"{DATE}", now.Format("2006-01-02"),
		"{URL}", req.URL,
		"{USER_AGENT}", req.UserAgent,
		"{ROUTE_ID}", req.RouteID,
	)
	body := replacer.Replace(item.Body)
	if item.ShowReq {
		body += "\n\n" + dumpHeaders(req)
	}
	return body
}

func dumpHeaders(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", req.Method, req.URL)

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range req.Header[name] {
			fmt.Fprintf(&b, "%s: %s\n", name, v)
		}
	}
	return b.String()
}

// WriteTo writes item's rendered body to w with the configured status,
// content type and extra headers.
func WriteTo(w http.ResponseWriter, item Item, req Request) {
	for k, v := range item.Headers {
		w.Header().Set(k, v)
	}
	ct := item.ContentType
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	status := item.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(Render(item, req)))
}
