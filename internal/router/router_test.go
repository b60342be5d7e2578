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

package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lynxgate/lynxgate/internal/model"
)

func TestMatchHostSpecificBeatsHostless(t *testing.T) {
	routes := []model.Route{
		{ID: "a", Match: model.RouteMatch{Path: "/"}},
		{ID: "b", Match: model.RouteMatch{Hosts: []string{"example.com"}, Path: "/"}},
	}
	m := New(routes)
	got, ok := m.Match("example.com", 80, "/", "GET")
	require.True(t, ok)
	require.Equal(t, "b", got.ID)
}

func TestMatchSpecificPathBeatsWildcard(t *testing.T) {
	routes := []model.Route{
		{ID: "catchall", Match: model.RouteMatch{Hosts: []string{"example.com"}, Path: "/{**catch-all}"}},
		{ID: "admin", Match: model.RouteMatch{Hosts: []string{"example.com"}, Path: "/admin"}},
	}
	m := New(routes)
	got, ok := m.Match("example.com", 80, "/admin", "GET")
	require.True(t, ok)
	require.Equal(t, "admin", got.ID)
}

func TestMatchWildcardSuffix(t *testing.T) {
	routes := []model.Route{
		{ID: "wild", Match: model.RouteMatch{Hosts: []string{"*.example.com"}, Path: "/{**catch-all}"}},
	}
	m := New(routes)
	_, ok := m.Match("api.example.com", 80, "/foo", "GET")
	require.True(t, ok)
	_, ok = m.Match("example.com", 80, "/foo", "GET")
	require.True(t, ok)
	_, ok = m.Match("notexample.com", 80, "/foo", "GET")
	require.False(t, ok)
}

func TestMatchLoopbackAliasesEquivalent(t *testing.T) {
	routes := []model.Route{
		{ID: "local", Match: model.RouteMatch{Hosts: []string{"localhost"}, Path: "/{**catch-all}"}},
	}
	m := New(routes)
	for _, h := range []string{"localhost", "127.0.0.1", "::1", "[::1]"} {
		_, ok := m.Match(h, 80, "/x", "GET")
		require.True(t, ok, "host %s should match", h)
	}
}

func TestMatchNoneReturnsFalse(t *testing.T) {
	routes := []model.Route{
		{ID: "a", Match: model.RouteMatch{Hosts: []string{"example.com"}, Path: "/{**catch-all}"}},
	}
	m := New(routes)
	_, ok := m.Match("other.com", 80, "/x", "GET")
	require.False(t, ok)
}

func TestMatchOrderIsDeterministicAcrossInputOrder(t *testing.T) {
	r1 := model.Route{ID: "a", Match: model.RouteMatch{Hosts: []string{"example.com"}, Path: "/admin"}}
	r2 := model.Route{ID: "b", Match: model.RouteMatch{Hosts: []string{"example.com"}, Path: "/{**catch-all}"}}

	m1 := New([]model.Route{r1, r2})
	m2 := New([]model.Route{r2, r1})

	got1, _ := m1.Match("example.com", 80, "/admin", "GET")
	got2, _ := m2.Match("example.com", 80, "/admin", "GET")
	require.Equal(t, got1.ID, got2.ID)
}

func TestMatchMethodFilter(t *testing.T) {
	routes := []model.Route{
		{ID: "post-only", Match: model.RouteMatch{Path: "/submit", Method: "POST"}},
	}
	m := New(routes)
	_, ok := m.Match("x", 80, "/submit", "GET")
	require.False(t, ok)
	_, ok = m.Match("x", 80, "/submit", "POST")
	require.True(t, ok)
}
