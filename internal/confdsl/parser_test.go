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

package confdsl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBasicSite(t *testing.T) {
	src := `
example.com {
	reverse_proxy 127.0.0.1:9001
	file_server /srv
}
`
	nodes, err := Parse(src, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	site := nodes[0]
	require.Equal(t, "example.com", site.Key)
	require.Len(t, site.Children, 2)
	require.Equal(t, "reverse_proxy", site.Children[0].Key)
	require.Equal(t, "127.0.0.1:9001", site.Children[0].Arg(0))
}

func TestParseVariableSubstitution(t *testing.T) {
	src := `
var backend = 127.0.0.1:9001
example.com {
	reverse_proxy ${backend}
}
`
	nodes, err := Parse(src, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	rp := nodes[0].FindOne("reverse_proxy")
	require.NotNil(t, rp)
	require.Equal(t, "127.0.0.1:9001", rp.Arg(0))
}

func TestParseImport(t *testing.T) {
	files := map[string]string{
		"snippets/common.conf": "gzip on\n",
	}
	importer := func(path string) (string, error) { return files[path], nil }

	src := `
example.com {
	import snippets/common.conf
}
`
	nodes, err := Parse(src, importer)
	require.NoError(t, err)
	gzip := nodes[0].FindOne("gzip")
	require.NotNil(t, gzip)
	require.Equal(t, "on", gzip.Arg(0))
}

func TestParseIfElse(t *testing.T) {
	src := `
var env = prod
if $env == prod {
	listen 443
} else {
	listen 8443
}
`
	nodes, err := Parse(src, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "listen", nodes[0].Key)
	require.Equal(t, "443", nodes[0].Arg(0))
}

func TestParseIfElseFalseBranch(t *testing.T) {
	src := `
var env = dev
if $env == prod {
	listen 443
} else {
	listen 8443
}
`
	nodes, err := Parse(src, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "8443", nodes[0].Arg(0))
}

func TestParseDuplicateKeysRemainSiblings(t *testing.T) {
	src := `
example.com {
	listen 80
	listen 443
}
`
	nodes, err := Parse(src, nil)
	require.NoError(t, err)
	listens := nodes[0].Find("listen")
	require.Len(t, listens, 2)
}

func TestParseQuotedStringEscapes(t *testing.T) {
	src := "respond \"line one\\nline two\"\n"
	nodes, err := Parse(src, nil)
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", nodes[0].Arg(0))
}

func TestParseSyntaxErrorReportsLine(t *testing.T) {
	src := "example.com {\n  listen 80\n"
	_, err := Parse(src, nil)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseComment(t *testing.T) {
	src := "# a comment\nlisten 80\n"
	nodes, err := Parse(src, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "listen", nodes[0].Key)
}
