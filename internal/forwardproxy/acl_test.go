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

package forwardproxy

import "testing"

func TestHostACLEmptyAllowlistPermitsAnything(t *testing.T) {
	acl := HostACL{}
	if !acl.Allowed("anything.example.com") {
		t.Fatal("expected empty allowlist to permit any host")
	}
}

func TestHostACLDenyTakesPrecedenceOverAllow(t *testing.T) {
	acl := HostACL{Allow: []string{"*.example.com"}, Deny: []string{"blocked.example.com"}}
	if acl.Allowed("blocked.example.com") {
		t.Fatal("expected deny to win over allow")
	}
	if !acl.Allowed("ok.example.com") {
		t.Fatal("expected non-denied subdomain to be allowed")
	}
}

func TestHostACLWildcardRequiresSubdomain(t *testing.T) {
	acl := HostACL{Allow: []string{"*.example.com"}}
	if acl.Allowed("example.com") {
		t.Fatal("bare domain should not match a *.suffix wildcard")
	}
	if !acl.Allowed("api.example.com") {
		t.Fatal("subdomain should match the wildcard")
	}
}

func TestHostACLLiteralMatchCaseInsensitive(t *testing.T) {
	acl := HostACL{Allow: []string{"Example.COM"}}
	if !acl.Allowed("example.com") {
		t.Fatal("literal match should be case-insensitive")
	}
}

func TestCredentialsCheckBasic(t *testing.T) {
	c := Credentials{Username: "alice", Password: "s3cret", Required: true}
	if !c.CheckBasic("Basic YWxpY2U6czNjcmV0") { // alice:s3cret
		t.Fatal("expected valid basic credentials to pass")
	}
	if c.CheckBasic("Basic d3Jvbmc6Y3JlZHM=") { // wrong:creds
		t.Fatal("expected invalid basic credentials to fail")
	}
	if c.CheckBasic("") {
		t.Fatal("expected missing header to fail when auth is required")
	}
}

func TestCredentialsNotRequiredAlwaysPasses(t *testing.T) {
	c := Credentials{Required: false}
	if !c.CheckBasic("") {
		t.Fatal("expected auth to be skipped when not required")
	}
}
