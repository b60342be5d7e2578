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

import "strings"

// HostACL gates which upstream hosts the proxy will dial. The blocklist
// always wins over the allowlist; an empty allowlist means any host not
// on the blocklist is permitted.
type HostACL struct {
	Allow []string
	Deny  []string
}

// Allowed reports whether host may be proxied to under the ACL.
func (a HostACL) Allowed(host string) bool {
	if matchesAny(a.Deny, host) {
		return false
	}
	if len(a.Allow) == 0 {
		return true
	}
	return matchesAny(a.Allow, host)
}

func matchesAny(patterns []string, host string) bool {
	for _, p := range patterns {
		if hostMatchesPattern(p, host) {
			return true
		}
	}
	return false
}

func hostMatchesPattern(pattern, host string) bool {
	pattern = strings.ToLower(pattern)
	host = strings.ToLower(host)
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		return strings.HasSuffix(host, suffix) && host != suffix[1:]
	}
	return pattern == host
}
