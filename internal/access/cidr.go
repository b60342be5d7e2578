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

// Package access implements IP allow/deny (CIDR), geo-based control,
// per-path overrides and connection counting.
package access

import (
	"net"
	"strings"

	"github.com/pkg/errors"
)

// CIDR is a pre-parsed IP prefix. Membership is a bitwise-AND comparison
// over the canonical (IPv4-mapped-IPv6-folded) address.
type CIDR struct {
	network *net.IPNet
	raw     string
}

// ParseCIDR parses s ("1.2.3.0/24", "::1/128", or a bare IP treated as a
// /32 or /128) into a CIDR.
func ParseCIDR(s string) (CIDR, error) {
	if !strings.Contains(s, "/") {
		ip := net.ParseIP(s)
		if ip == nil {
			return CIDR{}, errors.Errorf("invalid address %q", s)
		}
		if ip.To4() != nil {
			s += "/32"
		} else {
			s += "/128"
		}
	}
	_, network, err := net.ParseCIDR(s)
	if err != nil {
		return CIDR{}, errors.Wrapf(err, "invalid CIDR %q", s)
	}
	return CIDR{network: network, raw: s}, nil
}

// Contains reports whether ip falls inside c, equating ::ffff:a.b.c.d with
// a.b.c.d per the spec.
func (c CIDR) Contains(ip net.IP) bool {
	return c.network.Contains(canonical(ip))
}

func canonical(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// String returns the CIDR's canonical textual form.
func (c CIDR) String() string { return c.raw }

// CIDRSet is a list of CIDRs tested with a single membership query.
type CIDRSet []CIDR

// ParseCIDRSet parses every entry in ss, failing on the first invalid one.
func ParseCIDRSet(ss []string) (CIDRSet, error) {
	out := make(CIDRSet, 0, len(ss))
	for _, s := range ss {
		c, err := ParseCIDR(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Contains reports whether ip is inside any CIDR in the set.
func (s CIDRSet) Contains(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, c := range s {
		if c.Contains(ip) {
			return true
		}
	}
	return false
}
