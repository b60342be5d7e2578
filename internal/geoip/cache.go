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

package geoip

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedLookup wraps a DB with a bounded LRU of recent IP-to-country
// lookups, since the same client IPs tend to repeat across a burst of
// requests and the binary search in DB.Lookup is the hot path for every
// geo-controlled route.
type CachedLookup struct {
	db    *DB
	cache *lru.Cache[string, string]
}

// NewCachedLookup wraps db with an LRU of the given capacity.
func NewCachedLookup(db *DB, size int) (*CachedLookup, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &CachedLookup{db: db, cache: c}, nil
}

// Country resolves ip's country, consulting the cache before the
// underlying database.
func (c *CachedLookup) Country(ip string) (string, bool) {
	if v, ok := c.cache.Get(ip); ok {
		if v == "" {
			return "", false
		}
		return v, true
	}
	country, ok := c.db.Country(ip)
	if ok {
		c.cache.Add(ip, country)
	} else {
		c.cache.Add(ip, "")
	}
	return country, ok
}
