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

// Package geoip resolves client IPs to country names (the first field of
// the region record, e.g. "China") from a binary
// IP2Region-style ".xdb" database: a fixed header, a sparse index of
// super blocks keyed by the first byte of the IP, and a flat region-data
// section holding "country|province|city|isp"-formatted records.
package geoip

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	headerSize     = 256
	superBlockSize = 8 // 2x uint32: byte offset of first and last index entry
	// indexEntrySize is 4 bytes start IP + 4 bytes end IP + a trailing
	// little-endian uint32 packing the region data offset (high 24 bits)
	// and its length (low 8 bits, max 255 bytes per record).
	indexEntrySize   = 12
	superBlockOffset = headerSize
)

// DB is a parsed, memory-resident xdb database. It is safe for concurrent
// read-only lookups once loaded.
type DB struct {
	data []byte
}

// Load reads the whole database file into memory.
func Load(path string) (*DB, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load geoip database %q", path)
	}
	if len(b) < headerSize+superBlockSize*256 {
		return nil, errors.Errorf("geoip database %q is truncated", path)
	}
	return &DB{data: b}, nil
}

// LoadReader parses a database already held in memory, e.g. embedded via
// go:embed.
func LoadReader(r io.Reader) (*DB, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read geoip database")
	}
	return &DB{data: b}, nil
}

// Lookup returns the raw pipe-delimited region record for a big-endian
// uint32 IPv4 address, e.g. "China|Guangdong|Shenzhen|Chinanet".
func (db *DB) Lookup(ip uint32) (string, bool) {
	firstByte := ip >> 24
	superOff := superBlockOffset + int(firstByte)*superBlockSize
	if superOff+superBlockSize > len(db.data) {
		return "", false
	}
	startPos := binary.LittleEndian.Uint32(db.data[superOff : superOff+4])
	endPos := binary.LittleEndian.Uint32(db.data[superOff+4 : superOff+8])
	numEntries := int(endPos-startPos)/indexEntrySize + 1

	low, high := 0, numEntries-1
	for low <= high {
		mid := (low + high) / 2
		entryOff := int(startPos) + mid*indexEntrySize
		if entryOff+indexEntrySize > len(db.data) {
			break
		}
		entryStart := binary.LittleEndian.Uint32(db.data[entryOff : entryOff+4])
		entryEnd := binary.LittleEndian.Uint32(db.data[entryOff+4 : entryOff+8])

		switch {
		case ip < entryStart:
			high = mid - 1
		case ip > entryEnd:
			low = mid + 1
		default:
			packed := binary.LittleEndian.Uint32(db.data[entryOff+8 : entryOff+12])
			dataLen := packed & 0xFF
			dataOff := packed >> 8
			if int(dataOff)+int(dataLen) > len(db.data) {
				return "", false
			}
			return string(db.data[dataOff : dataOff+dataLen]), true
		}
	}
	return "", false
}

// Country extracts just the country field (the first pipe-delimited
// column) for ip, satisfying access.GeoLookup.
func (db *DB) Country(ipStr string) (string, bool) {
	ip, ok := parseIPv4(ipStr)
	if !ok {
		return "", false
	}
	record, ok := db.Lookup(ip)
	if !ok {
		return "", false
	}
	if i := bytes.IndexByte([]byte(record), '|'); i >= 0 {
		return record[:i], true
	}
	return record, true
}
