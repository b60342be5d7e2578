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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTestDB constructs a minimal synthetic xdb buffer covering a single
// IPv4 range with one region record, enough to exercise Lookup's super
// block and index search without a real MaxMind/IP2Region download.
func buildTestDB(t *testing.T, startIP, endIP uint32, record string) *DB {
	t.Helper()

	region := []byte(record)
	indexOff := uint32(headerSize + 256*superBlockSize)

	buf := make([]byte, indexOff+indexEntrySize+uint32(len(region)))

	for b := 0; b < 256; b++ {
		off := headerSize + b*superBlockSize
		binary.LittleEndian.PutUint32(buf[off:], indexOff)
		binary.LittleEndian.PutUint32(buf[off+4:], indexOff)
	}

	dataOff := indexOff + indexEntrySize
	binary.LittleEndian.PutUint32(buf[indexOff:], startIP)
	binary.LittleEndian.PutUint32(buf[indexOff+4:], endIP)

	ptrAndLen := dataOff<<8 | uint32(len(region))
	binary.LittleEndian.PutUint32(buf[indexOff+8:], ptrAndLen)

	copy(buf[dataOff:], region)

	return &DB{data: buf}
}

func TestDBLookupFindsContainingRange(t *testing.T) {
	start, _ := parseIPv4("1.0.0.0")
	end, _ := parseIPv4("1.0.0.255")
	db := buildTestDB(t, start, end, "China|Guangdong|Shenzhen|Chinanet")

	record, ok := db.Lookup(mustIPv4(t, "1.0.0.42"))
	require.True(t, ok)
	require.True(t, bytes.HasPrefix([]byte(record), []byte("China|")))
}

func TestDBCountryExtractsFirstField(t *testing.T) {
	start, _ := parseIPv4("1.0.0.0")
	end, _ := parseIPv4("1.0.0.255")
	db := buildTestDB(t, start, end, "China|Guangdong|Shenzhen|Chinanet")

	country, ok := db.Country("1.0.0.1")
	require.True(t, ok)
	require.Equal(t, "China", country)
}

func TestDBCountryMissOutsideRange(t *testing.T) {
	start, _ := parseIPv4("1.0.0.0")
	end, _ := parseIPv4("1.0.0.255")
	db := buildTestDB(t, start, end, "China|Guangdong|Shenzhen|Chinanet")

	_, ok := db.Country("2.2.2.2")
	require.False(t, ok)
}

func TestCachedLookupServesFromCacheOnSecondCall(t *testing.T) {
	start, _ := parseIPv4("1.0.0.0")
	end, _ := parseIPv4("1.0.0.255")
	db := buildTestDB(t, start, end, "China|Guangdong|Shenzhen|Chinanet")

	cached, err := NewCachedLookup(db, 16)
	require.NoError(t, err)

	country, ok := cached.Country("1.0.0.1")
	require.True(t, ok)
	require.Equal(t, "China", country)

	country, ok = cached.Country("1.0.0.1")
	require.True(t, ok)
	require.Equal(t, "China", country)
}

func mustIPv4(t *testing.T, s string) uint32 {
	t.Helper()
	v, ok := parseIPv4(s)
	require.True(t, ok)
	return v
}
