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

package listener

import (
	"bufio"
	"net"
)

// Protocol is what sniffConn.Sniff determined the first bytes of a
// connection to be.
type Protocol int

const (
	// ProtocolUnknown means the sniff couldn't classify the connection;
	// callers should treat it as plain HTTP.
	ProtocolUnknown Protocol = iota
	ProtocolTLS
	ProtocolHTTP
)

// sniffConn wraps a net.Conn with a buffered reader so the first bytes
// read to classify the protocol are still visible to whatever handler
// takes over afterwards.
type sniffConn struct {
	net.Conn
	r *bufio.Reader
}

func newSniffConn(c net.Conn) *sniffConn {
	return &sniffConn{Conn: c, r: bufio.NewReader(c)}
}

func (c *sniffConn) Read(p []byte) (int, error) { return c.r.Read(p) }

// Sniff peeks the first few bytes of the connection without consuming
// them from the eventual handler's point of view, classifying the
// connection as TLS (a ClientHello record header) or plain HTTP.
func (c *sniffConn) Sniff() (Protocol, error) {
	b, err := c.r.Peek(1)
	if err != nil {
		return ProtocolUnknown, err
	}
	// TLS record type 0x16 is a Handshake record; every ClientHello begins
	// with one regardless of TLS version.
	if b[0] == 0x16 {
		return ProtocolTLS, nil
	}
	return ProtocolHTTP, nil
}
