// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package common

import (
	"encoding/hex"
	"fmt"
)

const (
	HashLength   = 32
	NodeIDLength = 64
)

// Hash represents a 32 byte block or transaction hash.
type Hash [HashLength]byte

func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) IsZero() bool { return h == Hash{} }

// NodeID is the 64 byte identifier a peer advertises over the discovery and
// RLPx handshake protocols. It is treated as an opaque value by the sync
// core; only equality and hex rendering are needed here.
type NodeID [NodeIDLength]byte

func BytesToNodeID(b []byte) NodeID {
	var id NodeID
	copy(id[:], b)
	return id
}

func (id NodeID) Bytes() []byte { return id[:] }

// String renders the node id the way the rest of this corpus logs peer ids:
// a short hex prefix, not the full 128 hex characters.
func (id NodeID) String() string {
	return fmt.Sprintf("%x", id[:8])
}

func (id NodeID) Hex() string { return hex.EncodeToString(id[:]) }
