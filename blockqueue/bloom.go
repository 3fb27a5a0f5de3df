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

package blockqueue

import (
	"encoding/binary"
	"hash"

	"github.com/probeum/node/common"
)

// hash64 adapts a block hash's first 8 bytes to the hash.Hash64 interface
// holiman/bloomfilter/v2 expects, so the queue doesn't need to pull in a
// general-purpose hashing package just to probe membership.
type hash64 uint64

func newHash64(h common.Hash) hash64 {
	return hash64(binary.BigEndian.Uint64(h[:8]))
}

func (h hash64) Sum64() uint64                 { return uint64(h) }
func (h hash64) Write(p []byte) (int, error)   { return len(p), nil }
func (h hash64) Sum(b []byte) []byte           { return b }
func (h hash64) Reset()                        {}
func (h hash64) Size() int                     { return 8 }
func (h hash64) BlockSize() int                { return 8 }

var _ hash.Hash64 = hash64(0)
