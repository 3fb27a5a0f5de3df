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
	"time"

	"github.com/probeum/node/common"
)

// BlockWrapper is a pending block awaiting import, keyed in the queue by
// its Number. IsNewBlock distinguishes a block that arrived via a NewBlock
// broadcast from one derived while draining a hash-retrieval sync.
type BlockWrapper struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	IsNewBlock bool
	ReceivedAt time.Time
}

// TimeSinceReceiving reports how long ago this wrapper was received.
func (bw *BlockWrapper) TimeSinceReceiving() time.Duration {
	return time.Since(bw.ReceivedAt)
}

// rlpBlockWrapper is the on-disk shape of BlockWrapper: time.Time doesn't
// round-trip through the RLP encoder, so it is persisted as a unix-nano
// integer instead.
type rlpBlockWrapper struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	IsNewBlock   bool
	ReceivedAtNs int64
}

func toRLP(bw *BlockWrapper) *rlpBlockWrapper {
	return &rlpBlockWrapper{
		Number:       bw.Number,
		Hash:         bw.Hash,
		ParentHash:   bw.ParentHash,
		IsNewBlock:   bw.IsNewBlock,
		ReceivedAtNs: bw.ReceivedAt.UnixNano(),
	}
}

func (r *rlpBlockWrapper) toWrapper() *BlockWrapper {
	return &BlockWrapper{
		Number:     r.Number,
		Hash:       r.Hash,
		ParentHash: r.ParentHash,
		IsNewBlock: r.IsNewBlock,
		ReceivedAt: time.Unix(0, r.ReceivedAtNs),
	}
}
