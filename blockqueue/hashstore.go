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
	"math/big"
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/probeum/node/common"
)

// HashStore is the auxiliary, in-memory, ordered store of block hashes a
// hash-retrieval round has collected but not yet turned into block
// requests. It is a companion of the queue rather than a peer of it; the
// queue hands one out via Queue.HashStore so SyncManager never has to open
// its own.
type HashStore struct {
	mu        sync.Mutex
	order     []common.Hash // FIFO order, oldest-to-fetch first
	seen      mapset.Set    // membership mirror for O(1) has()
	highestTD *big.Int      // highest total difficulty observed this round, nil if unknown
}

func NewHashStore() *HashStore {
	return &HashStore{seen: mapset.NewSet()}
}

// PushBack appends a hash discovered during ordinary hash retrieval.
func (hs *HashStore) PushBack(h common.Hash) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.seen.Contains(h) {
		return
	}
	hs.order = append(hs.order, h)
	hs.seen.Add(h)
}

// PushFront inserts a hash ahead of everything already pending, used by gap
// recovery to prioritize a missing parent.
func (hs *HashStore) PushFront(h common.Hash) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.seen.Contains(h) {
		return
	}
	hs.order = append([]common.Hash{h}, hs.order...)
	hs.seen.Add(h)
}

// PopFront removes and returns the next hash to fetch, if any.
func (hs *HashStore) PopFront() (common.Hash, bool) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if len(hs.order) == 0 {
		return common.Hash{}, false
	}
	h := hs.order[0]
	hs.order = hs.order[1:]
	hs.seen.Remove(h)
	return h, true
}

func (hs *HashStore) Size() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return len(hs.order)
}

func (hs *HashStore) IsEmpty() bool { return hs.Size() == 0 }

// Clear drops every pending hash, the reset SyncManager performs on a
// transition into HASH_RETRIEVING (not on the one from INIT that resumes an
// interrupted sync straight into BLOCK_RETRIEVING). The remembered highest total difficulty
// is a property of the round's master election, not of the pending-hash
// backlog, and survives a Clear; callers that want it reset call
// SetHighestTotalDifficulty explicitly.
func (hs *HashStore) Clear() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.order = nil
	hs.seen = mapset.NewSet()
}

// HighestTotalDifficulty returns the highest total difficulty observed
// across admitted peers this round, or nil if none has been recorded.
func (hs *HashStore) HighestTotalDifficulty() *big.Int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.highestTD
}

func (hs *HashStore) SetHighestTotalDifficulty(td *big.Int) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.highestTD = td
}
