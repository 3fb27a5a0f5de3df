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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/node/common"
	"github.com/probeum/node/probedb/memorydb"
)

func wrapper(number uint64) *BlockWrapper {
	return &BlockWrapper{
		Number:     number,
		Hash:       common.BytesToHash([]byte{byte(number)}),
		ParentHash: common.BytesToHash([]byte{byte(number - 1)}),
		ReceivedAt: time.Now(),
	}
}

func TestQueueDrainsInAscendingOrder(t *testing.T) {
	q := Open(memorydb.New(), Config{})
	defer q.Close()

	require.NoError(t, q.AddAll([]*BlockWrapper{wrapper(5), wrapper(3), wrapper(7), wrapper(3)}))
	assert.Equal(t, 3, q.Size(), "duplicate number 3 must collapse to one entry")

	var order []uint64
	for {
		bw, err := q.Poll()
		require.NoError(t, err)
		if bw == nil {
			break
		}
		order = append(order, bw.Number)
	}
	assert.Equal(t, []uint64{3, 5, 7}, order)
}

func TestQueueAddIsIdempotentByNumber(t *testing.T) {
	q := Open(memorydb.New(), Config{})
	defer q.Close()

	require.NoError(t, q.Add(wrapper(1)))
	require.NoError(t, q.Add(wrapper(1)))
	assert.Equal(t, 1, q.Size())
}

func TestQueueTakeBlocksUntilAvailable(t *testing.T) {
	q := Open(memorydb.New(), Config{})
	defer q.Close()

	result := make(chan *BlockWrapper, 1)
	go func() {
		bw, err := q.Take(context.Background())
		require.NoError(t, err)
		result <- bw
	}()

	select {
	case <-result:
		t.Fatal("Take returned before any block was added")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Add(wrapper(42)))

	select {
	case bw := <-result:
		assert.EqualValues(t, 42, bw.Number)
	case <-time.After(time.Second):
		t.Fatal("Take did not unblock after Add")
	}
}

func TestQueueTakeRespectsContextCancellation(t *testing.T) {
	q := Open(memorydb.New(), Config{})
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Take(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Take did not unblock on context cancellation")
	}
}

func TestQueuePersistsAcrossReopen(t *testing.T) {
	db := memorydb.New()

	q := Open(db, Config{})
	want := wrapper(1)
	require.NoError(t, q.AddAll([]*BlockWrapper{want, wrapper(2), wrapper(3)}))
	require.NoError(t, q.Close())

	q2 := Open(db.Reopen(), Config{})
	defer q2.Close()
	assert.Equal(t, 3, q2.Size())
	assert.True(t, q2.SyncWasInterrupted(), "reopening with pending blocks must report an interrupted sync")

	bw, err := q2.Poll()
	require.NoError(t, err)
	assert.EqualValues(t, 1, bw.Number)
	assert.Equal(t, want.Hash, bw.Hash, "hash must round-trip through the RLP encoding intact")
	assert.Equal(t, want.ParentHash, bw.ParentHash, "parent hash must round-trip through the RLP encoding intact")
}

func TestQueueDatabaseResetDropsPriorState(t *testing.T) {
	db := memorydb.New()

	q := Open(db, Config{})
	require.NoError(t, q.Add(wrapper(1)))
	require.NoError(t, q.Close())

	q2 := Open(db.Reopen(), Config{DatabaseReset: true})
	defer q2.Close()
	assert.Equal(t, 0, q2.Size())
	assert.False(t, q2.SyncWasInterrupted())
}

func TestQueueFilterExisting(t *testing.T) {
	q := Open(memorydb.New(), Config{})
	defer q.Close()

	bw := wrapper(9)
	require.NoError(t, q.Add(bw))

	other := common.BytesToHash([]byte{200})
	missing := q.FilterExisting([]common.Hash{bw.Hash, other})
	assert.Equal(t, []common.Hash{other}, missing)
}

func TestQueueClearRemovesEverything(t *testing.T) {
	q := Open(memorydb.New(), Config{})
	defer q.Close()

	require.NoError(t, q.AddAll([]*BlockWrapper{wrapper(1), wrapper(2)}))
	require.NoError(t, q.Clear())
	assert.True(t, q.IsEmpty())
	assert.Empty(t, q.GetHashes())
}

func TestQueueOperationsFailAfterClose(t *testing.T) {
	q := Open(memorydb.New(), Config{})
	require.NoError(t, q.Close())

	err := q.Add(wrapper(1))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHashStoreOrderingAndDedup(t *testing.T) {
	hs := NewHashStore()
	a := common.BytesToHash([]byte{1})
	b := common.BytesToHash([]byte{2})
	c := common.BytesToHash([]byte{3})

	hs.PushBack(a)
	hs.PushBack(b)
	hs.PushBack(a) // duplicate, ignored
	hs.PushFront(c)

	assert.Equal(t, 3, hs.Size())

	first, ok := hs.PopFront()
	require.True(t, ok)
	assert.Equal(t, c, first)

	second, ok := hs.PopFront()
	require.True(t, ok)
	assert.Equal(t, a, second)

	hs.Clear()
	assert.True(t, hs.IsEmpty())
	assert.Nil(t, hs.HighestTotalDifficulty())
}
