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

package sync

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/node/blockqueue"
	"github.com/probeum/node/common"
	"github.com/probeum/node/p2p/discover"
	"github.com/probeum/node/p2p/enode"
	"github.com/probeum/node/probedb/memorydb"
)

type noopDiscovery struct{}

func (noopDiscovery) AddDiscoverListener(discover.Listener, discover.Predicate) {}
func (noopDiscovery) GetNodes(discover.Predicate, discover.Comparator, int) []*discover.NodeStatistics {
	return nil
}
func (noopDiscovery) FindByID(enode.ID) (*enode.Node, bool) { return nil, false }

type noopDialer struct{ connected []*enode.Node }

func (d *noopDialer) Connect(n *enode.Node) { d.connected = append(d.connected, n) }

func newTestManager(t *testing.T, localTD int64) *Manager {
	t.Helper()
	q := blockqueue.Open(memorydb.New(), blockqueue.Config{})
	t.Cleanup(func() { q.Close() })
	return NewManager(q, noopDiscovery{}, &noopDialer{}, Config{MaxHashesAsk: 100}, big.NewInt(localTD), nil)
}

func newTestPeer(id byte, td int64) *Peer {
	return NewPeer(common.BytesToNodeID([]byte{id}), common.Hash{}, big.NewInt(td), nil, nil, nil)
}

func TestAddPeerBetterChainFromEmptyState(t *testing.T) {
	m := newTestManager(t, 100)
	p := newTestPeer(1, 500)

	m.AddPeer(p)

	assert.Equal(t, HASH_RETRIEVING, m.State())
	assert.Equal(t, p, m.Master())
	assert.Equal(t, HASH_RETRIEVING, p.SyncState())
	assert.True(t, m.queue.HashStore().IsEmpty())
	assert.Equal(t, []PeerHandle{p}, m.Peers())
}

func TestAddPeerWithinRangeDuringBlockRetrieving(t *testing.T) {
	m := newTestManager(t, 100)
	m.queue.HashStore().SetHighestTotalDifficulty(big.NewInt(1000))
	m.mu.Lock()
	m.state = BLOCK_RETRIEVING
	m.mu.Unlock()

	p := newTestPeer(2, 1050) // within 20% of 1000

	m.AddPeer(p)

	assert.Equal(t, BLOCK_RETRIEVING, m.State())
	assert.Equal(t, BLOCK_RETRIEVING, p.SyncState())
	assert.Len(t, m.Peers(), 1)
}

func TestAddPeerRejectedForInsufficientDifficulty(t *testing.T) {
	m := newTestManager(t, 100)
	p := newTestPeer(3, 50)

	m.AddPeer(p)

	assert.Empty(t, m.Peers())
	assert.Equal(t, INIT, m.State())
}

func TestAddPeerNoOpWhenDoneSync(t *testing.T) {
	m := newTestManager(t, 100)
	m.mu.Lock()
	m.state = DONE_SYNC
	m.mu.Unlock()

	p := newTestPeer(4, 500)
	m.AddPeer(p)

	assert.Empty(t, m.Peers())
}

func TestRecoverGapSmallPushesParentHash(t *testing.T) {
	m := newTestManager(t, 100)
	m.SetBestBlockNumber(10)

	wrapper := &blockqueue.BlockWrapper{
		Number:     13,
		Hash:       common.BytesToHash([]byte{13}),
		ParentHash: common.BytesToHash([]byte{12}),
		ReceivedAt: time.Now(),
	}
	m.RecoverGap(wrapper)

	assert.Equal(t, INIT, m.State())
	h, ok := m.queue.HashStore().PopFront()
	require.True(t, ok)
	assert.Equal(t, wrapper.ParentHash, h)
}

func TestRecoverGapAtThresholdStillSmall(t *testing.T) {
	m := newTestManager(t, 100)
	m.SetBestBlockNumber(10)

	wrapper := &blockqueue.BlockWrapper{
		Number:     15, // gap == LargeGapThreshold (5), boundary: must NOT trigger GAP_RECOVERY
		ParentHash: common.BytesToHash([]byte{14}),
	}
	m.RecoverGap(wrapper)

	assert.Equal(t, INIT, m.State())
	assert.False(t, m.queue.HashStore().IsEmpty())
}

func TestRecoverGapLargeTransitionsToGapRecovery(t *testing.T) {
	m := newTestManager(t, 100)
	m.SetBestBlockNumber(10)
	master := newTestPeer(9, 900)
	m.peers = append(m.peers, master)

	wrapper := &blockqueue.BlockWrapper{
		Number: 20, // gap == 10 > LargeGapThreshold
		Hash:   common.BytesToHash([]byte{20}),
	}
	m.RecoverGap(wrapper)

	assert.Equal(t, GAP_RECOVERY, m.State())
	assert.Equal(t, 10, m.maxHashesAsk)
	assert.Equal(t, wrapper.Hash, m.bestHash)
	assert.Equal(t, master, m.Master())
	assert.Equal(t, HASH_RETRIEVING, master.SyncState())
}

func TestRecoverGapLargeCapsAtConfiguredMax(t *testing.T) {
	m := newTestManager(t, 100)
	m.cfg.MaxHashesAsk = 4
	m.SetBestBlockNumber(10)

	wrapper := &blockqueue.BlockWrapper{Number: 20}
	m.RecoverGap(wrapper)

	assert.Equal(t, 4, m.maxHashesAsk)
}

func TestNotifyNewBlockImportedWithinThresholdDoneSync(t *testing.T) {
	m := newTestManager(t, 100)
	p := newTestPeer(5, 500)
	m.peers = append(m.peers, p)

	var doneCalled bool
	m.SetOnSyncDoneListener(func() { doneCalled = true })

	wrapper := &blockqueue.BlockWrapper{ReceivedAt: time.Now()}
	m.NotifyNewBlockImported(wrapper)

	assert.Equal(t, DONE_SYNC, m.State())
	assert.Equal(t, DONE_SYNC, p.SyncState())
	assert.True(t, doneCalled)
}

func TestNotifyNewBlockImportedTooOldNoChange(t *testing.T) {
	m := newTestManager(t, 100)
	wrapper := &blockqueue.BlockWrapper{ReceivedAt: time.Now().Add(-2 * TimeToImportThreshold)}

	m.NotifyNewBlockImported(wrapper)

	assert.Equal(t, INIT, m.State())
}

func TestCheckPeersPromotesIdlePeersWhenHashStoreNonEmptyDuringBlockRetrieving(t *testing.T) {
	m := newTestManager(t, 100)
	m.mu.Lock()
	m.state = BLOCK_RETRIEVING
	m.mu.Unlock()
	m.queue.HashStore().PushBack(common.BytesToHash([]byte{1}))

	p := newTestPeer(6, 500)
	m.peers = append(m.peers, p)

	m.checkPeers()

	assert.Equal(t, BLOCK_RETRIEVING, p.SyncState())
}

func TestCheckPeersDropsPeersWithNoMoreBlocks(t *testing.T) {
	m := newTestManager(t, 100)
	p := newTestPeer(7, 500)
	p.SetHasNoMoreBlocks(true)
	m.peers = append(m.peers, p)

	m.checkPeers()

	assert.Empty(t, m.Peers())
	assert.Equal(t, IDLE, p.SyncState())
	assert.Equal(t, int64(500), m.lowerUsefulDifficulty.Load().Int64())
}

func TestWithinRangeBoundary(t *testing.T) {
	assert.True(t, withinRange(big.NewInt(1000), big.NewInt(1200)))
	assert.False(t, withinRange(big.NewInt(1000), big.NewInt(1500)))
}
