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

package channel

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeum/node/blockqueue"
	"github.com/probeum/node/common"
	"github.com/probeum/node/p2p/discover"
	"github.com/probeum/node/p2p/enode"
	"github.com/probeum/node/probedb/memorydb"
	syncpkg "github.com/probeum/node/sync"
)

type stubDiscovery struct{ nodes map[enode.ID]*enode.Node }

func (d *stubDiscovery) AddDiscoverListener(discover.Listener, discover.Predicate) {}
func (d *stubDiscovery) GetNodes(discover.Predicate, discover.Comparator, int) []*discover.NodeStatistics {
	return nil
}
func (d *stubDiscovery) FindByID(id enode.ID) (*enode.Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

type stubDialer struct{ connected []*enode.Node }

func (d *stubDialer) Connect(n *enode.Node) { d.connected = append(d.connected, n) }

func newTestSyncManager(t *testing.T) *syncpkg.Manager {
	t.Helper()
	q := blockqueue.Open(memorydb.New(), blockqueue.Config{})
	t.Cleanup(func() { q.Close() })
	return syncpkg.NewManager(q, noopDiscoveryForSync{}, noopDialerForSync{}, syncpkg.Config{MaxHashesAsk: 100}, big.NewInt(100), nil)
}

type noopDiscoveryForSync struct{}

func (noopDiscoveryForSync) AddDiscoverListener(discover.Listener, discover.Predicate) {}
func (noopDiscoveryForSync) GetNodes(discover.Predicate, discover.Comparator, int) []*discover.NodeStatistics {
	return nil
}
func (noopDiscoveryForSync) FindByID(enode.ID) (*enode.Node, bool) { return nil, false }

type noopDialerForSync struct{}

func (noopDialerForSync) Connect(*enode.Node) {}

func newTestChannel(id byte, td int64) (*Channel, *syncpkg.Peer) {
	peer := syncpkg.NewPeer(common.BytesToNodeID([]byte{id}), common.Hash{}, big.NewInt(td), nil, nil, nil)
	remoteID := peer.PeerID().Hex()
	return NewChannel(peer, remoteID), peer
}

func TestAddChannelGoesToNewPeers(t *testing.T) {
	m := NewManager(newTestSyncManager(t), &stubDiscovery{}, &stubDialer{}, nil)
	c, _ := newTestChannel(1, 500)

	m.AddChannel(c)

	assert.Equal(t, 1, m.newPeers.Len())
	assert.Equal(t, 0, m.activePeers.Len())
}

func TestProcessNewPeersPromotesUsefulSucceededChannels(t *testing.T) {
	sm := newTestSyncManager(t)
	m := NewManager(sm, &stubDiscovery{}, &stubDialer{}, nil)

	c, peer := newTestChannel(2, 500)
	peer.SetInitPassed(true)
	peer.SetUseful(true)
	peer.SetHandshakeStatus(syncpkg.Status{TotalDifficulty: big.NewInt(500)})
	m.AddChannel(c)

	notUseful, _ := newTestChannel(3, 10)
	notUseful.Peer().(*syncpkg.Peer).SetInitPassed(true)
	m.AddChannel(notUseful)

	m.processNewPeers()

	assert.Equal(t, 0, m.newPeers.Len(), "every init-passed channel is removed from new_peers regardless of usefulness")
	assert.Equal(t, 1, m.activePeers.Len())
	assert.Equal(t, c, m.activePeers.Snapshot()[0])
	assert.Len(t, sm.Peers(), 1)
}

func TestSendTransactionBroadcastsToActivePeersOnly(t *testing.T) {
	m := NewManager(newTestSyncManager(t), &stubDiscovery{}, &stubDialer{}, nil)
	active, _ := newTestChannel(4, 500)
	m.activePeers.Add(active)
	pending, _ := newTestChannel(5, 500)
	m.newPeers.Add(pending)

	var sent []interface{}
	active.peer = recordingPeer{active.peer, &sent}

	m.SendTransaction("tx1")

	assert.Equal(t, []interface{}{"tx1"}, sent)
}

type recordingPeer struct {
	syncpkg.PeerHandle
	sent *[]interface{}
}

func (r recordingPeer) SendTransaction(tx interface{}) { *r.sent = append(*r.sent, tx) }

func TestReconnectThenDropScenario(t *testing.T) {
	sm := newTestSyncManager(t)
	node := enode.NewNode(common.BytesToNodeID([]byte{0xAA}), "10.0.0.1:30303")
	disc := &stubDiscovery{nodes: map[enode.ID]*enode.Node{node.ID(): node}}
	dialer := &stubDialer{}
	m := NewManager(sm, disc, dialer, nil)

	c, peer := newTestChannel(0xAA, 500)
	remoteID := peer.PeerID().Hex()
	m.activePeers.Add(c)
	sm.AddPeer(peer)

	m.NotifyDisconnect(c)
	assert.True(t, m.disconnectedIDs.Contains(remoteID))

	m.processReconnects()
	assert.True(t, m.reconnectedIDs.Contains(remoteID))
	assert.Equal(t, 0, m.disconnectedIDs.Cardinality())
	require.Len(t, dialer.connected, 1)
	assert.Equal(t, node, dialer.connected[0])

	c2, _ := newTestChannel(0xAA, 500)
	m.activePeers.Add(c2)
	m.NotifyDisconnect(c2)

	assert.Equal(t, 0, m.reconnectedIDs.Cardinality())
	assert.Equal(t, 0, m.disconnectedIDs.Cardinality())
}
