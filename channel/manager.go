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
	"context"
	"encoding/hex"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"golang.org/x/sync/errgroup"

	"github.com/probeum/node/common"
	"github.com/probeum/node/log"
	"github.com/probeum/node/p2p/discover"
	syncpkg "github.com/probeum/node/sync"
)

const (
	mainWorkerPeriod      = 1 * time.Second
	reconnectWorkerPeriod = 5 * time.Second
)

// Manager supervises every peer channel: new_peers (still handshaking) and
// active_peers (handed to the sync core), plus reconnect bookkeeping after
// disconnects.
type Manager struct {
	sync      *syncpkg.Manager
	discovery discover.Service
	dialer    syncpkg.Dialer
	log       log.Logger

	newPeers    peerList
	activePeers peerList

	idsMu            sync.Mutex
	disconnectedIDs  mapset.Set
	reconnectedIDs   mapset.Set

	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewManager(sm *syncpkg.Manager, discovery discover.Service, dialer syncpkg.Dialer, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.New("component", "channel")
	}
	return &Manager{
		sync:            sm,
		discovery:       discovery,
		dialer:          dialer,
		log:             logger,
		disconnectedIDs: mapset.NewSet(),
		reconnectedIDs:  mapset.NewSet(),
	}
}

// AddChannel registers a freshly created channel as not-yet-handshaked.
func (m *Manager) AddChannel(c *Channel) {
	m.newPeers.Add(c)
}

// SendTransaction broadcasts tx to every active channel.
func (m *Manager) SendTransaction(tx interface{}) {
	for _, c := range m.activePeers.Snapshot() {
		c.SendTransaction(tx)
	}
}

// NotifyDisconnect is spec.md §4.2's disconnect handler.
func (m *Manager) NotifyDisconnect(c *Channel) {
	if !m.activePeers.Remove(c) {
		return // handshake never completed; channel was never active
	}
	c.OnDisconnect()
	m.sync.RemovePeer(c.Peer())

	m.idsMu.Lock()
	defer m.idsMu.Unlock()
	if m.reconnectedIDs.Contains(c.RemoteID()) {
		m.reconnectedIDs.Remove(c.RemoteID())
		m.log.Debug("Peer disconnected a second time, dropping", "id", c.RemoteID())
		return
	}
	m.disconnectedIDs.Add(c.RemoteID())
}

func (m *Manager) runMainWorker(ctx context.Context) error {
	ticker := time.NewTicker(mainWorkerPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.processNewPeers()
		}
	}
}

func (m *Manager) processNewPeers() {
	initPassed := m.newPeers.RemoveAll(func(c *Channel) bool { return c.HasInitPassed() })
	for _, c := range initPassed {
		if c.IsUseful() && c.HasStatusSucceeded() {
			m.sync.AddPeer(c.Peer())
			m.activePeers.Add(c)
		}
	}
}

func (m *Manager) runReconnectWorker(ctx context.Context) error {
	ticker := time.NewTicker(reconnectWorkerPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.processReconnects()
		}
	}
}

func (m *Manager) processReconnects() {
	m.idsMu.Lock()
	pending := m.disconnectedIDs
	m.disconnectedIDs = mapset.NewSet()
	m.idsMu.Unlock()

	for raw := range pending.Iter() {
		remoteID := raw.(string)
		if id, ok := hexToNodeID(remoteID); ok {
			if node, found := m.discovery.FindByID(id); found {
				m.dialer.Connect(node)
			} else {
				m.log.Debug("Cannot locate node for reconnect", "id", remoteID)
			}
		}
	}

	m.idsMu.Lock()
	m.reconnectedIDs = m.reconnectedIDs.Union(pending)
	m.idsMu.Unlock()
}

func hexToNodeID(s string) (common.NodeID, bool) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != common.NodeIDLength {
		return common.NodeID{}, false
	}
	return common.BytesToNodeID(b), true
}

// Start launches the main (1s) and reconnect (5s) workers under a shared
// errgroup, mirroring sync.Manager.Start's lifecycle pattern.
func (m *Manager) Start(ctx context.Context) {
	groupCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(groupCtx)

	m.cancel = cancel
	m.group = g

	g.Go(func() error { return m.runMainWorker(gctx) })
	g.Go(func() error { return m.runReconnectWorker(gctx) })
}

func (m *Manager) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.group != nil {
		return m.group.Wait()
	}
	return nil
}
