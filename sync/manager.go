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
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/probeum/node/blockqueue"
	"github.com/probeum/node/common"
	"github.com/probeum/node/log"
	"github.com/probeum/node/p2p/discover"
	"github.com/probeum/node/p2p/enode"
)

// Tuning constants, spec.md §4.1 / §6.
const (
	PeersCount            = 5
	ConnectionTimeout     = 60 * time.Second
	LargeGapThreshold     = 5
	TimeToImportThreshold = 600 * time.Second

	periodicWorkerPeriod = 3 * time.Second
	logWorkerPeriod      = 30 * time.Second
)

// Config recognizes the single option spec.md §6 names for this component.
type Config struct {
	MaxHashesAsk int
}

// Manager is the global sync state machine, spec.md §4.1. It is
// constructed with its collaborators as explicit inputs - the composition
// root replacement for field injection spec.md §9 asks for.
type Manager struct {
	cfg       Config
	queue     *blockqueue.Queue
	discovery discover.Service
	dialer    Dialer
	log       log.Logger

	limiter        *rate.Limiter
	recentlyDialed *lru.Cache

	mu           sync.Mutex
	state        State
	prevState    State
	peers        []PeerHandle
	master       PeerHandle
	maxHashesAsk int
	bestHash     common.Hash

	localTD               atomicBigInt
	lowerUsefulDifficulty atomicBigInt
	bestBlockNumber       uint64 // atomic

	ctMu              sync.Mutex
	connectTimestamps map[common.NodeID]time.Time

	onSyncDone func()

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewManager wires a Manager to its collaborators. localTD is the local
// chain's total difficulty at construction time; the caller updates it as
// the chain advances via SetLocalTotalDifficulty.
func NewManager(queue *blockqueue.Queue, discovery discover.Service, dialer Dialer, cfg Config, localTD *big.Int, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.New("component", "sync")
	}
	cache, _ := lru.New(PeersCount * 4)
	m := &Manager{
		cfg:               cfg,
		queue:             queue,
		discovery:         discovery,
		dialer:            dialer,
		log:               logger,
		limiter:           rate.NewLimiter(rate.Limit(10), 10),
		recentlyDialed:    cache,
		state:             INIT,
		maxHashesAsk:      cfg.MaxHashesAsk,
		connectTimestamps: make(map[common.NodeID]time.Time),
	}
	if localTD == nil {
		localTD = big.NewInt(0)
	}
	m.localTD.Store(localTD)
	m.lowerUsefulDifficulty.Store(big.NewInt(0))
	return m
}

// SetLocalTotalDifficulty updates the local chain's total difficulty, read
// by AddPeer's admission check.
func (m *Manager) SetLocalTotalDifficulty(td *big.Int) { m.localTD.Store(td) }

// SetBestBlockNumber updates the local chain tip's number, read by
// RecoverGap's gap computation.
func (m *Manager) SetBestBlockNumber(n uint64) { atomic.StoreUint64(&m.bestBlockNumber, n) }

// SetOnSyncDoneListener registers a callback invoked once on every
// transition into DONE_SYNC.
func (m *Manager) SetOnSyncDoneListener(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSyncDone = f
}

// State returns the current global sync state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Master returns the currently elected master peer, or nil.
func (m *Manager) Master() PeerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master
}

// Peers returns a snapshot of the current peer pool.
func (m *Manager) Peers() []PeerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PeerHandle, len(m.peers))
	copy(out, m.peers)
	return out
}

// AddPeer is spec.md §4.1's admission operation.
func (m *Manager) AddPeer(p PeerHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == DONE_SYNC {
		return
	}
	m.clearConnectTimestamp(p.PeerID())

	if p.TotalDifficulty().Cmp(m.localTD.Load()) <= 0 {
		m.log.Debug("Skipping peer with insufficient difficulty", "id", p.PeerID())
		return
	}
	m.peers = append(m.peers, p)

	highestTD := m.queue.HashStore().HighestTotalDifficulty()
	if highestTD == nil || !withinRange(highestTD, p.TotalDifficulty()) {
		m.transitionToHashRetrieving()
	} else if m.state == BLOCK_RETRIEVING {
		p.ChangeState(BLOCK_RETRIEVING)
	}
}

// RemovePeer is spec.md §4.1's removal operation.
func (m *Manager) RemovePeer(p PeerHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == DONE_SYNC {
		return
	}
	m.clearConnectTimestamp(p.PeerID())
	p.ChangeState(IDLE)

	for i, peer := range m.peers {
		if peer.PeerID() == p.PeerID() {
			m.peers = append(m.peers[:i], m.peers[i+1:]...)
			break
		}
	}
}

// RecoverGap is invoked by the importer when wrapper's parent is missing
// from the local chain.
func (m *Manager) RecoverGap(wrapper *blockqueue.BlockWrapper) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == GAP_RECOVERY {
		m.log.Debug("Gap recovery already in progress, postponing", "number", wrapper.Number)
		return
	}
	if wrapper.IsNewBlock {
		allowed := (m.state == BLOCK_RETRIEVING && m.queue.HashStore().IsEmpty()) ||
			m.state == DONE_SYNC || m.state == DONE_GAP_RECOVERY
		if !allowed {
			m.log.Debug("Postponing gap recovery for new block", "number", wrapper.Number, "state", m.state)
			return
		}
	}

	gap := int64(wrapper.Number) - int64(atomic.LoadUint64(&m.bestBlockNumber))
	if gap > LargeGapThreshold {
		ask := int(gap)
		if ask > m.cfg.MaxHashesAsk {
			ask = m.cfg.MaxHashesAsk
		}
		m.maxHashesAsk = ask
		m.bestHash = wrapper.Hash
		m.transitionToGapRecovery()
		return
	}
	m.queue.HashStore().PushFront(wrapper.ParentHash)
}

// NotifyNewBlockImported is invoked by the importer after every successful
// block import.
func (m *Manager) NotifyNewBlockImported(wrapper *blockqueue.BlockWrapper) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == DONE_SYNC || m.state == GAP_RECOVERY {
		return
	}
	if wrapper.TimeSinceReceiving() <= TimeToImportThreshold {
		m.transitionToDoneSync()
	}
}

// --- state transitions (mu held by caller) ---

func (m *Manager) setState(s State) {
	m.prevState = m.state
	m.state = s
}

func (m *Manager) electMaster() PeerHandle {
	var best PeerHandle
	for _, p := range m.peers {
		if best == nil || p.TotalDifficulty().Cmp(best.TotalDifficulty()) > 0 {
			best = p
		}
	}
	return best
}

func (m *Manager) transitionToHashRetrieving() {
	wasInit := m.state == INIT
	master := m.electMaster()
	m.master = master
	if master != nil {
		m.queue.HashStore().SetHighestTotalDifficulty(master.TotalDifficulty())
	}

	if wasInit && m.queue.SyncWasInterrupted() {
		m.setState(HASH_RETRIEVING)
		m.transitionToBlockRetrieving()
		return
	}

	m.setState(HASH_RETRIEVING)
	m.queue.HashStore().Clear()
	for _, p := range m.peers {
		p.ChangeState(IDLE)
	}
	m.maxHashesAsk = m.cfg.MaxHashesAsk
	if master != nil {
		master.SetMaxHashesAsk(m.maxHashesAsk)
		master.ChangeState(HASH_RETRIEVING)
	}
}

func (m *Manager) transitionToBlockRetrieving() {
	m.setState(BLOCK_RETRIEVING)
	for _, p := range m.peers {
		p.ChangeState(BLOCK_RETRIEVING)
	}
}

func (m *Manager) transitionToGapRecovery() {
	master := m.electMaster()
	m.master = master
	m.setState(GAP_RECOVERY)
	if master != nil {
		master.SetMaxHashesAsk(m.maxHashesAsk)
		master.ChangeState(HASH_RETRIEVING)
	}
}

func (m *Manager) transitionToDoneSync() {
	m.setState(DONE_SYNC)
	for _, p := range m.peers {
		p.ChangeState(DONE_SYNC)
	}
	if m.onSyncDone != nil {
		m.onSyncDone()
	}
}

// --- periodic worker steps ---

func (m *Manager) checkMaster() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case HASH_RETRIEVING:
		if m.master != nil && m.master.IsHashRetrievingDone() {
			m.transitionToBlockRetrieving()
		}
	case GAP_RECOVERY:
		if m.master != nil && m.master.IsHashRetrievingDone() {
			if m.prevState == BLOCK_RETRIEVING {
				m.transitionToBlockRetrieving()
			} else {
				m.setState(DONE_GAP_RECOVERY)
				for _, p := range m.peers {
					p.ChangeState(BLOCK_RETRIEVING)
				}
			}
		}
	}
}

func (m *Manager) bumpLowerUsefulDifficulty(td *big.Int) {
	if td == nil {
		return
	}
	current := m.lowerUsefulDifficulty.Load()
	if td.Cmp(current) > 0 {
		m.lowerUsefulDifficulty.Store(td)
	}
}

func (m *Manager) checkPeers() {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := m.peers[:0:0]
	for _, p := range m.peers {
		if p.HasNoMoreBlocks() {
			p.ChangeState(IDLE)
			m.bumpLowerUsefulDifficulty(p.TotalDifficulty())
			continue
		}
		remaining = append(remaining, p)
	}
	m.peers = remaining
	m.bumpLowerUsefulDifficulty(m.localTD.Load())

	if (m.state == BLOCK_RETRIEVING || m.state == DONE_SYNC || m.state == DONE_GAP_RECOVERY) && !m.queue.HashStore().IsEmpty() {
		for _, p := range m.peers {
			if p.IsIdle() {
				p.ChangeState(BLOCK_RETRIEVING)
			}
		}
	}
}

func (m *Manager) removeOutdatedConnections() {
	m.ctMu.Lock()
	defer m.ctMu.Unlock()
	now := time.Now()
	for id, ts := range m.connectTimestamps {
		if now.Sub(ts) > ConnectionTimeout {
			delete(m.connectTimestamps, id)
		}
	}
}

func (m *Manager) askNewPeers() {
	m.mu.Lock()
	n := len(m.peers)
	active := make(map[common.NodeID]bool, n)
	for _, p := range m.peers {
		active[p.PeerID()] = true
	}
	m.mu.Unlock()

	if n >= PeersCount {
		return
	}
	lowerUseful := m.lowerUsefulDifficulty.Load()

	predicate := func(ns *discover.NodeStatistics) bool {
		td, ok := ns.GetEthLastInboundStatusMsg()
		if !ok {
			return false
		}
		id := ns.Node().ID()
		if active[id] || m.isPending(id) {
			return false
		}
		return td.Cmp(lowerUseful) > 0
	}
	comparator := func(a, b *discover.NodeStatistics) bool {
		tdA, _ := a.GetEthLastInboundStatusMsg()
		tdB, _ := b.GetEthLastInboundStatusMsg()
		return tdA.Cmp(tdB) > 0
	}

	candidates := m.discovery.GetNodes(predicate, comparator, PeersCount-n)
	for _, c := range candidates {
		m.initiateConnection(c.Node())
	}
}

func (m *Manager) logSyncStats() {
	for _, p := range m.Peers() {
		p.LogSyncStats()
	}
}

// --- connection management ---

func (m *Manager) isPending(id common.NodeID) bool {
	m.ctMu.Lock()
	defer m.ctMu.Unlock()
	_, ok := m.connectTimestamps[id]
	return ok
}

func (m *Manager) clearConnectTimestamp(id common.NodeID) {
	m.ctMu.Lock()
	defer m.ctMu.Unlock()
	delete(m.connectTimestamps, id)
}

// initiateConnection guards against redialing a node whose connect is
// already pending, and rate-limits the actual dial beneath that guard so
// ask_new_peers can't burst the dialer.
func (m *Manager) initiateConnection(node *enode.Node) {
	id := node.ID()

	m.ctMu.Lock()
	if _, pending := m.connectTimestamps[id]; pending {
		m.ctMu.Unlock()
		return
	}
	m.connectTimestamps[id] = time.Now()
	m.ctMu.Unlock()

	if _, recent := m.recentlyDialed.Get(id); !recent {
		m.log.Debug("Dialing candidate peer", "id", id, "attempt", uuid.New().String())
	}
	m.recentlyDialed.Add(id, struct{}{})

	if m.limiter != nil {
		_ = m.limiter.Wait(context.Background())
	}
	m.dialer.Connect(node)
}

// --- lifecycle ---

func (m *Manager) registerDiscoveryListener() {
	predicate := func(ns *discover.NodeStatistics) bool {
		td, ok := ns.GetEthLastInboundStatusMsg()
		if !ok {
			return false
		}
		highest := m.queue.HashStore().HighestTotalDifficulty()
		return highest == nil || td.Cmp(highest) > 0
	}
	m.discovery.AddDiscoverListener(discover.ListenerFunc(func(ns *discover.NodeStatistics) {
		m.initiateConnection(ns.Node())
	}), predicate)
}

// Start launches the periodic worker (3s) and the log worker (30s) under a
// shared errgroup, and registers the discovery listener. It mirrors the
// teacher's handler.wg/quitSync shutdown pattern with an errgroup instead,
// so a panic in either worker (or an explicit Stop) tears down both.
func (m *Manager) Start(ctx context.Context) {
	groupCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(groupCtx)

	m.mu.Lock()
	m.cancel = cancel
	m.group = g
	m.mu.Unlock()

	m.registerDiscoveryListener()

	g.Go(func() error { return m.runPeriodicWorker(gctx) })
	g.Go(func() error { return m.runLogWorker(gctx) })
}

func (m *Manager) runPeriodicWorker(ctx context.Context) error {
	ticker := time.NewTicker(periodicWorkerPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.checkMaster()
			m.checkPeers()
			m.removeOutdatedConnections()
			m.askNewPeers()
		}
	}
}

func (m *Manager) runLogWorker(ctx context.Context) error {
	ticker := time.NewTicker(logWorkerPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.logSyncStats()
		}
	}
}

// Stop cancels both periodic workers and waits for them to return.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	g := m.group
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if g != nil {
		return g.Wait()
	}
	return nil
}
