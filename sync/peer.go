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
	"sync"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/probeum/node/common"
)

// Status is a peer's protocol-level handshake status: the total difficulty
// and best hash it advertised.
type Status struct {
	TotalDifficulty *big.Int
	BestHash        common.Hash
}

// PeerHandle is the capability set spec.md §6 requires of a peer session
// object: chain state, per-peer sync sub-state, and the commands the sync
// core issues against it.
type PeerHandle interface {
	PeerID() common.NodeID
	BestHash() common.Hash
	TotalDifficulty() *big.Int
	HandshakeStatus() (Status, bool)

	SyncState() State
	ChangeState(s State)
	SetMaxHashesAsk(n int)
	MaxHashesAsk() int

	IsIdle() bool
	IsHashRetrievingDone() bool
	HasNoMoreBlocks() bool
	HasStatusSucceeded() bool
	IsUseful() bool
	HasInitPassed() bool

	SendTransaction(tx interface{})
	LogSyncStats()
	OnDisconnect()
}

// Peer is the concrete PeerHandle used by this repository's ChannelManager
// and SyncManager. Every mutable field lives behind a mutex since discovery
// callbacks, peer I/O, and the periodic workers all reach a peer
// concurrently (spec.md §5: "Discovery callbacks and peer I/O callbacks may
// arrive on network threads and synchronously invoke SyncManager /
// ChannelManager public methods").
type Peer struct {
	id       common.NodeID
	bestHash common.Hash
	td       *big.Int

	mu                  sync.Mutex
	status              *Status
	state               State
	maxHashesAsk        int
	noMoreBlocks        bool
	initPassed          bool
	useful              bool
	statusSucceeded     bool
	hashRetrievingDone  bool

	sendTx     func(tx interface{})
	disconnect func()
	logStats   func()
}

// NewPeer constructs a Peer with its identity and advertised chain state
// fixed at handshake time; sendTx, disconnect, and logStats are wired to
// the transport layer this package does not own.
func NewPeer(id common.NodeID, bestHash common.Hash, td *big.Int, sendTx func(interface{}), disconnect, logStats func()) *Peer {
	return &Peer{
		id:         id,
		bestHash:   bestHash,
		td:         td,
		state:      IDLE,
		sendTx:     sendTx,
		disconnect: disconnect,
		logStats:   logStats,
	}
}

func (p *Peer) PeerID() common.NodeID     { return p.id }
func (p *Peer) BestHash() common.Hash     { return p.bestHash }
func (p *Peer) TotalDifficulty() *big.Int { return p.td }

func (p *Peer) HandshakeStatus() (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		return Status{}, false
	}
	return *p.status, true
}

// SetHandshakeStatus records the peer's Status message once received.
func (p *Peer) SetHandshakeStatus(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = &s
	p.statusSucceeded = true
}

func (p *Peer) SyncState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) ChangeState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func (p *Peer) SetMaxHashesAsk(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxHashesAsk = n
}

func (p *Peer) MaxHashesAsk() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxHashesAsk
}

func (p *Peer) IsIdle() bool { return p.SyncState() == IDLE }

func (p *Peer) IsHashRetrievingDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hashRetrievingDone
}

// SetHashRetrievingDone is called by the transport layer once the master
// peer's hash-retrieval round has exhausted its supply of hashes.
func (p *Peer) SetHashRetrievingDone(done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hashRetrievingDone = done
}

func (p *Peer) HasNoMoreBlocks() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.noMoreBlocks
}

func (p *Peer) SetHasNoMoreBlocks(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.noMoreBlocks = v
}

func (p *Peer) HasStatusSucceeded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusSucceeded
}

func (p *Peer) IsUseful() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.useful
}

func (p *Peer) SetUseful(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.useful = v
}

func (p *Peer) HasInitPassed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initPassed
}

func (p *Peer) SetInitPassed(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initPassed = v
}

func (p *Peer) SendTransaction(tx interface{}) {
	if p.sendTx != nil {
		p.sendTx(tx)
	}
}

func (p *Peer) LogSyncStats() {
	if p.logStats != nil {
		p.logStats()
	}
}

func (p *Peer) OnDisconnect() {
	if p.disconnect != nil {
		p.disconnect()
	}
}

// atomicBigInt publishes a *big.Int across goroutines without a mutex, the
// resolution spec.md §9's open question on lower_useful_difficulty asks
// for: the periodic worker is the sole writer, the discovery predicate the
// concurrent reader, and atomic.Value gives that reader a safe, lock-free
// snapshot.
type atomicBigInt struct {
	v atomic.Value // stores *big.Int
}

func (a *atomicBigInt) Load() *big.Int {
	v, _ := a.v.Load().(*big.Int)
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func (a *atomicBigInt) Store(n *big.Int) {
	a.v.Store(n)
}

// withinRange implements the "within 20%" predicate from the glossary:
// |a - b| <= 0.2 * max(a, b). A holiman/uint256 fast path is used since
// total difficulties always fit in 256 bits in practice; it falls back to
// math/big if either operand overflows that range.
func withinRange(a, b *big.Int) bool {
	ua, aOverflow := uint256.FromBig(a)
	ub, bOverflow := uint256.FromBig(b)
	if !aOverflow && !bOverflow {
		return withinRangeU256(ua, ub)
	}
	return withinRangeBig(a, b)
}

func withinRangeU256(a, b *uint256.Int) bool {
	var diff uint256.Int
	if a.Cmp(b) >= 0 {
		diff.Sub(a, b)
	} else {
		diff.Sub(b, a)
	}
	max := a
	if b.Cmp(a) > 0 {
		max = b
	}
	var fifth uint256.Int
	fifth.Div(max, uint256.NewInt(5))
	return diff.Cmp(&fifth) <= 0
}

func withinRangeBig(a, b *big.Int) bool {
	diff := new(big.Int).Sub(a, b)
	diff.Abs(diff)
	max := a
	if b.Cmp(a) > 0 {
		max = b
	}
	fifth := new(big.Int).Div(max, big.NewInt(5))
	return diff.Cmp(fifth) <= 0
}
