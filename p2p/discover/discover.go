// Copyright 2019 The go-probeum Authors
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

// Package discover describes the discovery service's contract, consumed by
// the sync core but implemented elsewhere (the discovery wire protocol is
// out of this repository's scope, per spec.md §1).
package discover

import (
	"math/big"

	"github.com/probeum/node/common"
	"github.com/probeum/node/p2p/enode"
)

// NodeStatistics is the subset of per-node statistics the sync core reads
// to decide whether a discovered node is worth dialing: its last reported
// `eth` handshake status, if any has been observed.
type NodeStatistics struct {
	node *enode.Node

	HasInboundStatus bool
	TotalDifficulty  *big.Int
	BestHash         common.Hash
}

func NewNodeStatistics(node *enode.Node) *NodeStatistics {
	return &NodeStatistics{node: node}
}

func (s *NodeStatistics) Node() *enode.Node { return s.node }

// GetEthLastInboundStatusMsg returns the total difficulty carried by the
// last inbound eth Status message observed for this node, or (nil, false)
// if none has been seen yet.
func (s *NodeStatistics) GetEthLastInboundStatusMsg() (*big.Int, bool) {
	if !s.HasInboundStatus {
		return nil, false
	}
	return s.TotalDifficulty, true
}

// Predicate filters candidate nodes by their statistics; Comparator orders
// two candidates for ranking (e.g. by descending total difficulty).
type Predicate func(*NodeStatistics) bool
type Comparator func(a, b *NodeStatistics) bool

// Listener receives live discovery events the caller subscribed to via
// AddDiscoverListener.
type Listener interface {
	NodeAppeared(stats *NodeStatistics)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(stats *NodeStatistics)

func (f ListenerFunc) NodeAppeared(stats *NodeStatistics) { f(stats) }

// Service is the discovery subsystem's contract as consumed by this
// repository: subscribe to matching nodes as they appear, and query the
// known node set on demand.
type Service interface {
	// AddDiscoverListener registers a listener invoked whenever a node
	// whose statistics satisfy predicate appears or is updated.
	AddDiscoverListener(listener Listener, predicate Predicate)

	// GetNodes returns up to limit nodes matching predicate, ordered by
	// comparator (most preferred first).
	GetNodes(predicate Predicate, comparator Comparator, limit int) []*NodeStatistics

	// FindByID looks up a previously discovered node by id.
	FindByID(id enode.ID) (*enode.Node, bool)
}
