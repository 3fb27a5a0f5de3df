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

// Package enode models the discovery-network node records this repository
// consumes through an interface contract only; RLPx framing and the
// discovery wire protocol themselves live outside this repository's scope.
package enode

import "github.com/probeum/node/common"

// ID is a discovery-network node identifier.
type ID = common.NodeID

// Node is the minimal view of a discovered peer the sync core needs: an
// identity and a dialable address. Everything else (ENR entries, sequence
// numbers, signatures) belongs to the discovery subsystem proper.
type Node struct {
	id   ID
	addr string
}

func NewNode(id ID, addr string) *Node { return &Node{id: id, addr: addr} }

func (n *Node) ID() ID         { return n.id }
func (n *Node) Addr() string   { return n.addr }
func (n *Node) String() string { return n.id.String() + "@" + n.addr }
