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

// Package sync implements the chain synchronization core: the state machine
// that drives a node from its local tip to the network's best observed tip
// across a pool of peers, electing a master peer for hash retrieval and
// fanning block retrieval out across the rest.
package sync

// State is the global sync state machine's state.
type State int

const (
	INIT State = iota
	HASH_RETRIEVING
	BLOCK_RETRIEVING
	GAP_RECOVERY
	DONE_GAP_RECOVERY
	DONE_SYNC
	IDLE
)

func (s State) String() string {
	switch s {
	case INIT:
		return "INIT"
	case HASH_RETRIEVING:
		return "HASH_RETRIEVING"
	case BLOCK_RETRIEVING:
		return "BLOCK_RETRIEVING"
	case GAP_RECOVERY:
		return "GAP_RECOVERY"
	case DONE_GAP_RECOVERY:
		return "DONE_GAP_RECOVERY"
	case DONE_SYNC:
		return "DONE_SYNC"
	case IDLE:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}
