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

// Package channel implements the peer-connection lifecycle supervisor,
// spec.md §4.2: it moves peers from "new/handshaking" to "active," forwards
// transactions to active peers, and schedules reconnection after disconnect.
package channel

import (
	syncpkg "github.com/probeum/node/sync"
)

// Channel wraps a peer handle plus the remote node id it was dialed or
// accepted from, spec.md §3's lifecycle: new -> init-passed -> active ->
// disconnected.
type Channel struct {
	peer     syncpkg.PeerHandle
	remoteID string
}

func NewChannel(peer syncpkg.PeerHandle, remoteID string) *Channel {
	return &Channel{peer: peer, remoteID: remoteID}
}

func (c *Channel) Peer() syncpkg.PeerHandle { return c.peer }
func (c *Channel) RemoteID() string         { return c.remoteID }

func (c *Channel) HasInitPassed() bool      { return c.peer.HasInitPassed() }
func (c *Channel) IsUseful() bool           { return c.peer.IsUseful() }
func (c *Channel) HasStatusSucceeded() bool { return c.peer.HasStatusSucceeded() }

func (c *Channel) SendTransaction(tx interface{}) { c.peer.SendTransaction(tx) }
func (c *Channel) OnDisconnect()                  { c.peer.OnDisconnect() }
