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

import "github.com/probeum/node/p2p/enode"

// Dialer is the "Ethereum facade" of spec.md §6: a fire-and-forget request
// to open an outbound channel to node. Connection establishment and the
// resulting handshake are this repository's transport layer's concern, not
// the sync core's.
type Dialer interface {
	Connect(node *enode.Node)
}
