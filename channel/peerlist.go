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

import "sync"

// peerList is a copy-on-write list of channels: writers rebuild the backing
// array under the lock, readers take a snapshot reference under RLock and
// iterate it lock-free afterwards, so a concurrent Add/Remove never tears a
// snapshot already in flight. This is spec.md §4.2/§9's "copy-on-write peer
// lists" requirement made concrete.
type peerList struct {
	mu    sync.RWMutex
	items []*Channel
}

func (l *peerList) Add(c *Channel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]*Channel, len(l.items)+1)
	copy(next, l.items)
	next[len(l.items)] = c
	l.items = next
}

// Remove drops c by identity, if present, and reports whether it was found.
func (l *peerList) Remove(c *Channel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := -1
	for i, item := range l.items {
		if item == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	next := make([]*Channel, 0, len(l.items)-1)
	next = append(next, l.items[:idx]...)
	next = append(next, l.items[idx+1:]...)
	l.items = next
	return true
}

// RemoveAll drops every channel for which remove returns true, returning the
// removed ones.
func (l *peerList) RemoveAll(remove func(*Channel) bool) []*Channel {
	l.mu.Lock()
	defer l.mu.Unlock()
	var removed []*Channel
	next := l.items[:0:0]
	for _, c := range l.items {
		if remove(c) {
			removed = append(removed, c)
		} else {
			next = append(next, c)
		}
	}
	l.items = next
	return removed
}

func (l *peerList) Contains(c *Channel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, item := range l.items {
		if item == c {
			return true
		}
	}
	return false
}

// Snapshot returns the current backing slice. Since writers never mutate a
// published slice in place (Add/Remove/RemoveAll always build a new one),
// the result is safe to range over without further locking.
func (l *peerList) Snapshot() []*Channel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.items
}

func (l *peerList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
