// Copyright 2018 The go-probeum Authors
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

// Package memorydb implements probedb.Database as an in-memory map, used by
// tests that want BlockQueue's persistence semantics without a leveldb file
// on disk.
package memorydb

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/probeum/node/probedb"
)

var errMemorydbClosed = errors.New("memorydb: closed")

// Database is a Database implementation backed by a plain Go map.
type Database struct {
	lock   sync.RWMutex
	db     map[string][]byte
	closed bool
}

func New() *Database {
	return &Database{db: make(map[string][]byte)}
}

func (d *Database) Has(key []byte) (bool, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.closed {
		return false, errMemorydbClosed
	}
	_, ok := d.db[string(key)]
	return ok, nil
}

func (d *Database) Get(key []byte) ([]byte, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if d.closed {
		return nil, errMemorydbClosed
	}
	if v, ok := d.db[string(key)]; ok {
		cp := make([]byte, len(v))
		copy(cp, v)
		return cp, nil
	}
	return nil, nil
}

func (d *Database) Put(key, value []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return errMemorydbClosed
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	d.db[string(key)] = cp
	return nil
}

func (d *Database) Delete(key []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return errMemorydbClosed
	}
	delete(d.db, string(key))
	return nil
}

func (d *Database) NewBatch() probedb.Batch {
	return &batch{db: d}
}

func (d *Database) NewIterator(prefix []byte) probedb.Iterator {
	d.lock.RLock()
	defer d.lock.RUnlock()

	var keys []string
	for k := range d.db {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &iter{db: d, keys: keys, idx: -1}
}

func (d *Database) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.closed = true
	return nil
}

// Reopen returns a fresh, open handle sharing this database's backing map,
// mirroring how leveldb.New reopens a handle for an existing file path
// after a prior handle was closed; the prior handle remains closed.
func (d *Database) Reopen() *Database {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return &Database{db: d.db}
}

type keyValue struct {
	key    []byte
	value  []byte
	delete bool
}

type batch struct {
	db   *Database
	ops  []keyValue
	size int
}

func (b *batch) Put(key, value []byte) error {
	cpk, cpv := append([]byte(nil), key...), append([]byte(nil), value...)
	b.ops = append(b.ops, keyValue{cpk, cpv, false})
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	cpk := append([]byte(nil), key...)
	b.ops = append(b.ops, keyValue{cpk, nil, true})
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()
	if b.db.closed {
		return errMemorydbClosed
	}
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.db, string(op.key))
			continue
		}
		b.db.db[string(op.key)] = op.value
	}
	return nil
}

func (b *batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}

type iter struct {
	db   *Database
	keys []string
	idx  int
}

func (it *iter) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *iter) Key() []byte { return []byte(it.keys[it.idx]) }

func (it *iter) Value() []byte {
	it.db.lock.RLock()
	defer it.db.lock.RUnlock()
	return it.db.db[it.keys[it.idx]]
}

func (it *iter) Release()     {}
func (it *iter) Error() error { return nil }
