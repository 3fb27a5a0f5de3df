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

// Package probedb defines the transactional key-value store contract the
// rest of this repository persists to, and a github.com/syndtr/goleveldb
// backed implementation of it. It plays the role the "ethdb" package plays
// in every fork of this corpus: a thin seam between domain packages and the
// on-disk format, so BlockQueue (and anything else that needs durability)
// never imports goleveldb directly.
package probedb

import "errors"

// ErrStorage wraps any error surfaced by the backing store, per spec: "not
// recovered locally; surfaced to the caller. Implementations may map them
// to a single StorageError."
var ErrStorage = errors.New("probedb: storage error")

// KeyValueReader wraps the read side of a key-value store.
type KeyValueReader interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the write side of a key-value store.
type KeyValueWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Batcher starts a new write batch.
type Batcher interface {
	NewBatch() Batch
}

// Iteratee creates iterators over key-value ranges sharing a prefix.
type Iteratee interface {
	NewIterator(prefix []byte) Iterator
}

// Iterator iterates over a key-value store's key/value pairs in ascending
// key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Batch is a write-only accumulator that commits atomically on Write.
type Batch interface {
	KeyValueWriter

	ValueSize() int
	Write() error
	Reset()
}

// Database is the full store contract: reads, writes, batched writes,
// prefix iteration, and lifecycle.
type Database interface {
	KeyValueReader
	KeyValueWriter
	Batcher
	Iteratee

	Close() error
}
