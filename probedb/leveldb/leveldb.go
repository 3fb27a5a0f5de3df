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

// Package leveldb implements probedb.Database on top of
// github.com/syndtr/goleveldb, the persistence engine this corpus uses for
// its chain databases.
package leveldb

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/probeum/node/log"
	"github.com/probeum/node/probedb"
)

// Database is a persistent key-value store backed by a single goleveldb
// instance locked to this process for the lifetime of the open handle.
type Database struct {
	fn string
	db *leveldb.DB
	l  log.Logger
}

// New opens (or creates) the leveldb database at file, returning an error
// if another process already holds its lock file.
func New(file string, cache int, handles int, namespace string, readonly bool) (*Database, error) {
	if cache < 16 {
		cache = 16
	}
	if handles < 16 {
		handles = 16
	}
	opts := &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
		ReadOnly:               readonly,
	}
	db, err := leveldb.OpenFile(file, opts)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", probedb.ErrStorage, err)
	}
	return &Database{fn: file, db: db, l: log.New("db", namespace)}, nil
}

func (d *Database) Has(key []byte) (bool, error) {
	ok, err := d.db.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", probedb.ErrStorage, err)
	}
	return ok, nil
}

func (d *Database) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", probedb.ErrStorage, err)
	}
	return v, nil
}

func (d *Database) Put(key, value []byte) error {
	if err := d.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("%w: %v", probedb.ErrStorage, err)
	}
	return nil
}

func (d *Database) Delete(key []byte) error {
	if err := d.db.Delete(key, nil); err != nil {
		return fmt.Errorf("%w: %v", probedb.ErrStorage, err)
	}
	return nil
}

func (d *Database) NewBatch() probedb.Batch {
	return &batch{db: d.db, b: new(leveldb.Batch)}
}

func (d *Database) NewIterator(prefix []byte) probedb.Iterator {
	return &iter{iter: d.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (d *Database) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", probedb.ErrStorage, err)
	}
	d.l.Debug("Closed database", "path", d.fn)
	return nil
}

type batch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *batch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *batch) ValueSize() int { return b.size }

func (b *batch) Write() error {
	if err := b.db.Write(b.b, nil); err != nil {
		return fmt.Errorf("%w: %v", probedb.ErrStorage, err)
	}
	return nil
}

func (b *batch) Reset() {
	b.b.Reset()
	b.size = 0
}

type iter struct {
	iter iterator.Iterator
}

func (it *iter) Next() bool    { return it.iter.Next() }
func (it *iter) Key() []byte   { return it.iter.Key() }
func (it *iter) Value() []byte { return it.iter.Value() }
func (it *iter) Release()      { it.iter.Release() }
func (it *iter) Error() error  { return it.iter.Error() }
