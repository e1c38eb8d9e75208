package leveldb

/*
   Copyright 2024 Tidemark Labs

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

import (
	"os"

	ldb "github.com/syndtr/goleveldb/leveldb"
	ldbopt "github.com/syndtr/goleveldb/leveldb/opt"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/tidemark/cascade"
)

var (
	dopt *ldbopt.Options
	wopt *ldbopt.WriteOptions
	ropt *ldbopt.ReadOptions
)

// make sure we implement the needed interfaces
var _ cascade.KVStore = (*DB)(nil)
var _ cascade.Closer = (*DB)(nil)

// DB is a durable leveldb key value sink for graph output nodes.
type DB struct {
	name string
	path string
	db   *ldb.DB
}

// New opens a durable sink with the given name rooted at path.
func New(name, path string) (d *DB, err error) {
	d = &DB{}
	d.name = name
	d.path = path

	if d.db, err = ldb.OpenFile(d.path, dopt); err != nil {
		return nil, err
	}
	return d, nil
}

// Remove closes the sink and erases its contents.
func (d *DB) Remove() (err error) {
	if err = d.Close(); err != nil {
		return err
	}
	return os.RemoveAll(d.path)
}

// Close the sink releasing its resources.
func (d *DB) Close() (err error) {
	err = d.db.Close()
	d.db = nil
	return err
}

// Name returns this sink name.
func (d *DB) Name() (name string) {
	return d.name
}

// Get value for the given key.
func (d *DB) Get(key []byte) (value []byte, err error) {
	value, err = d.db.Get(key, ropt)

	if err == ldb.ErrNotFound {
		return nil, cascade.ErrKeyNotFound
	}

	return value, err
}

// Set the value for the given key.
func (d *DB) Set(key, value []byte) (err error) {
	return d.db.Put(key, value, wopt)
}

// Delete the given key and associated value.
func (d *DB) Delete(key []byte) (err error) {
	return d.db.Delete(key, wopt)
}

// Range iterates the sink within the given key range applying the
// callback for the key value pairs. Returning an error stops the
// iteration. A nil from or to sets the iterator to the beginning or
// end.
func (d *DB) Range(from, to []byte, cb func(key, value []byte) error) (err error) {
	rng := &ldbutil.Range{Start: from, Limit: to}
	iter := d.db.NewIterator(rng, ropt)
	defer iter.Release()

	for iter.Next() {
		if err = cb(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}

	return iter.Error()
}

// RangePrefix iterates the sink over a key prefix applying the
// callback for the key value pairs. Returning an error stops the
// iteration.
func (d *DB) RangePrefix(prefix []byte, cb func(key, value []byte) error) (err error) {
	iter := d.db.NewIterator(ldbutil.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		if err = cb(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}

	return iter.Error()
}
