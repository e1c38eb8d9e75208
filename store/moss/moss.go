package moss

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
	"bytes"

	"github.com/couchbase/moss"

	"github.com/tidemark/cascade"
)

var (
	ropts    = moss.ReadOptions{}
	wopts    = moss.WriteOptions{}
	iteropts = moss.IteratorOptions{}
)

// make sure we implement the needed interfaces
var _ cascade.KVStore = (*DB)(nil)
var _ cascade.Closer = (*DB)(nil)

// DB is an in-memory MOSS key value sink for graph output nodes.
type DB struct {
	name string
	db   moss.Collection
}

// New creates and starts an in-memory sink with the given name.
func New(name string) (d *DB, err error) {
	d = &DB{}
	d.name = name

	d.db, err = moss.NewCollection(moss.DefaultCollectionOptions)
	if err != nil {
		return nil, err
	}

	if err = d.db.Start(); err != nil {
		return nil, err
	}
	return d, nil
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
	value, err = d.db.Get(key, ropts)

	if value == nil && err == nil {
		return nil, cascade.ErrKeyNotFound
	}

	return value, err
}

// Set the value for the given key.
func (d *DB) Set(key, value []byte) (err error) {
	batch, err := d.db.NewBatch(1, len(key)+len(value))
	if err != nil {
		return err
	}
	defer batch.Close()

	if err = batch.Set(key, value); err != nil {
		return err
	}

	return d.db.ExecuteBatch(batch, wopts)
}

// Delete the given key and associated value.
func (d *DB) Delete(key []byte) (err error) {
	batch, err := d.db.NewBatch(1, 0)
	if err != nil {
		return err
	}
	defer batch.Close()

	// Moss returns a nil error on a non-existent key
	if err = batch.Del(key); err != nil {
		return err
	}

	return d.db.ExecuteBatch(batch, wopts)
}

// Range iterates the sink within the given key range applying the
// callback for the key value pairs. Returning an error stops the
// iteration. A nil from or to sets the iterator to the beginning or
// end.
func (d *DB) Range(from, to []byte, cb func(key, value []byte) error) (err error) {
	ss, err := d.db.Snapshot()
	if err != nil {
		return err
	}
	defer ss.Close()

	iter, err := ss.StartIterator(from, to, iteropts)
	if err != nil {
		return err
	}
	defer iter.Close()

	for {
		key, val, err := iter.Current()
		if err != nil {
			if err == moss.ErrIteratorDone {
				return nil
			}
			return err
		}

		if err = cb(key, val); err != nil {
			return err
		}

		if err = iter.Next(); err != nil {
			if err == moss.ErrIteratorDone {
				return nil
			}
			return err
		}
	}
}

// RangePrefix iterates the sink over a key prefix applying the
// callback for the key value pairs. Returning an error stops the
// iteration.
func (d *DB) RangePrefix(prefix []byte, cb func(key, value []byte) error) (err error) {
	return d.Range(nil, nil, func(key, value []byte) error {
		if bytes.HasPrefix(key, prefix) {
			return cb(key, value)
		}
		return nil
	})
}
