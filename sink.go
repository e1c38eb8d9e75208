package cascade

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
	"errors"
)

var (
	// ErrKeyNotFound is returned when a key is not found on a get from
	// a key value sink.
	ErrKeyNotFound = errors.New("key not found")
)

// OutputFunc persists the announced products of a routed store. The
// names slice carries only the products newly added by the producing
// node, so a sink observing the whole stream writes each product once.
type OutputFunc func(s *ProductStore, names []string) (err error)

// ROStore is a read only key/value sink.
type ROStore interface {

	// Name returns this sink name.
	Name() (name string)

	// Get value for the given key.
	Get(key []byte) (value []byte, err error)

	// Range iterates the sink in byte-wise lexicographical sorting
	// order within the given key range applying the callback for the
	// key value pairs. Returning an error stops the iteration. A nil
	// from or to sets the iterator to the beginning or end. Key and
	// value bytes remain valid only during the callback call.
	Range(from, to []byte, cb func(key, value []byte) error) (err error)

	// RangePrefix iterates the sink over a key prefix applying the
	// callback for the key value pairs. Returning an error stops the
	// iteration.
	RangePrefix(prefix []byte, cb func(key, value []byte) error) (err error)
}

// KVStore is a read write key/value sink backing an output node.
type KVStore interface {
	ROStore

	// Set the value for the given key.
	Set(key, value []byte) (err error)

	// Delete the given key and associated value
	Delete(key []byte) (err error)
}

// KVOutput adapts a key value sink into an OutputFunc. Each encodable
// product is written under "<level id>/<product name>"; products whose
// values cannot be serialized are skipped.
func KVOutput(kv KVStore) (fn OutputFunc) {
	return func(s *ProductStore, names []string) (err error) {
		prefix := s.ID().String() + "/"

		for _, name := range names {
			if name == FlushName {
				continue
			}

			value, err := Get[any](s, name)
			if err != nil {
				return err
			}

			data, ok, err := EncodeProduct(value)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			if err = kv.Set([]byte(prefix+name), data); err != nil {
				return err
			}
		}
		return nil
	}
}
