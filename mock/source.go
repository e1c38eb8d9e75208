package mock

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
	"sync"

	"github.com/tidemark/cascade"
)

// Source replays a fixed sequence of stores, for driving graphs in
// tests and benchmarks.
type Source struct {
	mtx    sync.Mutex
	stores []*cascade.ProductStore
	cursor int
	closed bool
}

// NewSource creates a source over the given stores, replayed in order.
func NewSource(stores ...*cascade.ProductStore) (s *Source) {
	s = &Source{}
	s.stores = stores
	return s
}

// Append adds stores to the end of the sequence.
func (s *Source) Append(stores ...*cascade.ProductStore) {
	s.mtx.Lock()
	s.stores = append(s.stores, stores...)
	s.mtx.Unlock()
}

// Next returns the next store, nil at end of stream.
func (s *Source) Next() (store *cascade.ProductStore, err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.cursor >= len(s.stores) {
		return nil, nil
	}

	store = s.stores[s.cursor]
	s.cursor++
	return store, nil
}

// Close marks the source as closed.
func (s *Source) Close() (err error) {
	s.mtx.Lock()
	s.closed = true
	s.mtx.Unlock()
	return nil
}

// Closed reports if the engine closed the source on shutdown.
func (s *Source) Closed() (closed bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.closed
}

// Level describes one tier of a uniform hierarchy: its name and how
// many children each parent has at it.
type Level struct {
	Name  string
	Count uint64
}

// HierarchySource emits a depth first uniform hierarchy described by
// levels. fill receives the identifier of each emitted store and
// returns the products to place in it, or nil.
func HierarchySource(levels []Level, fill func(id *cascade.LevelID) cascade.Products) (s *Source) {
	s = NewSource()
	emit(s, cascade.Base(), levels, fill)
	return s
}

func emit(s *Source, parent *cascade.LevelID, levels []Level, fill func(id *cascade.LevelID) cascade.Products) {
	if len(levels) == 0 {
		return
	}

	level := levels[0]
	for i := uint64(0); i < level.Count; i++ {
		id := parent.Child(i, level.Name)
		store := cascade.NewStore(id)

		if fill != nil {
			if products := fill(id); products.Len() > 0 {
				for _, name := range products.Names() {
					value, _ := products.Value(name)
					_ = store.Add(name, value)
				}
			}
		}

		s.Append(store)
		emit(s, id, levels[1:], fill)
	}
}
