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
	"sync"
)

// Stage distinguishes normal processing stores from flush barriers.
type Stage uint8

const (
	// StageProcess marks a store carrying user products.
	StageProcess = Stage(0)
	// StageFlush marks a barrier store terminating a LevelID.
	StageFlush = Stage(1)
)

func (s Stage) String() (name string) {
	switch s {
	case StageProcess:
		return "process"
	case StageFlush:
		return "flush"
	}
	return "unknown"
}

// FlushCounts carries the authoritative number of stores emitted at
// each named sub-level below the flushed identifier.
type FlushCounts struct {
	// LevelName of the flushed identifier.
	LevelName string
	// Counts per sub-level name.
	Counts map[string]uint64
}

// CountFor returns the count recorded for the given sub-level name.
func (fc FlushCounts) CountFor(levelName string) (count uint64, ok bool) {
	count, ok = fc.Counts[levelName]
	return count, ok
}

// ProductStore is a bag of products at a single LevelID, in either
// process or flush stage. Within a single LevelID at most one process
// store and exactly one flush store ever exist. Products are immutable
// once added; the bag itself grows as upstream nodes merge their
// outputs into it.
type ProductStore struct {
	mtx      sync.RWMutex
	id       *LevelID
	stage    Stage
	producer string
	products Products
}

// NewStore creates a process stage store at the given identifier.
func NewStore(id *LevelID) (s *ProductStore) {
	s = &ProductStore{}
	s.id = id
	s.stage = StageProcess
	s.products = NewProducts()
	return s
}

// newStoreAt creates a store at the given identifier and stage.
func newStoreAt(id *LevelID, stage Stage) (s *ProductStore) {
	s = NewStore(id)
	s.stage = stage
	return s
}

// ID of this store.
func (s *ProductStore) ID() (id *LevelID) {
	return s.id
}

// Stage of this store.
func (s *ProductStore) Stage() (stage Stage) {
	return s.stage
}

// IsFlush returns if this store is a barrier token.
func (s *ProductStore) IsFlush() (ok bool) {
	return s.stage == StageFlush
}

// Producer names the node that created this store, empty for source
// emitted stores.
func (s *ProductStore) Producer() (name string) {
	return s.producer
}

// Add places a product in the store. Names are unique per store.
func (s *ProductStore) Add(name string, value any) (err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.products.Add(name, value)
}

// addAll merges a product bag into the store.
func (s *ProductStore) addAll(products Products) (err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, name := range products.Names() {
		value, _ := products.value(name)
		if err = s.products.Add(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Contains returns if the store holds a product with the given name.
func (s *ProductStore) Contains(name string) (ok bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.products.Contains(name)
}

// ContainsAll returns if the store holds every one of the given names.
func (s *ProductStore) ContainsAll(names []string) (ok bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for _, name := range names {
		if !s.products.Contains(name) {
			return false
		}
	}
	return true
}

// Names of all products currently in the store.
func (s *ProductStore) Names() (names []string) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.products.Names()
}

// MakeChild creates a process store one level below this one, recording
// the producing node.
func (s *ProductStore) MakeChild(number uint64, levelName, producer string, products Products) (child *ProductStore, err error) {
	child = NewStore(s.id.Child(number, levelName))
	child.producer = producer

	if err = child.addAll(products); err != nil {
		return nil, err
	}
	return child, nil
}

// MakeFlush creates the flush barrier store for this identifier.
func (s *ProductStore) MakeFlush() (flush *ProductStore) {
	return newStoreAt(s.id, StageFlush)
}

// FlushCounts returns the authoritative child counts carried by a flush
// store, when present.
func (s *ProductStore) FlushCounts() (fc FlushCounts, ok bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	raw, ok := s.products.value(FlushName)
	if !ok {
		return fc, false
	}

	fc, ok = raw.(FlushCounts)
	return fc, ok
}

func (s *ProductStore) String() (str string) {
	return s.id.String() + "/" + s.stage.String()
}
