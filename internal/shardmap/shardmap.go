package shardmap

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

	jump "github.com/dgryski/go-jump"
	wyhash "github.com/dgryski/go-wyhash"
)

// DefaultShards for the concurrent maps used across the engine hot
// path. Shard assignment uses the jump consistent hash so keys spread
// evenly regardless of the shard count.
const DefaultShards = 32

const stringSeed = 0x1d3f8a2c94e57b61

type shard[V any] struct {
	mtx     sync.RWMutex
	entries map[uint64]V
}

// Map is a bucket sharded concurrent map keyed by uint64 hashes.
// Different shards can be operated on in parallel; operations within a
// shard serialize on the shard lock.
type Map[V any] struct {
	shards []*shard[V]
}

// New creates a sharded map with the given shard count, or
// DefaultShards when n < 1.
func New[V any](n int) (m *Map[V]) {
	if n < 1 {
		n = DefaultShards
	}

	m = &Map[V]{}
	m.shards = make([]*shard[V], n)
	for i := range m.shards {
		m.shards[i] = &shard[V]{entries: make(map[uint64]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key uint64) (s *shard[V]) {
	return m.shards[jump.Hash(key, len(m.shards))]
}

// Get returns the value for the given key.
func (m *Map[V]) Get(key uint64) (value V, ok bool) {
	s := m.shardFor(key)
	s.mtx.RLock()
	value, ok = s.entries[key]
	s.mtx.RUnlock()
	return value, ok
}

// GetOrCreate returns the value for the given key, invoking create and
// storing its result when the key is absent. The create call runs under
// the shard lock so at most one value is ever created per key.
func (m *Map[V]) GetOrCreate(key uint64, create func() V) (value V, created bool) {
	s := m.shardFor(key)
	s.mtx.Lock()
	defer s.mtx.Unlock()

	value, ok := s.entries[key]
	if ok {
		return value, false
	}

	value = create()
	s.entries[key] = value
	return value, true
}

// Set stores the value for the given key.
func (m *Map[V]) Set(key uint64, value V) {
	s := m.shardFor(key)
	s.mtx.Lock()
	s.entries[key] = value
	s.mtx.Unlock()
}

// Delete removes the given key.
func (m *Map[V]) Delete(key uint64) {
	s := m.shardFor(key)
	s.mtx.Lock()
	delete(s.entries, key)
	s.mtx.Unlock()
}

// Range applies the callback to every entry. Iteration holds one shard
// lock at a time; a false return stops the iteration.
func (m *Map[V]) Range(cb func(key uint64, value V) bool) {
	for _, s := range m.shards {
		s.mtx.RLock()
		for key, value := range s.entries {
			if !cb(key, value) {
				s.mtx.RUnlock()
				return
			}
		}
		s.mtx.RUnlock()
	}
}

// Len returns the number of entries across all shards.
func (m *Map[V]) Len() (n int) {
	for _, s := range m.shards {
		s.mtx.RLock()
		n += len(s.entries)
		s.mtx.RUnlock()
	}
	return n
}

// StringMap is a sharded concurrent map with string keys, hashed with
// wyhash before shard assignment.
type StringMap[V any] struct {
	inner *Map[entry[V]]
}

type entry[V any] struct {
	key   string
	value V
}

// NewString creates a string keyed sharded map.
func NewString[V any](n int) (m *StringMap[V]) {
	m = &StringMap[V]{}
	m.inner = New[entry[V]](n)
	return m
}

func stringKey(key string) (hash uint64) {
	return wyhash.Hash([]byte(key), stringSeed)
}

// Get returns the value for the given key.
func (m *StringMap[V]) Get(key string) (value V, ok bool) {
	e, ok := m.inner.Get(stringKey(key))
	if !ok || e.key != key {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetOrCreate returns the value for the given key, invoking create and
// storing its result when the key is absent.
func (m *StringMap[V]) GetOrCreate(key string, create func() V) (value V, created bool) {
	e, created := m.inner.GetOrCreate(stringKey(key), func() entry[V] {
		return entry[V]{key: key, value: create()}
	})
	return e.value, created
}

// Set stores the value for the given key.
func (m *StringMap[V]) Set(key string, value V) {
	m.inner.Set(stringKey(key), entry[V]{key: key, value: value})
}

// Range applies the callback to every entry.
func (m *StringMap[V]) Range(cb func(key string, value V) bool) {
	m.inner.Range(func(_ uint64, e entry[V]) bool {
		return cb(e.key, e.value)
	})
}
