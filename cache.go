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
	"github.com/tidemark/cascade/internal/shardmap"
)

// StoreCache maps LevelIDs to their process stage stores. Stores are
// retained until their flush has been propagated through every
// consumer port, then dropped.
type StoreCache struct {
	stores *shardmap.Map[*ProductStore]
}

// NewStoreCache creates an empty cache.
func NewStoreCache() (c *StoreCache) {
	c = &StoreCache{}
	c.stores = shardmap.New[*ProductStore](shardmap.DefaultShards)
	return c
}

// GetOrCreate returns the process store for the given identifier,
// creating an empty one when absent.
func (c *StoreCache) GetOrCreate(id *LevelID) (s *ProductStore) {
	s, _ = c.stores.GetOrCreate(id.key(), func() *ProductStore {
		return NewStore(id)
	})
	return s
}

// Get returns the cached process store for the given identifier.
func (c *StoreCache) Get(id *LevelID) (s *ProductStore, ok bool) {
	return c.stores.Get(id.key())
}

// Put caches the given store, keeping an already cached store for the
// same identifier.
func (c *StoreCache) Put(s *ProductStore) (cached *ProductStore) {
	cached, _ = c.stores.GetOrCreate(s.ID().key(), func() *ProductStore {
		return s
	})
	return cached
}

// GetEmpty creates a detached store for the given identifier and stage.
// Flush stores never enter the cache; process stores do.
func (c *StoreCache) GetEmpty(id *LevelID, stage Stage) (s *ProductStore) {
	if stage == StageFlush {
		return newStoreAt(id, StageFlush)
	}
	return c.GetOrCreate(id)
}

// Drop evicts the store for the given identifier after its flush has
// been fully propagated.
func (c *StoreCache) Drop(id *LevelID) {
	c.stores.Delete(id.key())
}

// Len returns the number of retained stores.
func (c *StoreCache) Len() (n int) {
	return c.stores.Len()
}
