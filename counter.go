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

	"github.com/tidemark/cascade/internal/shardmap"
)

// levelCounter tracks, per ancestor identifier, how many stores the
// source produced at each named sub-level below it. The counts become
// the FlushCounts record of the ancestor's synthesized flush.
type levelCounter struct {
	counts *shardmap.Map[*levelCount]
}

type levelCount struct {
	mtx      sync.Mutex
	perLevel map[string]uint64
}

func newLevelCounter() (c *levelCounter) {
	c = &levelCounter{}
	c.counts = shardmap.New[*levelCount](shardmap.DefaultShards)
	return c
}

// recordDescendant notes one store at the given level name below every
// proper ancestor of the store's identifier.
func (c *levelCounter) recordDescendant(id *LevelID) {
	levelName := id.LevelName()

	for anc := id.Parent(); anc != nil; anc = anc.Parent() {
		lc, _ := c.counts.GetOrCreate(anc.key(), func() *levelCount {
			return &levelCount{perLevel: make(map[string]uint64)}
		})

		lc.mtx.Lock()
		lc.perLevel[levelName]++
		lc.mtx.Unlock()
	}
}

// take returns and clears the recorded counts below the given
// identifier. Returns nil when nothing was recorded.
func (c *levelCounter) take(id *LevelID) (perLevel map[string]uint64) {
	lc, ok := c.counts.Get(id.key())
	if !ok {
		return nil
	}
	c.counts.Delete(id.key())

	lc.mtx.Lock()
	perLevel = lc.perLevel
	lc.perLevel = nil
	lc.mtx.Unlock()
	return perLevel
}
