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
	"sort"
	"sync"

	"github.com/tidemark/cascade/internal/shardmap"
)

// serializers holds the named mutual exclusion tokens shared between
// serial nodes. A node tagged with N resources must hold all of them to
// run; tokens are always acquired in sorted name order, which enforces
// a global lock order and prevents deadlock.
type serializers struct {
	tokens *shardmap.StringMap[*sync.Mutex]
}

func newSerializers() (s *serializers) {
	s = &serializers{}
	s.tokens = shardmap.NewString[*sync.Mutex](shardmap.DefaultShards)
	return s
}

// resolve returns the mutexes for the given resource names, ordered for
// acquisition. Unknown names create fresh tokens.
func (s *serializers) resolve(names []string) (tokens []*sync.Mutex) {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	for i, name := range sorted {
		if i > 0 && sorted[i-1] == name {
			continue
		}

		token, _ := s.tokens.GetOrCreate(name, func() *sync.Mutex {
			return &sync.Mutex{}
		})
		tokens = append(tokens, token)
	}
	return tokens
}

// lockAll acquires the given tokens in order.
func lockAll(tokens []*sync.Mutex) {
	for _, token := range tokens {
		token.Lock()
	}
}

// unlockAll releases the given tokens in reverse order.
func unlockAll(tokens []*sync.Mutex) {
	for i := len(tokens) - 1; i >= 0; i-- {
		tokens[i].Unlock()
	}
}
