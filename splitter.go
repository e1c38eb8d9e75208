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

// Generator is the handle a splitter function uses to synthesize a new
// child level below the store it consumed. Each MakeChild call creates
// a child LevelID with the splitter's declared level name, populates
// its store and injects it into the graph. When the splitter returns,
// the engine folds the authoritative child count into the parent's
// flush barrier.
type Generator struct {
	graph     *Graph
	parent    *ProductStore
	nodeName  string
	levelName string

	mtx      sync.Mutex
	count    uint64
	childIDs []*LevelID
}

func newGenerator(g *Graph, parent *ProductStore, nodeName, levelName string) (gen *Generator) {
	gen = &Generator{}
	gen.graph = g
	gen.parent = parent
	gen.nodeName = nodeName
	gen.levelName = levelName
	return gen
}

// MakeChild creates the i-th child below the parent store, populated
// with the given products, and routes it to its consumers.
func (gen *Generator) MakeChild(number uint64, products Products) (child *ProductStore, err error) {
	child, err = gen.parent.MakeChild(number, gen.levelName, gen.nodeName, products)
	if err != nil {
		return nil, err
	}

	child = gen.graph.cache.Put(child)

	gen.mtx.Lock()
	gen.count++
	gen.childIDs = append(gen.childIDs, child.ID())
	gen.mtx.Unlock()

	gen.graph.mux.ingressProcess(child, child.Names())
	return child, nil
}

// results returns the child counts and identifiers produced, keyed by
// the declared child level name.
func (gen *Generator) results() (counts map[string]uint64, childIDs []*LevelID) {
	gen.mtx.Lock()
	defer gen.mtx.Unlock()

	if gen.count > 0 {
		counts = map[string]uint64{gen.levelName: gen.count}
	}
	return counts, gen.childIDs
}
