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
	"fmt"

	"github.com/tidemark/cascade/types"
)

// Decl is the fluent declaration handle returned by the DeclareX
// methods. Chained calls refine the node before execution; structural
// problems accumulate as registration errors and surface together at
// Execute entry.
type Decl struct {
	g *Graph
	n *node
}

// Input declares the product names this node consumes.
func (d *Decl) Input(names ...string) *Decl {
	d.n.inputs = append(d.n.inputs, names...)
	return d
}

// ReactTo is an alias of Input used by reductions and transforms
// triggered by upstream products.
func (d *Decl) ReactTo(names ...string) *Decl {
	return d.Input(names...)
}

// Output declares the product names this node produces.
func (d *Decl) Output(names ...string) *Decl {
	d.n.outputs = append(d.n.outputs, names...)
	return d
}

// Over names the hierarchy level a reduction aggregates at: each
// contribution is folded into the accumulator of its nearest ancestor
// with this level name.
func (d *Decl) Over(levelName string) *Decl {
	d.n.over = levelName
	return d
}

// Into names the child level a splitter synthesizes.
func (d *Decl) Into(levelName string) *Decl {
	d.n.into = levelName
	return d
}

// Provides declares the product names a splitter places in each child
// store.
func (d *Decl) Provides(names ...string) *Decl {
	d.n.provides = append(d.n.provides, names...)
	return d
}

// PrecededBy gates this node on the listed filters: it runs only when
// every one of them accepted the store's identifier or its nearest
// decided ancestor.
func (d *Decl) PrecededBy(filterNames ...string) *Decl {
	d.n.preceding = append(d.n.preceding, filterNames...)
	return d
}

// Unlimited lets the node run concurrently across identifiers. This is
// the default.
func (d *Decl) Unlimited() *Decl {
	d.n.limit = 0
	d.n.resources = nil
	return d
}

// Limit bounds the node to n concurrent runs.
func (d *Decl) Limit(n int) *Decl {
	if n < 1 {
		d.g.regError(fmt.Errorf("node %s: concurrency limit %d", d.n.name, n))
		return d
	}
	d.n.limit = n
	return d
}

// Serial runs the node under mutual exclusion on the given serializer
// resources; a node must hold every listed token to run, and tokens
// are acquired in a global sorted order. Without arguments the node
// serializes on its own name.
func (d *Decl) Serial(resources ...string) *Decl {
	if len(resources) == 0 {
		resources = []string{d.n.name}
	}
	d.n.resources = append(d.n.resources, resources...)
	return d
}

func (g *Graph) declare(name string, kind types.Kind) (d *Decl) {
	n := &node{graph: g, name: name, kind: kind}

	if name == "" {
		g.regError(fmt.Errorf("%s node with empty name", kind))
	}
	if _, exists := g.nodes[name]; exists {
		g.regError(fmt.Errorf("duplicate node name %q", name))
	} else if name != "" {
		g.nodes[name] = n
		g.order = append(g.order, n)
	}

	return &Decl{g: g, n: n}
}

// DeclareFilter registers a boolean predicate gating downstream
// consumers that name it in PrecededBy.
func (g *Graph) DeclareFilter(name string, fn FilterFunc) (d *Decl) {
	d = g.declare(name, types.Filter)
	d.n.filterFn = fn
	return d
}

// DeclareMonitor registers a sink observing products without producing
// any.
func (g *Graph) DeclareMonitor(name string, fn MonitorFunc) (d *Decl) {
	d = g.declare(name, types.Monitor)
	d.n.monitorFn = fn
	return d
}

// DeclareTransform registers a node deriving new products from its
// inputs.
func (g *Graph) DeclareTransform(name string, fn TransformFunc) (d *Decl) {
	d = g.declare(name, types.Transform)
	d.n.transformFn = fn
	return d
}

// DeclareReduction registers an accumulation over a hierarchy level.
// init supplies a fresh accumulator per bucket; an empty reduction
// emits exactly init().
func (g *Graph) DeclareReduction(name string, combine ReductionFunc, init Initializer) (d *Decl) {
	d = g.declare(name, types.Reduction)
	d.n.combineFn = combine
	d.n.init = init
	return d
}

// DeclareSplitter registers a node synthesizing a new child level at
// runtime. The engine emits the parent flush with the authoritative
// child count when the splitter returns.
func (g *Graph) DeclareSplitter(name string, fn SplitterFunc) (d *Decl) {
	d = g.declare(name, types.Splitter)
	d.n.splitFn = fn
	return d
}

// DeclareOutput registers a sink invoked for every routed process
// store. Without declared inputs the sink observes every product in
// the stream.
func (g *Graph) DeclareOutput(name string, fn OutputFunc) (d *Decl) {
	d = g.declare(name, types.Output)
	d.n.outputFn = fn
	return d
}
