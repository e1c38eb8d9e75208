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
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/emicklei/dot"

	"github.com/tidemark/cascade/log"
	"github.com/tidemark/cascade/types"
)

const (
	// DefaultBufferSize of each node input queue.
	DefaultBufferSize = 4096
)

var (
	errAlreadyExecuted = errors.New("graph already executed")
	errNodeNotFound    = errors.New("node not found")
	errDuplicateStore  = errors.New("duplicate process store")
)

// Graph owns the node set, the multiplexer, the store cache and the
// filter gates, and runs the scheduling loop. Nodes are registered
// through the DeclareX methods before Execute; the graph cannot be
// modified once execution starts.
type Graph struct {
	name   string
	source Source
	logger log.Logger

	maxParallelism int
	bufferSize     int
	sourceProducts []string

	nodes map[string]*node
	order []*node
	gates map[string]*filterGate

	mux     *multiplexer
	cache   *StoreCache
	counter *levelCounter
	sers    *serializers
	closers []Closer

	regErrors []error

	wg  sync.WaitGroup
	sem chan struct{}

	mtx      sync.Mutex
	err      error
	stopped  bool
	executed bool
}

// NewGraph creates a graph fed by the given source, with the
// parallelism bound defaulting to the detected hardware concurrency.
func NewGraph(name string, source Source) (g *Graph) {
	g = &Graph{}
	g.name = name
	g.source = source
	g.maxParallelism = runtime.GOMAXPROCS(0)
	g.bufferSize = DefaultBufferSize
	g.nodes = make(map[string]*node)
	g.gates = make(map[string]*filterGate)
	g.cache = NewStoreCache()
	g.counter = newLevelCounter()
	g.sers = newSerializers()
	g.mux = newMultiplexer(g)
	g.logger = log.New("graph", name)
	return g
}

// SetMaxParallelism bounds the number of user functions running
// concurrently.
func (g *Graph) SetMaxParallelism(n int) {
	if n > 0 {
		g.maxParallelism = n
	}
}

// SetBufferSize sets the input queue capacity of each node port.
func (g *Graph) SetBufferSize(n int) {
	if n > 0 {
		g.bufferSize = n
	}
}

// SetLogger replaces the graph logger. Pass log.Discard to silence a
// graph entirely, or a logger built from log.Options to tune level
// and encoding.
func (g *Graph) SetLogger(l log.Logger) {
	if l != nil {
		g.logger = l
	}
}

// SetSourceProducts declares the product names the source emits,
// enabling the missing product dependency check at registration.
func (g *Graph) SetSourceProducts(names ...string) {
	g.sourceProducts = names
}

// AddCloser registers a collaborator to close on engine shutdown.
func (g *Graph) AddCloser(c Closer) {
	g.closers = append(g.closers, c)
}

func (g *Graph) regError(err error) {
	g.regErrors = append(g.regErrors, err)
}

// gateFor returns the result collector of the given filter.
func (g *Graph) gateFor(name string) (gate *filterGate) {
	return g.gates[name]
}

// fatal records the first runtime error, annotated with the offending
// node, and triggers a drain and stop: the source stops producing,
// in-flight work settles, no new work is scheduled.
func (g *Graph) fatal(nodeName string, err error) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if g.err == nil {
		if nodeName != "" {
			err = fmt.Errorf("node %s: %w", nodeName, err)
		}
		g.err = err
		g.logger.Errorw("fatal graph error", "error", err)
	}
	g.stopped = true
}

func (g *Graph) failed() (failed bool) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.stopped
}

func (g *Graph) runError() (err error) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.err
}

// ExecutionCount returns the number of completed runs of the named
// node.
func (g *Graph) ExecutionCount(name string) (count uint64, err error) {
	n, ok := g.nodes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errNodeNotFound, name)
	}
	return n.executionCount(), nil
}

// validate aggregates registration errors: structural problems per
// node kind, unresolved filter references, missing product
// dependencies and product cycles.
func (g *Graph) validate() (err error) {
	produced := make(map[string]bool)
	for _, name := range g.sourceProducts {
		produced[name] = true
	}
	for _, n := range g.order {
		for _, name := range n.outputs {
			produced[name] = true
		}
		for _, name := range n.provides {
			produced[name] = true
		}
	}

	for _, n := range g.order {
		switch n.kind {
		case types.Filter:
			if n.filterFn == nil {
				g.regError(fmt.Errorf("filter %s: nil predicate", n.name))
			}
			if len(n.inputs) == 0 {
				g.regError(fmt.Errorf("filter %s: no inputs", n.name))
			}
		case types.Monitor:
			if len(n.inputs) == 0 {
				g.regError(fmt.Errorf("monitor %s: no inputs", n.name))
			}
		case types.Transform:
			if len(n.outputs) == 0 {
				g.regError(fmt.Errorf("transform %s: no outputs", n.name))
			}
		case types.Reduction:
			if n.over == "" {
				g.regError(fmt.Errorf("reduction %s: no level to reduce over", n.name))
			}
			if len(n.outputs) != 1 {
				g.regError(fmt.Errorf("reduction %s: exactly one output required", n.name))
			}
			if n.init == nil {
				g.regError(fmt.Errorf("reduction %s: nil initializer", n.name))
			}
		case types.Splitter:
			if n.into == "" {
				g.regError(fmt.Errorf("splitter %s: no child level name", n.name))
			}
		}

		for _, filterName := range n.preceding {
			f, ok := g.nodes[filterName]
			if !ok || f.kind != types.Filter {
				g.regError(fmt.Errorf("node %s: preceding filter %q not registered", n.name, filterName))
			}
		}

		if len(g.sourceProducts) > 0 {
			for _, name := range n.inputs {
				if !produced[name] {
					g.regError(fmt.Errorf("node %s: no producer for product %q", n.name, name))
				}
			}
		}
	}

	g.checkCycles()

	if len(g.regErrors) == 0 {
		return nil
	}

	msgs := make([]string, len(g.regErrors))
	for i, regErr := range g.regErrors {
		msgs[i] = regErr.Error()
	}
	return fmt.Errorf("registration failed: %s", strings.Join(msgs, "; "))
}

// checkCycles walks the product dependency graph: a node consuming a
// product it transitively produces makes the dataflow unschedulable.
func (g *Graph) checkCycles() {
	producers := make(map[string][]*node)
	for _, n := range g.order {
		for _, name := range n.outputs {
			producers[name] = append(producers[name], n)
		}
		for _, name := range n.provides {
			producers[name] = append(producers[name], n)
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[*node]int)

	var visit func(n *node) bool
	visit = func(n *node) (cyclic bool) {
		switch state[n] {
		case visiting:
			return true
		case visited:
			return false
		}

		state[n] = visiting
		for _, input := range n.inputs {
			for _, producer := range producers[input] {
				if visit(producer) {
					state[n] = visited
					return true
				}
			}
		}
		state[n] = visited
		return false
	}

	for _, n := range g.order {
		if state[n] == unvisited && visit(n) {
			g.regError(fmt.Errorf("node %s: product dependency cycle", n.name))
		}
	}
}

// resolve wires gates, serializer tokens and ports, and starts the
// node workers.
func (g *Graph) resolve() {
	g.sem = make(chan struct{}, g.maxParallelism)

	for _, n := range g.order {
		if n.kind == types.Filter {
			g.gates[n.name] = newFilterGate(n.name)
		}
	}

	for _, n := range g.order {
		for _, filterName := range n.preceding {
			if gate, ok := g.gates[filterName]; ok {
				n.gates = append(n.gates, gate)
			}
		}

		if len(n.resources) > 0 {
			n.tokens = g.sers.resolve(n.resources)
		}

		g.mux.register(n)
		n.start()
	}
}

// Execute activates the source and drains the graph: every store is
// routed to its consumers, flush barriers are synthesized per
// hierarchy level, and the call returns once the source is exhausted
// and every in-flight reduction has emitted.
func (g *Graph) Execute() (err error) {
	g.mtx.Lock()
	if g.executed {
		g.mtx.Unlock()
		return errAlreadyExecuted
	}
	g.executed = true
	g.mtx.Unlock()

	if err = g.validate(); err != nil {
		return err
	}

	g.resolve()
	g.logger.Infow("executing graph",
		"nodes", len(g.order), "max_parallelism", g.maxParallelism)

	u := newUsage()

	g.pump()

	// First quiesce: everything not parked in a filter gate settles.
	g.wg.Wait()

	// End of stream: undecided filters become rejections and release
	// their parked deliveries.
	for _, gate := range g.gates {
		gate.finalize()
	}
	g.wg.Wait()

	g.checkReductions()
	g.checkParkedFlushes()

	g.shutdown()
	u.report(g.logger)

	return g.runError()
}

// pump drives the source, routing each store and synthesizing a flush
// for every identifier once its branch completes. The stack mirrors
// the path from the root to the most recent store; leaving a branch
// flushes the abandoned identifiers deepest first.
func (g *Graph) pump() {
	stack := []*LevelID{Base()}

	for {
		if g.failed() {
			break
		}

		s, err := g.source.Next()
		if err != nil {
			g.fatal("", fmt.Errorf("source: %w", err))
			break
		}
		if s == nil {
			break
		}

		id := s.ID()
		top := stack[len(stack)-1]

		if id.Equal(top) {
			g.fatal("", fmt.Errorf("%w: %s", errDuplicateStore, id))
			break
		}

		for len(stack) > 1 && !stack[len(stack)-1].IsAncestorOf(id) {
			g.flushID(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		}

		// Push the ancestor chain between the stack top and the new
		// identifier, materializing stores for skipped levels.
		top = stack[len(stack)-1]
		var chain []*LevelID
		for anc := id; anc != nil && anc.Depth() > top.Depth(); anc = anc.Parent() {
			chain = append(chain, anc)
		}
		for i := len(chain) - 1; i >= 0; i-- {
			g.counter.recordDescendant(chain[i])
			stack = append(stack, chain[i])
			if chain[i] != id {
				g.cache.GetOrCreate(chain[i])
			}
		}

		if cached := g.cache.Put(s); cached != s {
			g.fatal("", fmt.Errorf("%w: %s", errDuplicateStore, id))
			break
		}

		g.mux.ingressProcess(s, s.Names())
	}

	// Exhausted: flush everything still open, the root included.
	for len(stack) > 0 {
		g.flushID(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
	}
}

func (g *Graph) flushID(id *LevelID) {
	g.mux.ingressFlush(id, g.counter.take(id))
}

// checkReductions surfaces reductions that never completed: a bucket
// whose terminal flush arrived with mismatched counts, or one whose
// flush never arrived at all.
func (g *Graph) checkReductions() {
	for _, n := range g.order {
		if n.kind != types.Reduction || n.rstate == nil {
			continue
		}

		for _, b := range n.rstate.incomplete() {
			b.mtx.Lock()
			parent := b.parent
			flushSeen := b.flushSeen
			got := b.contribs + b.suppressed
			expected := b.expected
			b.mtx.Unlock()

			if flushSeen {
				g.fatal(n.name, fmt.Errorf("%w: %s got %d contributions, expected %d",
					ErrCountMismatch, parent, got, expected))
				continue
			}
			g.fatal(n.name, fmt.Errorf("%w: no flush for %s", ErrUnexpectedFlush, parent))
		}
	}
}

func (g *Graph) checkParkedFlushes() {
	for _, id := range g.mux.parkedFlushes() {
		g.fatal("", fmt.Errorf("%w: barrier for %s never released", ErrUnexpectedFlush, id))
	}
}

// shutdown stops the workers and closes registered collaborators.
func (g *Graph) shutdown() {
	for _, n := range g.order {
		close(n.in)
	}

	if c, ok := g.source.(Closer); ok {
		if err := c.Close(); err != nil {
			g.logger.Warnw("closing source", "error", err)
		}
	}
	for _, c := range g.closers {
		if err := c.Close(); err != nil {
			g.logger.Warnw("closing collaborator", "error", err)
		}
	}
}

// DotGraph renders the registered nodes and their product edges in
// graphviz DOT form.
func (g *Graph) DotGraph() (graph string) {
	dg := dot.NewGraph(dot.Directed)
	dg.Attr("rankdir", "LR")

	dotNodes := make(map[string]dot.Node)
	for _, n := range g.order {
		dn := dg.Node(n.name)
		dn.Attr("shape", "box")
		dn.Attr("xlabel", n.kind.String())
		dotNodes[n.name] = dn
	}

	producers := make(map[string][]*node)
	for _, n := range g.order {
		for _, name := range n.outputs {
			producers[name] = append(producers[name], n)
		}
		for _, name := range n.provides {
			producers[name] = append(producers[name], n)
		}
	}

	for _, n := range g.order {
		for _, input := range n.inputs {
			for _, producer := range producers[input] {
				dg.Edge(dotNodes[producer.name], dotNodes[n.name], input)
			}
		}
		for _, filterName := range n.preceding {
			if _, ok := dotNodes[filterName]; ok {
				e := dg.Edge(dotNodes[filterName], dotNodes[n.name])
				e.Attr("style", "dashed")
			}
		}
	}

	return dg.String()
}
