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
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/tidemark/cascade/internal/shardmap"
	"github.com/tidemark/cascade/types"
)

type gateState uint8

const (
	gateAllowed = gateState(0)
	gateWait    = gateState(1)
	gateRefused = gateState(2)
)

// node is a registered consumer port in the graph. Each node owns one
// input queue and a worker draining it; messages are delivered in
// strict originalID order, while the user function runs are handed to
// the dispatcher under the graph's parallelism bound.
type node struct {
	graph *Graph

	name      string
	kind      types.Kind
	inputs    []string
	outputs   []string
	preceding []string
	over      string
	into      string
	provides  []string

	limit     int
	resources []string

	filterFn    FilterFunc
	monitorFn   MonitorFunc
	transformFn TransformFunc
	combineFn   ReductionFunc
	init        Initializer
	splitFn     SplitterFunc
	outputFn    OutputFunc

	gates  []*filterGate
	tokens []*sync.Mutex
	sem    chan struct{}

	in     chan Message
	claims *shardmap.Map[bool]
	rstate *reductionState

	execs atomic.Uint64
}

// executionCount returns the number of completed user function runs.
func (n *node) executionCount() (count uint64) {
	return n.execs.Load()
}

func (n *node) start() {
	n.in = make(chan Message, n.graph.bufferSize)
	n.claims = shardmap.New[bool](shardmap.DefaultShards)

	if n.kind == types.Reduction {
		n.rstate = newReductionState()
	}
	if n.limit > 0 {
		n.sem = make(chan struct{}, n.limit)
	}

	go n.worker()
}

func (n *node) worker() {
	for msg := range n.in {
		if msg.IsFlush() {
			n.handleFlush(msg)
			continue
		}
		n.deliver(msg)
	}
}

// deliver routes one process message through the node's filter gates
// and into execution. The caller holds one in-flight token; every path
// out of deliver releases it exactly once.
func (n *node) deliver(msg Message) {
	state, gate := n.gateStatus(msg.Store().ID())

	switch state {
	case gateWait:
		if gate.buffer(n, msg, msg.Store().ID()) {
			n.graph.wg.Done()
			return
		}
		// The stream ended while we were checking: undecided filters
		// now count as rejections.
		fallthrough

	case gateRefused:
		n.suppress(msg)
		n.graph.wg.Done()
		return
	}

	n.process(msg)
}

// redeliver re-enters a delivery parked in a filter gate.
func (n *node) redeliver(msg Message) {
	n.graph.wg.Add(1)
	n.deliver(msg)
}

func (n *node) gateStatus(id *LevelID) (state gateState, waitOn *filterGate) {
	for _, g := range n.gates {
		switch g.decisionFor(id) {
		case decisionReject:
			return gateRefused, nil
		case decisionPending:
			return gateWait, g
		}
	}
	return gateAllowed, nil
}

// suppress accounts a delivery refused by its gating filters. The
// contribution it would have made to a downstream reduction is
// omitted; a splitter obligation it carried is released.
func (n *node) suppress(msg Message) {
	id := msg.Store().ID()

	switch n.kind {
	case types.Reduction:
		parent := id.ParentAt(n.over)
		if parent == nil {
			return
		}
		bucket := n.rstate.bucketFor(parent, n.init)
		if bucket.noteSuppressed(id) {
			n.emitReduction(bucket)
		}

	case types.Splitter:
		n.graph.mux.splitterSettled(id, nil, nil)
	}
}

// process claims and executes one delivery. Joins over multi-input
// nodes resolve here: a node runs once per store identifier, when the
// store carries every declared input. Output nodes are not claimed:
// they run for every delivered message, so products reinjected at an
// identifier the sink already saw still reach it.
func (n *node) process(msg Message) {
	s := msg.Store()
	id := s.ID()

	if !s.ContainsAll(n.inputs) {
		// Another product message may complete the join later.
		if n.kind == types.Splitter {
			n.graph.mux.splitterSettled(id, nil, nil)
		}
		n.graph.wg.Done()
		return
	}

	if n.kind == types.Reduction {
		n.processReduction(msg)
		return
	}

	if n.kind != types.Output && !n.claim(id) {
		if n.kind == types.Splitter {
			n.graph.mux.splitterSettled(id, nil, nil)
		}
		n.graph.wg.Done()
		return
	}

	switch n.kind {
	case types.Filter:
		n.dispatch(func() error { return n.runFilter(s) }, nil)
	case types.Monitor:
		n.dispatch(func() error { return n.monitorFn(s) }, nil)
	case types.Transform:
		n.dispatch(func() error { return n.runTransform(s) }, nil)
	case types.Splitter:
		settle := func() { n.graph.mux.splitterSettled(id, nil, nil) }
		n.dispatch(func() error { return n.runSplitter(s) }, settle)
	case types.Output:
		n.dispatch(func() error { return n.runOutput(msg) }, nil)
	}
}

// claim marks the identifier as executed by this node, returning false
// when a previous delivery already claimed it.
func (n *node) claim(id *LevelID) (claimed bool) {
	_, claimed = n.claims.GetOrCreate(id.key(), func() bool { return true })
	return claimed
}

// dispatch hands a run to a goroutine under the graph parallelism
// bound, the node concurrency limit and its serializer tokens. The
// caller's in-flight token transfers to the goroutine. skip runs
// instead of run when the graph already failed.
func (n *node) dispatch(run func() error, skip func()) {
	go func() {
		defer n.graph.wg.Done()

		if n.graph.failed() {
			if skip != nil {
				skip()
			}
			return
		}

		n.graph.sem <- struct{}{}
		if n.sem != nil {
			n.sem <- struct{}{}
		}
		lockAll(n.tokens)

		err := run()

		unlockAll(n.tokens)
		if n.sem != nil {
			<-n.sem
		}
		<-n.graph.sem

		if err != nil {
			n.graph.fatal(n.name, err)
			return
		}

		n.execs.Add(1)
		observeExecution(n.name, n.kind)
	}()
}

func (n *node) runFilter(s *ProductStore) (err error) {
	accept, err := n.filterFn(s)
	if err != nil {
		return err
	}

	n.graph.gateFor(n.name).decide(s.ID(), accept)
	return nil
}

func (n *node) runTransform(s *ProductStore) (err error) {
	out, err := n.transformFn(s)
	if err != nil {
		return err
	}

	for _, name := range n.outputs {
		if !out.Contains(name) {
			return fmt.Errorf("%w: transform %s did not produce %q", ErrMissingProduct, n.name, name)
		}
	}

	if err = s.addAll(out); err != nil {
		return err
	}

	n.graph.mux.ingressProcess(s, out.Names())
	return nil
}

func (n *node) runSplitter(s *ProductStore) (err error) {
	gen := newGenerator(n.graph, s, n.name, n.into)

	err = n.splitFn(gen, s)

	// Children already injected stay in the graph; the obligation is
	// settled either way so the parent barrier can proceed.
	counts, childIDs := gen.results()
	n.graph.mux.splitterSettled(s.ID(), counts, childIDs)
	return err
}

func (n *node) runOutput(msg Message) (err error) {
	return n.outputFn(msg.Store(), msg.names)
}

func (n *node) processReduction(msg Message) {
	s := msg.Store()
	id := s.ID()

	parent := id.ParentAt(n.over)
	if parent == nil {
		// No ancestor at the reduced level: not a contribution.
		n.graph.wg.Done()
		return
	}

	if !n.claim(id) {
		n.graph.wg.Done()
		return
	}

	if done, _ := n.rstate.done.Get(parent.key()); done {
		n.graph.fatal(n.name, errors.Wrapf(ErrUnexpectedFlush,
			"contribution at %s after reduction emitted", id))
		n.graph.wg.Done()
		return
	}

	bucket := n.rstate.bucketFor(parent, n.init)
	bucket.noteContribution(id)

	n.dispatch(func() error {
		complete, err := bucket.combine(n.combineFn, s)
		if err != nil {
			return errors.Wrapf(err, "combining %s at %s", n.name, id)
		}
		if complete {
			n.emitReduction(bucket)
		}
		return nil
	}, nil)
}

// handleFlush performs the node's barrier bookkeeping and releases the
// shared fan out state, evicting the flushed store once every port has
// seen it.
func (n *node) handleFlush(msg Message) {
	if n.kind == types.Reduction {
		n.reduceFlush(msg)
	}

	msg.flush.release(n.graph)
	n.graph.wg.Done()
}

func (n *node) reduceFlush(msg Message) {
	fid := msg.Store().ID()
	if fid.LevelName() != n.over {
		return
	}

	if done, _ := n.rstate.done.Get(fid.key()); done {
		n.graph.fatal(n.name, errors.Wrapf(ErrUnexpectedFlush, "second flush for %s", fid))
		return
	}

	bucket := n.rstate.bucketFor(fid, n.init)

	complete, err := bucket.observeFlush(msg.Store(), msg.OriginalID())
	if err != nil {
		n.graph.fatal(n.name, err)
		return
	}
	if complete {
		n.emitReduction(bucket)
	}
}

// emitReduction places the finished accumulator at the parent
// identifier as the declared output product and reinjects it.
func (n *node) emitReduction(b *accumulator) {
	value := b.snapshot()
	n.rstate.finish(b.parent)

	parentStore := n.graph.cache.GetOrCreate(b.parent)
	if err := parentStore.Add(n.outputs[0], value); err != nil {
		n.graph.fatal(n.name, err)
		return
	}

	n.graph.mux.ingressProcess(parentStore, []string{n.outputs[0]})
}
