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

	"github.com/tidemark/cascade/internal/shardmap"
	"github.com/tidemark/cascade/types"
)

// multiplexer routes stores to consumer ports by product name. Ingress
// assigns each message a monotonically increasing originalID under the
// ingress lock, so per port delivery order follows ingress order.
//
// Flushes for an identifier consumed by splitters are parked until
// every splitter delivery for that identifier has settled; the
// splitters' authoritative child counts are merged into the flush
// before fan out, so the barrier always trails the children it counts.
type multiplexer struct {
	graph *Graph

	mtx sync.Mutex
	seq uint64

	index    map[string][]*node
	wildcard []*node
	ports    []*node

	entries *shardmap.Map[*flushEntry]
}

// flushEntry tracks the flush lifecycle of one identifier: outstanding
// splitter deliveries, accumulated child counts and identifiers, and
// whether the barrier has been parked or already fanned out.
type flushEntry struct {
	mtx         sync.Mutex
	id          *LevelID
	obligations int
	counts      map[string]uint64
	childIDs    []*LevelID
	parked      bool
	flushed     bool
}

// flushDelivery is the shared fan out state of one flush message. The
// last port to process it drops the flushed store and any splitter
// children from the cache.
type flushDelivery struct {
	id        *LevelID
	childIDs  []*LevelID
	remaining atomic.Int64
}

func (fd *flushDelivery) release(g *Graph) {
	if fd.remaining.Add(-1) != 0 {
		return
	}

	g.cache.Drop(fd.id)
	for _, child := range fd.childIDs {
		g.cache.Drop(child)
	}
}

func newMultiplexer(g *Graph) (m *multiplexer) {
	m = &multiplexer{}
	m.graph = g
	m.index = make(map[string][]*node)
	m.entries = shardmap.New[*flushEntry](shardmap.DefaultShards)
	return m
}

// register builds the product name to port index.
func (m *multiplexer) register(n *node) {
	m.ports = append(m.ports, n)

	if n.kind == types.Output && len(n.inputs) == 0 {
		m.wildcard = append(m.wildcard, n)
		return
	}

	for _, name := range n.inputs {
		m.index[name] = append(m.index[name], n)
	}
}

func (m *multiplexer) entryFor(id *LevelID) (e *flushEntry) {
	e, _ = m.entries.GetOrCreate(id.key(), func() *flushEntry {
		return &flushEntry{id: id, counts: make(map[string]uint64)}
	})
	return e
}

// ingressProcess fans a process store out to every port registered for
// one of the announced product names.
func (m *multiplexer) ingressProcess(s *ProductStore, names []string) {
	seen := make(map[*node]bool)
	var targets []*node

	for _, name := range names {
		for _, n := range m.index[name] {
			if !seen[n] {
				seen[n] = true
				targets = append(targets, n)
			}
		}
	}
	for _, n := range m.wildcard {
		if !seen[n] {
			seen[n] = true
			targets = append(targets, n)
		}
	}

	if len(targets) == 0 {
		return
	}

	splitters := 0
	for _, n := range targets {
		if n.kind == types.Splitter {
			splitters++
		}
	}
	if splitters > 0 {
		e := m.entryFor(s.ID())
		e.mtx.Lock()
		e.obligations += splitters
		e.mtx.Unlock()
	}

	m.mtx.Lock()
	m.seq++
	msg := Message{store: s, originalID: m.seq, names: names}
	for _, n := range targets {
		m.graph.wg.Add(1)
		n.in <- msg
	}
	m.mtx.Unlock()
}

// ingressFlush accepts the barrier for an identifier together with the
// per-level counts the driver observed below it. A second flush for the
// same identifier is fatal.
func (m *multiplexer) ingressFlush(id *LevelID, driverCounts map[string]uint64) {
	e := m.entryFor(id)

	e.mtx.Lock()
	if e.flushed || e.parked {
		e.mtx.Unlock()
		m.graph.fatal("", fmt.Errorf("%w: second flush for %s", ErrUnexpectedFlush, id))
		return
	}

	for levelName, count := range driverCounts {
		e.counts[levelName] += count
	}

	if e.obligations > 0 {
		e.parked = true
		e.mtx.Unlock()
		return
	}

	e.flushed = true
	counts, childIDs := e.counts, e.childIDs
	e.mtx.Unlock()

	m.fanOutFlush(id, counts, childIDs)
}

// splitterSettled releases one splitter delivery obligation for the
// given identifier, merging the counts and children the splitter
// produced. A parked barrier fans out once the last obligation clears.
func (m *multiplexer) splitterSettled(id *LevelID, counts map[string]uint64, childIDs []*LevelID) {
	e := m.entryFor(id)

	e.mtx.Lock()
	for levelName, count := range counts {
		e.counts[levelName] += count
	}
	e.childIDs = append(e.childIDs, childIDs...)
	e.obligations--

	if e.obligations > 0 || !e.parked {
		e.mtx.Unlock()
		return
	}

	e.parked = false
	e.flushed = true
	merged, children := e.counts, e.childIDs
	e.mtx.Unlock()

	m.fanOutFlush(id, merged, children)
}

func (m *multiplexer) fanOutFlush(id *LevelID, counts map[string]uint64, childIDs []*LevelID) {
	flush := newStoreAt(id, StageFlush)
	if len(counts) > 0 {
		// The add cannot fail on a fresh store.
		_ = flush.Add(FlushName, FlushCounts{LevelName: id.LevelName(), Counts: counts})
	}

	if len(m.ports) == 0 {
		m.graph.cache.Drop(id)
		return
	}

	fd := &flushDelivery{id: id, childIDs: childIDs}
	fd.remaining.Store(int64(len(m.ports)))

	m.mtx.Lock()
	m.seq++
	msg := Message{store: flush, originalID: m.seq, flush: fd}
	for _, n := range m.ports {
		m.graph.wg.Add(1)
		n.in <- msg
	}
	m.mtx.Unlock()
}

// parkedFlushes reports identifiers whose barrier is still waiting on
// splitter obligations, for the end of run consistency check.
func (m *multiplexer) parkedFlushes() (ids []*LevelID) {
	m.entries.Range(func(_ uint64, e *flushEntry) bool {
		e.mtx.Lock()
		if e.parked {
			ids = append(ids, e.id)
		}
		e.mtx.Unlock()
		return true
	})
	return ids
}
