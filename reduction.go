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
	"sync"

	"github.com/tidemark/cascade/internal/shardmap"
)

var (
	// ErrUnexpectedFlush is raised on a second flush for the same
	// identifier, on a contribution arriving after its reduction
	// emitted, and when a reduction bucket or a parked barrier never
	// sees its flush by the end of the run. A flush with no prior
	// process store is not detected.
	ErrUnexpectedFlush = errors.New("unexpected flush")

	// ErrCountMismatch is raised when a reduction completes with a
	// contribution count differing from the authoritative expected
	// count.
	ErrCountMismatch = errors.New("reduction count mismatch")
)

// accumulator is the per (reduction, parent LevelID) bucket. Created
// lazily on first contribution, destroyed after the matching flush has
// been observed and the output emitted.
type accumulator struct {
	mtx sync.Mutex

	parent *LevelID
	value  any

	// contribs counts announced contributions; combined counts the
	// combine calls that actually ran. Completion requires both to
	// agree so a flush racing an in-flight combine never emits early.
	contribs   uint64
	combined   uint64
	suppressed uint64

	// perLevel tracks how many contributions arrived from each
	// sub-level name, matched against FlushCounts at completion.
	perLevel map[string]uint64

	flushSeen     bool
	flushID       uint64
	expected      uint64
	expectedKnown bool
	emitted       bool
}

// reductionState is the accumulator table of a single reduction node.
type reductionState struct {
	buckets *shardmap.Map[*accumulator]
	// done tombstones emitted parents so a late flush or contribution
	// for a completed reduction fails loudly instead of skewing.
	done *shardmap.Map[bool]
}

func newReductionState() (rs *reductionState) {
	rs = &reductionState{}
	rs.buckets = shardmap.New[*accumulator](shardmap.DefaultShards)
	rs.done = shardmap.New[bool](shardmap.DefaultShards)
	return rs
}

func (rs *reductionState) bucketFor(parent *LevelID, init func() any) (b *accumulator) {
	b, _ = rs.buckets.GetOrCreate(parent.key(), func() *accumulator {
		return &accumulator{parent: parent, value: init(), perLevel: make(map[string]uint64)}
	})
	return b
}

// noteContribution announces a contribution from the given store
// identifier before its combine call is dispatched.
func (b *accumulator) noteContribution(from *LevelID) {
	b.mtx.Lock()
	b.contribs++
	b.perLevel[from.LevelName()]++
	b.mtx.Unlock()
}

// noteSuppressed accounts a contribution omitted by a gating filter.
func (b *accumulator) noteSuppressed(from *LevelID) (complete bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.suppressed++
	b.perLevel[from.LevelName()]++
	return b.completeLocked()
}

// combine folds a store into the accumulator under the bucket lock.
// Different buckets combine in parallel; within one bucket combine
// calls are serialized.
func (b *accumulator) combine(fn ReductionFunc, s *ProductStore) (complete bool, err error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	value, err := fn(b.value, s)
	if err != nil {
		return false, err
	}

	b.value = value
	b.combined++
	return b.completeLocked(), nil
}

// observeFlush records the terminal flush and computes the expected
// contribution count from the authoritative FlushCounts, falling back
// to the observed count for sub-levels the record does not name.
func (b *accumulator) observeFlush(flush *ProductStore, originalID uint64) (complete bool, err error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.flushSeen {
		return false, fmt.Errorf("%w: second flush for %s", ErrUnexpectedFlush, b.parent)
	}

	b.flushSeen = true
	b.flushID = originalID

	fc, ok := flush.FlushCounts()
	if !ok {
		// No authoritative counts: trust the observed totals.
		b.expected = b.contribs + b.suppressed
		b.expectedKnown = true
		return b.completeLocked(), nil
	}

	for levelName, observed := range b.perLevel {
		if count, named := fc.CountFor(levelName); named {
			b.expected += count
			continue
		}
		b.expected += observed
	}
	b.expectedKnown = true

	if b.contribs+b.suppressed > b.expected {
		return false, fmt.Errorf("%w: %s got %d contributions, expected %d",
			ErrCountMismatch, b.parent, b.contribs+b.suppressed, b.expected)
	}
	return b.completeLocked(), nil
}

// completeLocked reports whether the bucket is ready to emit. Callers
// hold the bucket lock. The emitted flag flips exactly once.
func (b *accumulator) completeLocked() (complete bool) {
	if b.emitted || !b.flushSeen || !b.expectedKnown {
		return false
	}

	if b.contribs+b.suppressed != b.expected || b.combined != b.contribs {
		return false
	}

	b.emitted = true
	return true
}

// snapshot returns the accumulator value. Only valid after emission.
func (b *accumulator) snapshot() (value any) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.value
}

// finish destroys the bucket after emission and tombstones the parent.
func (rs *reductionState) finish(parent *LevelID) {
	rs.buckets.Delete(parent.key())
	rs.done.Set(parent.key(), true)
}

// incomplete returns the buckets still pending, for the end of run
// consistency check.
func (rs *reductionState) incomplete() (pending []*accumulator) {
	rs.buckets.Range(func(_ uint64, b *accumulator) bool {
		pending = append(pending, b)
		return true
	})
	return pending
}
