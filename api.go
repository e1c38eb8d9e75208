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

// Source produces a finite ordered stream of ProductStores. Next
// returns nil at end of stream. The engine interleaves the emitted
// process stores with synthesized flush barriers: after observing all
// children of a parent, it emits a flush at the parent carrying the
// authoritative per-level child counts.
type Source interface {
	Next() (s *ProductStore, err error)
}

// SourceFunc implements Source for a function type.
type SourceFunc func() (s *ProductStore, err error)

// Next returns the next store in the stream.
func (f SourceFunc) Next() (s *ProductStore, err error) {
	return f()
}

// FilterFunc is a boolean predicate over a store's products. The
// decision gates every consumer that declared this filter as
// preceding.
type FilterFunc func(s *ProductStore) (accept bool, err error)

// MonitorFunc observes products without producing any.
type MonitorFunc func(s *ProductStore) (err error)

// TransformFunc derives new products from its inputs. The returned bag
// must carry every declared output name; outputs are reinjected into
// the graph at the producing store's LevelID.
type TransformFunc func(s *ProductStore) (out Products, err error)

// ReductionFunc folds one contributing store into the accumulator and
// returns the updated accumulator. Calls within one accumulator are
// serialized; across accumulators they run in parallel.
type ReductionFunc func(acc any, s *ProductStore) (updated any, err error)

// SplitterFunc synthesizes a new child level below the consumed store
// by calling Generator.MakeChild any number of times. On return the
// engine emits a flush at the parent carrying the authoritative child
// count.
type SplitterFunc func(gen *Generator, s *ProductStore) (err error)

// Initializer supplies a fresh reduction accumulator. Reductions are
// monoidal: an empty reduction emits exactly this value.
type Initializer func() (acc any)

// Closer interface. Any sink or source that must be closed on engine
// termination must implement this interface.
type Closer interface {
	Close() (err error)
}
