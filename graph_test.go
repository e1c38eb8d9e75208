package cascade_test

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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/cascade"
	"github.com/tidemark/cascade/mock"
)

func sumNumber(acc any, s *cascade.ProductStore) (any, error) {
	n, err := cascade.Get[int](s, "number")
	if err != nil {
		return nil, err
	}
	return acc.(int) + n, nil
}

func zero() any { return 0 }

// recorder collects monitored product values per identifier.
type recorder struct {
	mtx    sync.Mutex
	values map[string]int
}

func newRecorder() (r *recorder) {
	return &recorder{values: make(map[string]int)}
}

func (r *recorder) monitor(product string) cascade.MonitorFunc {
	return func(s *cascade.ProductStore) error {
		v, err := cascade.Get[int](s, product)
		if err != nil {
			return err
		}

		r.mtx.Lock()
		r.values[s.ID().String()] = v
		r.mtx.Unlock()
		return nil
	}
}

func (r *recorder) snapshot() (values map[string]int) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	values = make(map[string]int, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	return values
}

func eventNumbers(id *cascade.LevelID) (p cascade.Products) {
	if id.LevelName() != "event" {
		return p
	}

	p = cascade.NewProducts()
	if err := p.Add("number", int(id.Number())); err != nil {
		panic(err)
	}
	return p
}

func mustCount(t *testing.T, g *cascade.Graph, node string) (count uint64) {
	t.Helper()
	count, err := g.ExecutionCount(node)
	require.NoError(t, err)
	return count
}

func TestTwoLevelReduction(t *testing.T) {
	src := mock.HierarchySource([]mock.Level{
		{Name: "job", Count: 1},
		{Name: "run", Count: 2},
		{Name: "event", Count: 5},
	}, eventNumbers)

	g := cascade.NewGraph("two-level", src)

	g.DeclareReduction("run_add", sumNumber, zero).
		ReactTo("number").Output("run_sum").Over("run")
	g.DeclareReduction("job_add", sumNumber, zero).
		ReactTo("number").Output("job_sum").Over("job")

	runSums := newRecorder()
	jobSums := newRecorder()
	g.DeclareMonitor("check_run_sum", runSums.monitor("run_sum")).Input("run_sum")
	g.DeclareMonitor("check_job_sum", jobSums.monitor("job_sum")).Input("job_sum")

	require.NoError(t, g.Execute())

	assert.Equal(t, uint64(10), mustCount(t, g, "run_add"))
	assert.Equal(t, uint64(10), mustCount(t, g, "job_add"))

	assert.Equal(t, map[string]int{
		"[job:0, run:0]": 10,
		"[job:0, run:1]": 10,
	}, runSums.snapshot())
	assert.Equal(t, map[string]int{"[job:0]": 20}, jobSums.snapshot())

	assert.True(t, src.Closed())
}

func TestMixedHierarchies(t *testing.T) {
	job := cascade.Base().Child(0, "job")
	src := mock.NewSource(cascade.NewStore(job))

	for r := uint64(0); r < 2; r++ {
		run := job.Child(r, "run")
		src.Append(cascade.NewStore(run))

		for e := uint64(0); e < 5; e++ {
			s := cascade.NewStore(run.Child(e, "event"))
			require.NoError(t, s.Add("number", int(e)))
			src.Append(s)
		}
	}

	// Trigger primitives hang directly below the job.
	for p := uint64(0); p < 10; p++ {
		s := cascade.NewStore(job.Child(p, "trigger_primitive"))
		require.NoError(t, s.Add("number", int(p)))
		src.Append(s)
	}

	g := cascade.NewGraph("mixed", src)

	g.DeclareReduction("run_add", sumNumber, zero).
		ReactTo("number").Output("run_sum").Over("run")
	g.DeclareReduction("job_add", sumNumber, zero).
		ReactTo("number").Output("job_sum").Over("job")

	jobSums := newRecorder()
	g.DeclareMonitor("check_job_sum", jobSums.monitor("job_sum")).Input("job_sum")

	require.NoError(t, g.Execute())

	assert.Equal(t, uint64(10), mustCount(t, g, "run_add"))
	assert.Equal(t, uint64(20), mustCount(t, g, "job_add"))
	assert.Equal(t, map[string]int{"[job:0]": 65}, jobSums.snapshot())
}

func TestEvenIDFilter(t *testing.T) {
	src := mock.HierarchySource([]mock.Level{{Name: "event", Count: 10}},
		func(id *cascade.LevelID) (p cascade.Products) {
			p = cascade.NewProducts()
			if err := p.Add("number", int(id.Number())); err != nil {
				panic(err)
			}
			return p
		})

	g := cascade.NewGraph("even-ids", src)

	g.DeclareFilter("accept_even_ids", func(s *cascade.ProductStore) (bool, error) {
		return s.ID().Number()%2 == 0, nil
	}).Input("number")

	seen := newRecorder()
	g.DeclareMonitor("observe", seen.monitor("number")).
		Input("number").PrecededBy("accept_even_ids")

	require.NoError(t, g.Execute())

	assert.Equal(t, uint64(10), mustCount(t, g, "accept_even_ids"))
	assert.Equal(t, uint64(5), mustCount(t, g, "observe"))
	assert.Equal(t, map[string]int{
		"[event:0]": 0,
		"[event:2]": 2,
		"[event:4]": 4,
		"[event:6]": 6,
		"[event:8]": 8,
	}, seen.snapshot())
}

func TestSplitterReduction(t *testing.T) {
	parent := cascade.NewStore(cascade.Base().Child(3, "spill"))
	require.NoError(t, parent.Add("max_number", 10))
	src := mock.NewSource(parent)

	g := cascade.NewGraph("splitter", src)

	g.DeclareSplitter("burst", func(gen *cascade.Generator, s *cascade.ProductStore) error {
		max, err := cascade.Get[int](s, "max_number")
		if err != nil {
			return err
		}

		for i := 0; i < max; i++ {
			p := cascade.NewProducts()
			if err = p.Add("num", i); err != nil {
				return err
			}
			if _, err = gen.MakeChild(uint64(i), p); err != nil {
				return err
			}
		}
		return nil
	}).Input("max_number").Into("pixel").Provides("num")

	g.DeclareReduction("add", func(acc any, s *cascade.ProductStore) (any, error) {
		n, err := cascade.Get[int](s, "num")
		if err != nil {
			return nil, err
		}
		return acc.(int) + n, nil
	}, zero).ReactTo("num").Output("sum").Over("spill")

	sums := newRecorder()
	g.DeclareTransform("print_sum", func(s *cascade.ProductStore) (cascade.Products, error) {
		sum, err := cascade.Get[int](s, "sum")
		if err != nil {
			return cascade.Products{}, err
		}

		sums.mtx.Lock()
		sums.values[s.ID().String()] = sum
		sums.mtx.Unlock()

		out := cascade.NewProducts()
		if err = out.Add("sum_seen", true); err != nil {
			return cascade.Products{}, err
		}
		return out, nil
	}).Input("sum").Output("sum_seen")

	require.NoError(t, g.Execute())

	assert.Equal(t, uint64(10), mustCount(t, g, "add"))
	assert.Equal(t, uint64(1), mustCount(t, g, "burst"))
	assert.Equal(t, uint64(1), mustCount(t, g, "print_sum"))
	assert.Equal(t, map[string]int{"[spill:3]": 45}, sums.snapshot())
}

func TestEmptyReductionEmitsInitializer(t *testing.T) {
	src := mock.HierarchySource([]mock.Level{
		{Name: "job", Count: 1},
		{Name: "run", Count: 1},
	}, nil)

	g := cascade.NewGraph("empty-reduction", src)

	g.DeclareReduction("idle_add", sumNumber, func() any { return 42 }).
		ReactTo("number").Output("idle_sum").Over("run")

	values := newRecorder()
	g.DeclareMonitor("check", values.monitor("idle_sum")).Input("idle_sum")

	require.NoError(t, g.Execute())

	assert.Equal(t, uint64(0), mustCount(t, g, "idle_add"))
	assert.Equal(t, map[string]int{"[job:0, run:0]": 42}, values.snapshot())
}

func TestUserFunctionFailureAborts(t *testing.T) {
	src := mock.HierarchySource([]mock.Level{{Name: "event", Count: 3}},
		func(id *cascade.LevelID) (p cascade.Products) {
			p = cascade.NewProducts()
			_ = p.Add("number", int(id.Number()))
			return p
		})

	g := cascade.NewGraph("failing", src)

	boom := errors.New("boom")
	g.DeclareMonitor("explode", func(s *cascade.ProductStore) error {
		return boom
	}).Input("number")

	err := g.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "explode")
}

func TestTypeMismatchAborts(t *testing.T) {
	src := mock.HierarchySource([]mock.Level{{Name: "event", Count: 1}},
		func(id *cascade.LevelID) (p cascade.Products) {
			p = cascade.NewProducts()
			_ = p.Add("number", int(id.Number()))
			return p
		})

	g := cascade.NewGraph("mismatch", src)

	g.DeclareMonitor("misread", func(s *cascade.ProductStore) error {
		_, err := cascade.Get[string](s, "number")
		return err
	}).Input("number")

	err := g.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, cascade.ErrTypeMismatch)
}

func TestRegistrationErrorsAggregate(t *testing.T) {
	g := cascade.NewGraph("invalid", mock.NewSource())

	g.DeclareMonitor("dup", func(*cascade.ProductStore) error { return nil }).Input("a")
	g.DeclareMonitor("dup", func(*cascade.ProductStore) error { return nil }).Input("a")
	g.DeclareReduction("no_over", sumNumber, zero).ReactTo("a").Output("b")
	g.DeclareMonitor("ghost_gate", func(*cascade.ProductStore) error { return nil }).
		Input("a").PrecededBy("no_such_filter")

	err := g.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node name")
	assert.Contains(t, err.Error(), "no level to reduce over")
	assert.Contains(t, err.Error(), "no_such_filter")
}

func TestProductCycleDetected(t *testing.T) {
	g := cascade.NewGraph("cyclic", mock.NewSource())

	g.DeclareTransform("a_to_b", func(*cascade.ProductStore) (cascade.Products, error) {
		return cascade.NewProducts(), nil
	}).Input("a").Output("b")
	g.DeclareTransform("b_to_a", func(*cascade.ProductStore) (cascade.Products, error) {
		return cascade.NewProducts(), nil
	}).Input("b").Output("a")

	err := g.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestMissingProducerDetected(t *testing.T) {
	g := cascade.NewGraph("missing-producer", mock.NewSource())
	g.SetSourceProducts("number")

	g.DeclareMonitor("observe", func(*cascade.ProductStore) error { return nil }).
		Input("number", "phantom")

	err := g.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no producer for product "phantom"`)
}

func TestExecuteTwice(t *testing.T) {
	g := cascade.NewGraph("twice", mock.NewSource())
	g.DeclareMonitor("noop", func(*cascade.ProductStore) error { return nil }).Input("x")

	require.NoError(t, g.Execute())
	assert.Error(t, g.Execute())
}

func TestTransformChain(t *testing.T) {
	src := mock.HierarchySource([]mock.Level{{Name: "event", Count: 4}},
		func(id *cascade.LevelID) (p cascade.Products) {
			p = cascade.NewProducts()
			_ = p.Add("number", int(id.Number()))
			return p
		})

	g := cascade.NewGraph("chain", src)

	g.DeclareTransform("double", func(s *cascade.ProductStore) (cascade.Products, error) {
		n, err := cascade.Get[int](s, "number")
		if err != nil {
			return cascade.Products{}, err
		}

		out := cascade.NewProducts()
		if err = out.Add("doubled", n*2); err != nil {
			return cascade.Products{}, err
		}
		return out, nil
	}).Input("number").Output("doubled")

	doubled := newRecorder()
	g.DeclareMonitor("observe", doubled.monitor("doubled")).Input("doubled")

	require.NoError(t, g.Execute())

	assert.Equal(t, uint64(4), mustCount(t, g, "double"))
	assert.Equal(t, map[string]int{
		"[event:0]": 0,
		"[event:1]": 2,
		"[event:2]": 4,
		"[event:3]": 6,
	}, doubled.snapshot())
}

func TestDotGraph(t *testing.T) {
	g := cascade.NewGraph("dot", mock.NewSource())

	g.DeclareTransform("double", func(*cascade.ProductStore) (cascade.Products, error) {
		return cascade.NewProducts(), nil
	}).Input("number").Output("doubled")
	g.DeclareMonitor("observe", func(*cascade.ProductStore) error { return nil }).
		Input("doubled")

	graph := g.DotGraph()
	assert.Contains(t, graph, "double")
	assert.Contains(t, graph, "observe")
	assert.Contains(t, graph, "doubled")
}
