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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark/cascade"
	"github.com/tidemark/cascade/mock"
	"github.com/tidemark/cascade/store/moss"
)

func TestKVOutputSink(t *testing.T) {
	src := mock.HierarchySource([]mock.Level{
		{Name: "run", Count: 1},
		{Name: "event", Count: 3},
	}, func(id *cascade.LevelID) (p cascade.Products) {
		if id.LevelName() != "event" {
			return p
		}
		p = cascade.NewProducts()
		_ = p.Add("number", int(id.Number()))
		return p
	})

	db, err := moss.New("results")
	require.NoError(t, err)

	g := cascade.NewGraph("kv-output", src)
	g.DeclareReduction("run_add", sumNumber, zero).
		ReactTo("number").Output("run_sum").Over("run")
	g.DeclareOutput("persist", cascade.KVOutput(db))

	require.NoError(t, g.Execute())
	defer db.Close()

	value, err := db.Get([]byte("[run:0, event:2]/number"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)

	sum, err := db.Get([]byte("[run:0]/run_sum"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), sum)
}

func TestOutputWithDeclaredInputs(t *testing.T) {
	src := numberedEvents(4)
	db, err := moss.New("filtered")
	require.NoError(t, err)

	g := cascade.NewGraph("kv-output-filtered", src)
	g.DeclareOutput("persist_numbers", cascade.KVOutput(db)).Input("number")

	require.NoError(t, g.Execute())
	defer db.Close()

	count := 0
	require.NoError(t, db.RangePrefix([]byte("["), func(k, v []byte) error {
		count++
		return nil
	}))
	assert.Equal(t, 4, count)
}

func TestIntrospectionServer(t *testing.T) {
	g := cascade.NewGraph("introspect", numberedEvents(5))

	seen := newRecorder()
	g.DeclareMonitor("observe", seen.monitor("number")).Input("number")

	require.NoError(t, g.Execute())

	s := cascade.NewServer(cascade.ServerConfig{Addr: "127.0.0.1:0"}, g)

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/graph", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "observe")

	rr = httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nodes/observe/executions", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"executions":5`)

	rr = httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nodes/ghost/executions", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
