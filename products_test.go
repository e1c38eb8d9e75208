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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRetrieval(t *testing.T) {
	s := NewStore(IDFor(1))
	require.NoError(t, s.Add("number", 3))
	require.NoError(t, s.Add("temperature", 98.5))
	require.NoError(t, s.Add("name", "John"))

	number, err := Get[int](s, "number")
	require.NoError(t, err)
	assert.Equal(t, 3, number)

	temperature, err := Get[float64](s, "temperature")
	require.NoError(t, err)
	assert.Equal(t, 98.5, temperature)

	name, err := Get[string](s, "name")
	require.NoError(t, err)
	assert.Equal(t, "John", name)
}

func TestProductMissing(t *testing.T) {
	s := NewStore(IDFor(1))

	_, err := Get[int](s, "number")
	assert.ErrorIs(t, err, ErrMissingProduct)
}

func TestProductTypeMismatch(t *testing.T) {
	s := NewStore(IDFor(1))
	require.NoError(t, s.Add("number", 3))

	_, err := Get[string](s, "number")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestProductDuplicate(t *testing.T) {
	s := NewStore(IDFor(1))
	require.NoError(t, s.Add("number", 3))
	assert.ErrorIs(t, s.Add("number", 4), ErrDuplicateProduct)
}

func TestProductHandle(t *testing.T) {
	s := NewStore(IDFor(1))
	require.NoError(t, s.Add("number", 3))

	h := HandleFor[int](s, "number")
	assert.Equal(t, "number", h.Name())
	assert.True(t, IDFor(1).Equal(h.ID()))

	number, err := h.Deref()
	require.NoError(t, err)
	assert.Equal(t, 3, number)

	_, err = HandleFor[float64](s, "number").Deref()
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestStoreStages(t *testing.T) {
	s := NewStore(IDFor(1, 2))
	assert.Equal(t, StageProcess, s.Stage())
	assert.False(t, s.IsFlush())

	flush := s.MakeFlush()
	assert.True(t, flush.IsFlush())
	assert.True(t, s.ID().Equal(flush.ID()))

	_, ok := flush.FlushCounts()
	assert.False(t, ok)

	require.NoError(t, flush.Add(FlushName, FlushCounts{
		LevelName: "run",
		Counts:    map[string]uint64{"event": 5},
	}))

	fc, ok := flush.FlushCounts()
	require.True(t, ok)
	count, ok := fc.CountFor("event")
	require.True(t, ok)
	assert.Equal(t, uint64(5), count)
}

func TestStoreMakeChild(t *testing.T) {
	parent := NewStore(Base().Child(1, "job"))

	products := NewProducts()
	require.NoError(t, products.Add("num", 7))

	child, err := parent.MakeChild(0, "pixel", "splitter", products)
	require.NoError(t, err)

	assert.Equal(t, "pixel", child.ID().LevelName())
	assert.Equal(t, "splitter", child.Producer())
	assert.True(t, parent.ID().IsAncestorOf(child.ID()))

	num, err := Get[int](child, "num")
	require.NoError(t, err)
	assert.Equal(t, 7, num)
}
