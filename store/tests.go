package store

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
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tidemark/cascade"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randStringBytes(n int) (b []byte) {
	b = make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return b
}

// TestKVStore is the conformance suite for cascade.KVStore sink
// implementations.
func TestKVStore(t *testing.T, kv cascade.KVStore) {
	key := randStringBytes(8)
	value := randStringBytes(32)

	t.Run("get inexistent key", func(t *testing.T) {
		_, err := kv.Get(key)
		assert.Equal(t, cascade.ErrKeyNotFound, err)
	})

	t.Run("set", func(t *testing.T) {
		assert.NoError(t, kv.Set(key, value))

		v, err := kv.Get(key)
		assert.NoError(t, err)
		assert.Equal(t, value, v)
	})

	t.Run("delete", func(t *testing.T) {
		assert.NoError(t, kv.Delete(key))

		_, err := kv.Get(key)
		assert.Equal(t, cascade.ErrKeyNotFound, err)
	})

	keys := make([][]byte, 0, 16)

	t.Run("range", func(t *testing.T) {
		for i := 0; i < 16; i++ {
			k := append([]byte("range/"), randStringBytes(8)...)
			keys = append(keys, k)
			assert.NoError(t, kv.Set(k, value))
		}

		sort.Slice(keys, func(i, j int) bool {
			return bytes.Compare(keys[i], keys[j]) < 0
		})

		var seen [][]byte
		err := kv.Range(nil, nil, func(k, v []byte) error {
			seen = append(seen, append([]byte(nil), k...))
			assert.Equal(t, value, v)
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, keys, seen)
	})

	t.Run("range prefix", func(t *testing.T) {
		assert.NoError(t, kv.Set([]byte("other/key"), value))

		count := 0
		err := kv.RangePrefix([]byte("range/"), func(k, v []byte) error {
			assert.True(t, bytes.HasPrefix(k, []byte("range/")))
			count++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, len(keys), count)
	})

	t.Run("close", func(t *testing.T) {
		if closer, ok := kv.(cascade.Closer); ok {
			assert.NoError(t, closer.Close())
		}
	})
}
