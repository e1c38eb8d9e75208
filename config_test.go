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
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigIsSet(t *testing.T) {
	c := NewConfig(nil)
	c.Set("a value", "a.nested.value")

	assert.True(t, c.IsSet("a.nested"), "a.nested")
	assert.True(t, c.IsSet("a.nested.value"), "a.nested.value")
	assert.False(t, c.IsSet("a.nested.other"), "a.nested.other")
	assert.False(t, c.IsSet("b"), "b")
}

func TestConfigSetGet(t *testing.T) {
	c := NewConfig(nil)

	c.Set("string", "a.nested.value")
	assert.Equal(t, "string", c.Get("a.nested.value").String("default"))

	c.Set(1.5, "a.float")
	assert.Equal(t, 1.5, c.Get("a.float").Float64(2.0))

	c.Set(7, "a.int")
	assert.Equal(t, 7, c.Get("a.int").Int(2))
	assert.Equal(t, int64(7), c.Get("a.int").Int64(2))
	assert.Equal(t, uint64(7), c.Get("a.int").Uint64(2))

	c.Set(true, "a.bool")
	assert.Equal(t, true, c.Get("a.bool").Bool(false))

	c.Set("5s", "a.duration")
	assert.Equal(t, 5*time.Second, c.Get("a.duration").Duration(time.Minute))
}

func TestConfigDefaults(t *testing.T) {
	c := NewConfig(nil)

	assert.Equal(t, "default", c.Get("missing").String("default"))
	assert.Equal(t, 42, c.Get("missing").Int(42))
	assert.Equal(t, false, c.Get("missing").Bool(false))
	assert.Equal(t, time.Second, c.Get("missing").Duration(time.Second))

	// Unparseable values also fall back.
	c.Set("not a number", "word")
	assert.Equal(t, 3, c.Get("word").Int(3))
}

func TestConfigFromMap(t *testing.T) {
	c := NewConfig(map[string]interface{}{
		"source": map[string]interface{}{
			"levels": []interface{}{"job", "run", "event"},
		},
	})

	assert.Equal(t, []string{"job", "run", "event"}, c.Get("source.levels").StringSlice())
	assert.Equal(t, "run", c.Get("source.levels.1").String(""))

	m := c.Get("source").Map()
	assert.Contains(t, m, "levels")
}

func TestConfigGetVariadicPath(t *testing.T) {
	c := NewConfig(nil)
	c.Set(9, "deep.nested.key")

	assert.Equal(t, 9, c.Get("deep", "nested", "key").Int(0))
	assert.True(t, c.IsSet("deep", "nested"))
}
