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
)

// ModuleFunc declares a set of nodes on a graph, parameterized by the
// module configuration.
type ModuleFunc func(g *Graph, cfg Config) (err error)

var (
	modulesMtx sync.Mutex
	modules    = make(map[string]ModuleFunc)
)

// RegisterModule makes a named node bundle available to LoadModule.
// Typically called from package init functions of plug-in style
// packages.
func RegisterModule(name string, fn ModuleFunc) {
	modulesMtx.Lock()
	defer modulesMtx.Unlock()

	if _, exists := modules[name]; exists {
		panic(fmt.Sprintf("module %q already registered", name))
	}
	modules[name] = fn
}

// LoadModule declares the named module's nodes on this graph with the
// given configuration. Unknown modules and module declaration failures
// accumulate as registration errors surfaced at Execute entry.
func (g *Graph) LoadModule(name string, cfg Config) {
	modulesMtx.Lock()
	fn, ok := modules[name]
	modulesMtx.Unlock()

	if !ok {
		g.regError(fmt.Errorf("module %q not registered", name))
		return
	}

	if err := fn(g, cfg); err != nil {
		g.regError(fmt.Errorf("module %q: %w", name, err))
	}
}
