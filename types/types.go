package types

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

// Kind of a registered graph node.
type Kind uint8

func (k Kind) String() (name string) {
	switch k {
	case Filter:
		return "filter"
	case Monitor:
		return "monitor"
	case Transform:
		return "transform"
	case Reduction:
		return "reduction"
	case Splitter:
		return "splitter"
	case Output:
		return "output"
	}
	return "unknown"
}

const (
	// Filter nodes gate downstream consumers on a boolean predicate.
	Filter = Kind(0)
	// Monitor nodes observe products without producing any.
	Monitor = Kind(1)
	// Transform nodes derive new products from their inputs.
	Transform = Kind(2)
	// Reduction nodes accumulate values over a hierarchy level.
	Reduction = Kind(3)
	// Splitter nodes synthesize a new child level at runtime.
	Splitter = Kind(4)
	// Output nodes persist products to an external sink.
	Output = Kind(5)
)
