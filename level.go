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
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var (
	errBadLevelPath = errors.New("malformed level id path")
)

// LevelID is a node in the tree of hierarchical data identifiers.
// A LevelID is immutable once constructed and holds a reference to its
// parent, which always outlives it. Both the structural hash (combining
// ancestor level names) and the positional hash (combining ancestor
// numbers) are computed eagerly at construction.
type LevelID struct {
	parent    *LevelID
	number    uint64
	hasNumber bool
	levelName string
	depth     int
	levelHash uint64
	hash      uint64
}

// root LevelID for the process. All identifier trees hang off this node.
var baseID = func() (id *LevelID) {
	id = &LevelID{}
	id.levelHash = xxhash.Sum64String("")
	return id
}()

// Base returns the root LevelID singleton.
func Base() (id *LevelID) {
	return baseID
}

// mixHash folds x into h. See
// https://stackoverflow.com/questions/20511347 for the provenance of the
// golden-ratio constant.
func mixHash(h, x uint64) (mixed uint64) {
	return h ^ (x + 0x9e3779b9 + (h << 6) + (h >> 2))
}

// Child creates an identifier one level below this one with the given
// number and level name.
func (id *LevelID) Child(number uint64, levelName string) (child *LevelID) {
	child = &LevelID{}
	child.parent = id
	child.number = number
	child.hasNumber = true
	child.levelName = levelName
	child.depth = id.depth + 1
	child.levelHash = mixHash(id.levelHash, xxhash.Sum64String(levelName))
	child.hash = mixHash(id.hash, number)
	return child
}

// Parent of this identifier, nil for the root.
func (id *LevelID) Parent() (parent *LevelID) {
	return id.parent
}

// ParentAt walks up the tree and returns the nearest ancestor with the
// given level name, or nil when no such ancestor exists.
func (id *LevelID) ParentAt(levelName string) (parent *LevelID) {
	for parent = id.parent; parent != nil; parent = parent.parent {
		if parent.levelName == levelName {
			return parent
		}
	}
	return nil
}

// HasParent returns if this identifier descends from another.
func (id *LevelID) HasParent() (ok bool) {
	return id.parent != nil
}

// AncestorAt returns the ancestor of this identifier at the given
// depth, or nil when depth exceeds the identifier's own.
func (id *LevelID) AncestorAt(depth int) (ancestor *LevelID) {
	if depth > id.depth {
		return nil
	}

	ancestor = id
	for ancestor.depth > depth {
		ancestor = ancestor.parent
	}
	return ancestor
}

// IsAncestorOf returns if this identifier is a proper ancestor of
// other. Identifiers compare by value, so equal paths constructed
// independently are ancestors of the same subtree.
func (id *LevelID) IsAncestorOf(other *LevelID) (ok bool) {
	if other == nil || other.depth <= id.depth {
		return false
	}
	return id.Equal(other.AncestorAt(id.depth))
}

// Number of this identifier within its level.
func (id *LevelID) Number() (number uint64) {
	return id.number
}

// LevelName of this identifier tier.
func (id *LevelID) LevelName() (name string) {
	return id.levelName
}

// Depth of this identifier, zero for the root.
func (id *LevelID) Depth() (depth int) {
	return id.depth
}

// Hash is the positional hash combining the numbers of all ancestors.
func (id *LevelID) Hash() (hash uint64) {
	return id.hash
}

// LevelHash is the structural hash combining the level names of all
// ancestors.
func (id *LevelID) LevelHash() (hash uint64) {
	return id.levelHash
}

// key folds the positional and structural hashes together for the
// engine's sharded maps, so sibling branches with equal number paths
// but different level names do not collide.
func (id *LevelID) key() (k uint64) {
	return mixHash(id.hash, id.levelHash)
}

// numbers returns the number path from the root to this identifier.
func (id *LevelID) numbers() (numbers []uint64) {
	if !id.hasNumber {
		return nil
	}

	numbers = make([]uint64, id.depth)
	for current := id; current != nil && current.hasNumber; current = current.parent {
		numbers[current.depth-1] = current.number
	}
	return numbers
}

// Equal compares identifiers by depth and the (number, parent) chain up
// to the root.
func (id *LevelID) Equal(other *LevelID) (equal bool) {
	if id == other {
		return true
	}

	if other == nil || id.depth != other.depth {
		return false
	}

	for a, b := id, other; a != nil; a, b = a.parent, b.parent {
		if a.number != b.number || a.hasNumber != b.hasNumber {
			return false
		}
	}
	return true
}

// Less orders identifiers lexicographically over their number paths.
func (id *LevelID) Less(other *LevelID) (less bool) {
	these := id.numbers()
	those := other.numbers()

	for i := 0; i < len(these) && i < len(those); i++ {
		if these[i] != those[i] {
			return these[i] < those[i]
		}
	}
	return len(these) < len(those)
}

// String renders the identifier as "[a:1, b:2]". Unnamed levels print
// the bare number. The root renders as "[]".
func (id *LevelID) String() (s string) {
	sb := &strings.Builder{}
	sb.WriteString("[")

	if id.hasNumber {
		var levels []*LevelID
		for current := id; current != nil && current.hasNumber; current = current.parent {
			levels = append(levels, current)
		}

		for i := len(levels) - 1; i >= 0; i-- {
			if i != len(levels)-1 {
				sb.WriteString(", ")
			}
			if levels[i].levelName != "" {
				sb.WriteString(levels[i].levelName)
				sb.WriteString(":")
			}
			sb.WriteString(strconv.FormatUint(levels[i].number, 10))
		}
	}

	sb.WriteString("]")
	return sb.String()
}

// IDFor walks from the root creating unnamed children for each number.
func IDFor(numbers ...uint64) (id *LevelID) {
	id = baseID
	for _, number := range numbers {
		id = id.Child(number, "")
	}
	return id
}

// ParseLevelID parses a ':' delimited alternation of level names and
// numbers such as "run:1:event:2". Empty tokens are dropped and a name
// is optional before each number, so "1:2:4" is also valid. The bracket
// form produced by LevelID.String() parses back to an equal identifier.
func ParseLevelID(path string) (id *LevelID, err error) {
	tokens := strings.FieldsFunc(path, func(r rune) bool {
		return r == ':' || r == ',' || r == '[' || r == ']' || r == ' '
	})

	id = baseID
	levelName := ""

	for _, token := range tokens {
		if token == "" {
			continue
		}

		number, numErr := strconv.ParseUint(token, 10, 64)
		if numErr != nil {
			if levelName != "" {
				return nil, errBadLevelPath
			}
			levelName = token
			continue
		}

		id = id.Child(number, levelName)
		levelName = ""
	}

	if levelName != "" {
		return nil, errBadLevelPath
	}
	return id, nil
}
