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
	"sync"

	"github.com/tidemark/cascade/internal/shardmap"
)

// decision tri-state for a filter at a given identifier.
type decision uint8

const (
	decisionPending = decision(0)
	decisionAccept  = decision(1)
	decisionReject  = decision(2)
)

// filterGate is the per-filter result collector. It records boolean
// decisions tagged by LevelID and buffers deliveries to consumers whose
// gating filter has not yet decided. At end of stream an undecided
// filter counts as a rejection.
type filterGate struct {
	name      string
	decisions *shardmap.Map[bool]

	mtx     sync.Mutex
	eos     bool
	pending []pendingDelivery
}

type pendingDelivery struct {
	node *node
	msg  Message
	// waitID is the identifier whose decision the delivery waits on.
	waitID *LevelID
}

func newFilterGate(name string) (g *filterGate) {
	g = &filterGate{}
	g.name = name
	g.decisions = shardmap.New[bool](shardmap.DefaultShards)
	return g
}

// decide records the filter result for the given identifier and
// releases buffered deliveries decided by it.
func (g *filterGate) decide(id *LevelID, accept bool) {
	g.decisions.Set(id.key(), accept)

	g.mtx.Lock()
	var released []pendingDelivery
	var remaining []pendingDelivery

	for _, pd := range g.pending {
		if id.Equal(pd.waitID) || id.IsAncestorOf(pd.waitID) {
			released = append(released, pd)
			continue
		}
		remaining = append(remaining, pd)
	}
	g.pending = remaining
	g.mtx.Unlock()

	for _, pd := range released {
		pd.node.redeliver(pd.msg)
	}
}

// decisionFor returns the decision at the given identifier or the
// nearest decided ancestor. Undecided identifiers resolve to a
// rejection once the stream has ended.
func (g *filterGate) decisionFor(id *LevelID) (d decision) {
	for current := id; current != nil; current = current.Parent() {
		if accept, ok := g.decisions.Get(current.key()); ok {
			if accept {
				return decisionAccept
			}
			return decisionReject
		}
	}

	g.mtx.Lock()
	eos := g.eos
	g.mtx.Unlock()

	if eos {
		return decisionReject
	}
	return decisionPending
}

// buffer parks a delivery until this gate decides at the given
// identifier. Returns false when the stream already ended, in which
// case the caller must treat the filter as rejected.
func (g *filterGate) buffer(n *node, msg Message, waitID *LevelID) (buffered bool) {
	g.mtx.Lock()
	defer g.mtx.Unlock()

	if g.eos {
		return false
	}

	g.pending = append(g.pending, pendingDelivery{node: n, msg: msg, waitID: waitID})
	return true
}

// finalize marks end of stream and releases every buffered delivery.
// Undecided filters now resolve to rejections.
func (g *filterGate) finalize() {
	g.mtx.Lock()
	g.eos = true
	released := g.pending
	g.pending = nil
	g.mtx.Unlock()

	for _, pd := range released {
		pd.node.redeliver(pd.msg)
	}
}
