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
)

func TestFilterGateDecisions(t *testing.T) {
	g := newFilterGate("accept_even")
	run := Base().Child(1, "job").Child(2, "run")
	event := run.Child(3, "event")

	assert.Equal(t, decisionPending, g.decisionFor(event))

	g.decide(run, true)
	// Decisions propagate to descendants through the nearest decided
	// ancestor.
	assert.Equal(t, decisionAccept, g.decisionFor(event))
	assert.Equal(t, decisionAccept, g.decisionFor(run))

	other := Base().Child(1, "job").Child(3, "run")
	assert.Equal(t, decisionPending, g.decisionFor(other))

	g.decide(other, false)
	assert.Equal(t, decisionReject, g.decisionFor(other.Child(0, "event")))
}

func TestFilterGateNearestAncestorWins(t *testing.T) {
	g := newFilterGate("f")
	job := Base().Child(1, "job")
	run := job.Child(2, "run")

	g.decide(job, false)
	g.decide(run, true)

	// The run level decision shadows the job level one below it.
	assert.Equal(t, decisionAccept, g.decisionFor(run.Child(0, "event")))
	assert.Equal(t, decisionReject, g.decisionFor(job.Child(9, "run")))
}

func TestFilterGateEndOfStream(t *testing.T) {
	g := newFilterGate("f")
	id := IDFor(1, 2)

	assert.Equal(t, decisionPending, g.decisionFor(id))

	g.finalize()
	// Undecided filters count as rejections once the stream ended.
	assert.Equal(t, decisionReject, g.decisionFor(id))

	// Decisions taken before the end remain visible.
	g2 := newFilterGate("g")
	g2.decide(id, true)
	g2.finalize()
	assert.Equal(t, decisionAccept, g2.decisionFor(id))
}
