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

// Message is the envelope routed through the graph. originalID is a
// monotonically assigned sequence number used to match a flush against
// the pre-flush stores it terminates at downstream joins; per consumer
// port delivery preserves originalID order.
type Message struct {
	store      *ProductStore
	originalID uint64
	// names carries the product names this message announces. For
	// source stores it covers the whole bag; for reinjected outputs
	// only the newly added names, so ports already fed by earlier
	// products are not triggered twice.
	names []string
	// flush carries the shared fan out state of a barrier message.
	flush *flushDelivery
}

// Store carried by this message.
func (m Message) Store() (s *ProductStore) {
	return m.store
}

// OriginalID assigned at multiplexer ingress.
func (m Message) OriginalID() (id uint64) {
	return m.originalID
}

// IsFlush returns if the message carries a barrier store.
func (m Message) IsFlush() (ok bool) {
	return m.store.IsFlush()
}
