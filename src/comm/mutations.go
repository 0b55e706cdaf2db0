package comm

import (
	"sync"

	"github.com/pretzelio/pretzel/src/graph"
)

// MutationLedger accumulates graph mutations addressed to vertices of this
// worker's partitions. Appends targeting the same vertex serialize on that
// vertex's entry; appends targeting different vertices run in parallel.
type MutationLedger struct {
	l         sync.RWMutex
	mutations map[graph.VertexID]*graph.VertexMutations
}

// NewMutationLedger ...
func NewMutationLedger() *MutationLedger {
	return &MutationLedger{
		mutations: make(map[graph.VertexID]*graph.VertexMutations),
	}
}

// AppendTo records a mutation against a vertex, creating the vertex's entry
// if this is the first mutation addressed to it.
func (ml *MutationLedger) AppendTo(vertexID graph.VertexID, m graph.Mutation) {
	// The read lock is held across the entry append, not just the map lookup,
	// so a concurrent SnapshotAndClear cannot swap the map from under a
	// half-recorded mutation. Entry creation takes the write lock with a
	// re-check, as two appends can race on a new vertex.
	ml.l.RLock()
	entry, ok := ml.mutations[vertexID]
	if ok {
		entry.Append(m)
		ml.l.RUnlock()
		return
	}
	ml.l.RUnlock()

	ml.l.Lock()
	entry, ok = ml.mutations[vertexID]
	if !ok {
		entry = new(graph.VertexMutations)
		ml.mutations[vertexID] = entry
	}
	entry.Append(m)
	ml.l.Unlock()
}

// Get returns the accumulated mutations for a vertex.
func (ml *MutationLedger) Get(vertexID graph.VertexID) (*graph.VertexMutations, bool) {
	ml.l.RLock()
	defer ml.l.RUnlock()

	entry, ok := ml.mutations[vertexID]
	return entry, ok
}

// Len returns the number of vertices with pending mutations.
func (ml *MutationLedger) Len() int {
	ml.l.RLock()
	defer ml.l.RUnlock()

	return len(ml.mutations)
}

// SnapshotAndClear hands the accumulated mutations over to the caller and
// resets the ledger. The exchange is atomic: every append lands either in the
// returned map or in the fresh one, never in limbo.
func (ml *MutationLedger) SnapshotAndClear() map[graph.VertexID]*graph.VertexMutations {
	ml.l.Lock()
	defer ml.l.Unlock()

	snapshot := ml.mutations
	ml.mutations = make(map[graph.VertexID]*graph.VertexMutations)

	return snapshot
}
