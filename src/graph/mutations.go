package graph

import (
	"fmt"
	"sync"
)

// MutationKind enumerates the topology changes a vertex can be targeted with.
type MutationKind uint8

const (
	// AddVertex creates the target vertex.
	AddVertex MutationKind = iota
	// RemoveVertex deletes the target vertex.
	RemoveVertex
	// AddEdge adds an outgoing edge to the target vertex.
	AddEdge
	// RemoveEdge removes the outgoing edge pointing at Target.
	RemoveEdge
)

// String ...
func (k MutationKind) String() string {
	switch k {
	case AddVertex:
		return "AddVertex"
	case RemoveVertex:
		return "RemoveVertex"
	case AddEdge:
		return "AddEdge"
	case RemoveEdge:
		return "RemoveEdge"
	default:
		return fmt.Sprintf("MutationKind(%d)", k)
	}
}

// Mutation is a single topology change targeting one vertex. Only the field
// matching Kind is set.
type Mutation struct {
	Kind   MutationKind
	Vertex *Vertex  // AddVertex
	Edge   *Edge    // AddEdge
	Target VertexID // RemoveEdge
}

// VertexMutations accumulates the mutations addressed to a single vertex
// during a superstep. They are resolved against the vertex by the compute
// layer between supersteps. All accessors are safe for concurrent use;
// appends to the same vertex serialize on the internal lock.
type VertexMutations struct {
	l sync.Mutex

	addedVertices      []*Vertex
	removedVertexCount int
	addedEdges         []Edge
	removedEdges       []VertexID
}

// Append records one mutation.
func (vm *VertexMutations) Append(m Mutation) {
	vm.l.Lock()
	defer vm.l.Unlock()

	switch m.Kind {
	case AddVertex:
		vm.addedVertices = append(vm.addedVertices, m.Vertex)
	case RemoveVertex:
		vm.removedVertexCount++
	case AddEdge:
		vm.addedEdges = append(vm.addedEdges, *m.Edge)
	case RemoveEdge:
		vm.removedEdges = append(vm.removedEdges, m.Target)
	}
}

// AddedVertices returns a copy of the accumulated AddVertex payloads.
func (vm *VertexMutations) AddedVertices() []*Vertex {
	vm.l.Lock()
	defer vm.l.Unlock()

	res := make([]*Vertex, len(vm.addedVertices))
	copy(res, vm.addedVertices)
	return res
}

// RemovedVertexCount returns how many times the vertex was removed.
func (vm *VertexMutations) RemovedVertexCount() int {
	vm.l.Lock()
	defer vm.l.Unlock()

	return vm.removedVertexCount
}

// AddedEdges returns a copy of the accumulated AddEdge payloads.
func (vm *VertexMutations) AddedEdges() []Edge {
	vm.l.Lock()
	defer vm.l.Unlock()

	res := make([]Edge, len(vm.addedEdges))
	copy(res, vm.addedEdges)
	return res
}

// RemovedEdges returns a copy of the accumulated RemoveEdge targets.
func (vm *VertexMutations) RemovedEdges() []VertexID {
	vm.l.Lock()
	defer vm.l.Unlock()

	res := make([]VertexID, len(vm.removedEdges))
	copy(res, vm.removedEdges)
	return res
}

// Size returns the total number of accumulated mutations.
func (vm *VertexMutations) Size() int {
	vm.l.Lock()
	defer vm.l.Unlock()

	return len(vm.addedVertices) +
		vm.removedVertexCount +
		len(vm.addedEdges) +
		len(vm.removedEdges)
}
