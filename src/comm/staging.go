package comm

import (
	"sync"

	"github.com/pretzelio/pretzel/src/graph"
)

type partitionStage struct {
	l        sync.Mutex
	vertices []*graph.Vertex
}

func (ps *partitionStage) add(vertices []*graph.Vertex) {
	ps.l.Lock()
	ps.vertices = append(ps.vertices, vertices...)
	ps.l.Unlock()
}

// VertexStaging accumulates vertices sent by other workers during graph
// loading or partition rebalancing, grouped by target partition, until the
// partition-assembly phase collects them. Stages for the same partition
// serialize on the stage's lock; different partitions are independent.
type VertexStaging struct {
	l      sync.RWMutex
	stages map[graph.PartitionID]*partitionStage
}

// NewVertexStaging ...
func NewVertexStaging() *VertexStaging {
	return &VertexStaging{
		stages: make(map[graph.PartitionID]*partitionStage),
	}
}

// StageVertices records vertices against a target partition, creating the
// partition's stage if this is the first delivery for it.
func (vs *VertexStaging) StageVertices(partition graph.PartitionID, vertices []*graph.Vertex) {
	// Same locking discipline as MutationLedger.AppendTo: the read lock is
	// held across the append so SnapshotAndClear cannot interleave, and stage
	// creation re-checks under the write lock.
	vs.l.RLock()
	stage, ok := vs.stages[partition]
	if ok {
		stage.add(vertices)
		vs.l.RUnlock()
		return
	}
	vs.l.RUnlock()

	vs.l.Lock()
	stage, ok = vs.stages[partition]
	if !ok {
		stage = new(partitionStage)
		vs.stages[partition] = stage
	}
	stage.add(vertices)
	vs.l.Unlock()
}

// Vertices returns the vertices currently staged for a partition.
func (vs *VertexStaging) Vertices(partition graph.PartitionID) []*graph.Vertex {
	vs.l.RLock()
	stage, ok := vs.stages[partition]
	vs.l.RUnlock()

	if !ok {
		return nil
	}

	stage.l.Lock()
	defer stage.l.Unlock()

	res := make([]*graph.Vertex, len(stage.vertices))
	copy(res, stage.vertices)

	return res
}

// Len returns the number of partitions with staged vertices.
func (vs *VertexStaging) Len() int {
	vs.l.RLock()
	defer vs.l.RUnlock()

	return len(vs.stages)
}

// VertexCount returns the total number of staged vertices.
func (vs *VertexStaging) VertexCount() int {
	vs.l.RLock()
	defer vs.l.RUnlock()

	count := 0
	for _, stage := range vs.stages {
		stage.l.Lock()
		count += len(stage.vertices)
		stage.l.Unlock()
	}

	return count
}

// SnapshotAndClear hands the staged vertices over to the caller and resets
// the staging map. The exchange is atomic: every StageVertices call lands
// either in the returned map or in the fresh one.
func (vs *VertexStaging) SnapshotAndClear() map[graph.PartitionID][]*graph.Vertex {
	vs.l.Lock()
	defer vs.l.Unlock()

	snapshot := make(map[graph.PartitionID][]*graph.Vertex, len(vs.stages))
	for partition, stage := range vs.stages {
		snapshot[partition] = stage.vertices
	}

	vs.stages = make(map[graph.PartitionID]*partitionStage)

	return snapshot
}
