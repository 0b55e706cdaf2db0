package messages

import "github.com/pretzelio/pretzel/src/graph"

// PartitionResolver maps a vertex to the partition that owns it. The routing
// algorithm itself belongs to the application layer; stores only use the
// resolver to group messages.
type PartitionResolver func(graph.VertexID) graph.PartitionID

// Store is the interface for superstep message stores. A worker holds two of
// them at any time: one with the messages being consumed by the current
// superstep, and one accumulating messages for the next superstep. All
// methods are safe for concurrent use.
type Store interface {
	// AddMessages routes a batch of messages into their partitions.
	AddMessages(msgs []graph.Message) error
	// Messages returns the messages addressed to a vertex.
	Messages(vertexID graph.VertexID) ([]graph.Message, error)
	// VertexIDs returns the IDs of the vertices of a partition that have
	// messages.
	VertexIDs(partition graph.PartitionID) ([]graph.VertexID, error)
	// Partitions returns the partitions that contain messages.
	Partitions() ([]graph.PartitionID, error)
	// Count returns the total number of messages in the store.
	Count() int
	// ClearPartition removes the messages of one partition.
	ClearPartition(partition graph.PartitionID) error
	// ClearAll removes all messages from the store.
	ClearAll() error
}

// StoreFactory creates the message stores that the worker rotates at
// superstep boundaries. Implementations may share underlying resources, like
// a database handle, between the stores they create; Close releases them.
type StoreFactory interface {
	NewStore() (Store, error)
	Close() error
}
