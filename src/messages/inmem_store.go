package messages

import (
	"sort"
	"sync"

	"github.com/pretzelio/pretzel/src/graph"
)

// InmemStore implements the Store interface with an in-memory map of
// partition => vertex => messages. It is the default message store; jobs
// whose superstep traffic does not fit in memory use the disk-spill store
// instead.
type InmemStore struct {
	sync.RWMutex
	resolver   PartitionResolver
	partitions map[graph.PartitionID]map[graph.VertexID][]graph.Message
	count      int
}

// NewInmemStore creates a new InmemStore.
func NewInmemStore(resolver PartitionResolver) *InmemStore {
	return &InmemStore{
		resolver:   resolver,
		partitions: make(map[graph.PartitionID]map[graph.VertexID][]graph.Message),
	}
}

// AddMessages implements the Store interface.
func (s *InmemStore) AddMessages(msgs []graph.Message) error {
	s.Lock()
	defer s.Unlock()

	for _, msg := range msgs {
		pid := s.resolver(msg.To)

		partition, ok := s.partitions[pid]
		if !ok {
			partition = make(map[graph.VertexID][]graph.Message)
			s.partitions[pid] = partition
		}

		partition[msg.To] = append(partition[msg.To], msg)
		s.count++
	}

	return nil
}

// Messages implements the Store interface.
func (s *InmemStore) Messages(vertexID graph.VertexID) ([]graph.Message, error) {
	s.RLock()
	defer s.RUnlock()

	partition, ok := s.partitions[s.resolver(vertexID)]
	if !ok {
		return nil, nil
	}

	msgs := partition[vertexID]
	res := make([]graph.Message, len(msgs))
	copy(res, msgs)

	return res, nil
}

// VertexIDs implements the Store interface.
func (s *InmemStore) VertexIDs(partition graph.PartitionID) ([]graph.VertexID, error) {
	s.RLock()
	defer s.RUnlock()

	vertices, ok := s.partitions[partition]
	if !ok {
		return nil, nil
	}

	res := make([]graph.VertexID, 0, len(vertices))
	for id := range vertices {
		res = append(res, id)
	}

	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })

	return res, nil
}

// Partitions implements the Store interface.
func (s *InmemStore) Partitions() ([]graph.PartitionID, error) {
	s.RLock()
	defer s.RUnlock()

	res := make([]graph.PartitionID, 0, len(s.partitions))
	for pid := range s.partitions {
		res = append(res, pid)
	}

	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })

	return res, nil
}

// Count implements the Store interface.
func (s *InmemStore) Count() int {
	s.RLock()
	defer s.RUnlock()

	return s.count
}

// ClearPartition implements the Store interface.
func (s *InmemStore) ClearPartition(partition graph.PartitionID) error {
	s.Lock()
	defer s.Unlock()

	for _, msgs := range s.partitions[partition] {
		s.count -= len(msgs)
	}

	delete(s.partitions, partition)

	return nil
}

// ClearAll implements the Store interface.
func (s *InmemStore) ClearAll() error {
	s.Lock()
	defer s.Unlock()

	s.partitions = make(map[graph.PartitionID]map[graph.VertexID][]graph.Message)
	s.count = 0

	return nil
}

// InmemStoreFactory creates InmemStores.
type InmemStoreFactory struct {
	resolver PartitionResolver
}

// NewInmemStoreFactory returns a factory whose stores route messages with the
// given resolver.
func NewInmemStoreFactory(resolver PartitionResolver) *InmemStoreFactory {
	return &InmemStoreFactory{resolver: resolver}
}

// NewStore implements the StoreFactory interface.
func (f *InmemStoreFactory) NewStore() (Store, error) {
	return NewInmemStore(f.resolver), nil
}

// Close implements the StoreFactory interface. It is a no-op as InmemStores
// hold no shared resources.
func (f *InmemStoreFactory) Close() error {
	return nil
}
