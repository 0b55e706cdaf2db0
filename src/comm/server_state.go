package comm

import (
	"fmt"
	"sync"

	"github.com/pretzelio/pretzel/src/graph"
	"github.com/pretzelio/pretzel/src/messages"
	"github.com/sirupsen/logrus"
)

// ServerState holds the data that peer workers write into a worker between
// superstep barriers.
//
// Vertex messages are double-buffered: the current store holds the messages
// being consumed by the compute layer in this superstep, while the incoming
// store accumulates messages for the next one. PrepareSuperstep rotates the
// buffers once the coordinator barrier has been passed. Request handlers only
// ever write to the incoming store, and the compute layer only reads the
// current store, so neither side observes a half-rotated state.
type ServerState struct {
	storeFactory messages.StoreFactory

	// storeLock protects the store references and the superstep counter.
	// Accessors take the read side; PrepareSuperstep takes the write side, so
	// the rotation is atomic with respect to them.
	storeLock     sync.RWMutex
	currentStore  messages.Store
	incomingStore messages.Store
	superstep     int

	mutations *MutationLedger
	staging   *VertexStaging

	logger *logrus.Entry
}

// NewServerState creates a ServerState with two fresh message stores from the
// factory.
func NewServerState(storeFactory messages.StoreFactory, logger *logrus.Entry) (*ServerState, error) {
	currentStore, err := storeFactory.NewStore()
	if err != nil {
		return nil, fmt.Errorf("creating current message store: %w", err)
	}

	incomingStore, err := storeFactory.NewStore()
	if err != nil {
		return nil, fmt.Errorf("creating incoming message store: %w", err)
	}

	return &ServerState{
		storeFactory:  storeFactory,
		currentStore:  currentStore,
		incomingStore: incomingStore,
		mutations:     NewMutationLedger(),
		staging:       NewVertexStaging(),
		logger:        logger.WithField("component", "server-state"),
	}, nil
}

// CurrentStore returns the store holding the messages consumed by the current
// superstep.
func (s *ServerState) CurrentStore() messages.Store {
	s.storeLock.RLock()
	defer s.storeLock.RUnlock()

	return s.currentStore
}

// IncomingStore returns the store accumulating messages for the next
// superstep.
func (s *ServerState) IncomingStore() messages.Store {
	s.storeLock.RLock()
	defer s.storeLock.RUnlock()

	return s.incomingStore
}

// Superstep returns the number of completed store rotations.
func (s *ServerState) Superstep() int {
	s.storeLock.RLock()
	defer s.storeLock.RUnlock()

	return s.superstep
}

// BufferMessages appends a batch to the incoming store. The store lock is
// held across the append, so a batch lands entirely in one superstep even if
// a rotation is requested while it is being written.
func (s *ServerState) BufferMessages(batch []graph.Message) error {
	s.storeLock.RLock()
	defer s.storeLock.RUnlock()

	return s.incomingStore.AddMessages(batch)
}

// Mutations returns the ledger accumulating graph mutations.
func (s *ServerState) Mutations() *MutationLedger {
	return s.mutations
}

// Staging returns the map accumulating vertices moved between partitions.
func (s *ServerState) Staging() *VertexStaging {
	return s.staging
}

// PrepareSuperstep rotates the message stores at the superstep boundary: the
// consumed current store is cleared, the incoming store becomes current, and
// a fresh store starts accumulating for the following superstep.
//
// It must only be called between the coordinator barriers, when no compute
// routine is reading the current store. An error from this method means the
// worker's message state is no longer coherent; callers treat it as fatal for
// the whole worker process, because a store that failed to clear could leak
// stale messages into a later superstep.
func (s *ServerState) PrepareSuperstep() error {
	s.storeLock.Lock()
	defer s.storeLock.Unlock()

	if err := s.currentStore.ClearAll(); err != nil {
		return fmt.Errorf("failed to clear previous message store: %w", err)
	}

	newStore, err := s.storeFactory.NewStore()
	if err != nil {
		return fmt.Errorf("failed to create next message store: %w", err)
	}

	s.currentStore = s.incomingStore
	s.incomingStore = newStore
	s.superstep++

	s.logger.WithFields(logrus.Fields{
		"superstep": s.superstep,
		"messages":  s.currentStore.Count(),
	}).Debug("Prepared superstep")

	return nil
}
