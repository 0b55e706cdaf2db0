package comm

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pretzelio/pretzel/src/common"
	"github.com/pretzelio/pretzel/src/graph"
	"github.com/pretzelio/pretzel/src/messages"
	"github.com/sirupsen/logrus"
)

func testResolver(vertexID graph.VertexID) graph.PartitionID {
	return graph.PartitionID(common.Hash32([]byte(vertexID)) % 4)
}

func newTestServerState(t *testing.T) *ServerState {
	t.Helper()

	state, err := NewServerState(
		messages.NewInmemStoreFactory(testResolver),
		common.NewTestEntry(t, logrus.DebugLevel),
	)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	return state
}

func TestPrepareSuperstepRotation(t *testing.T) {
	state := newTestServerState(t)

	incoming := state.IncomingStore()

	msgs := []graph.Message{
		{To: "v1", Payload: []byte("a")},
		{To: "v2", Payload: []byte("b")},
	}
	if err := incoming.AddMessages(msgs); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := state.PrepareSuperstep(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// the incoming store becomes the current store
	if state.CurrentStore() != incoming {
		t.Fatalf("CurrentStore should be the previous IncomingStore")
	}

	got, err := state.CurrentStore().Messages("v1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(got) != 1 || string(got[0].Payload) != "a" {
		t.Fatalf("CurrentStore should hold v1's message, got %v", got)
	}

	// a fresh store accumulates for the following superstep
	if state.IncomingStore() == incoming {
		t.Fatalf("IncomingStore should be a fresh store")
	}
	if c := state.IncomingStore().Count(); c != 0 {
		t.Fatalf("fresh IncomingStore should be empty, holds %d messages", c)
	}

	if s := state.Superstep(); s != 1 {
		t.Fatalf("Superstep should be 1, not %d", s)
	}
}

func TestPrepareSuperstepClearsConsumedMessages(t *testing.T) {
	state := newTestServerState(t)

	// messages consumed in this superstep
	consumed := state.CurrentStore()
	consumed.AddMessages([]graph.Message{{To: "v1", Payload: []byte("old")}})

	if err := state.PrepareSuperstep(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// the consumed store was cleared before being recycled
	if c := consumed.Count(); c != 0 {
		t.Fatalf("consumed store should have been cleared, holds %d messages", c)
	}
}

func TestPrepareSuperstepConcurrentWriters(t *testing.T) {
	state := newTestServerState(t)

	// writers deliver batches to the incoming store, as request handlers do
	n := 50
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state.BufferMessages([]graph.Message{
				{To: graph.VertexID(fmt.Sprintf("v%d", i)), Payload: []byte("m")},
			})
		}(i)
	}
	wg.Wait()

	if err := state.PrepareSuperstep(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// nothing was lost across the rotation
	if c := state.CurrentStore().Count(); c != n {
		t.Fatalf("CurrentStore should hold %d messages, not %d", n, c)
	}
	if c := state.IncomingStore().Count(); c != 0 {
		t.Fatalf("IncomingStore should be empty, holds %d messages", c)
	}
}

// failingClearStore wraps a Store and fails ClearAll.
type failingClearStore struct {
	messages.Store
	err error
}

func (s *failingClearStore) ClearAll() error {
	return s.err
}

// stubFactory hands out prepared stores, then falls back to fresh InmemStores.
type stubFactory struct {
	prepared []messages.Store
}

func (f *stubFactory) NewStore() (messages.Store, error) {
	if len(f.prepared) > 0 {
		store := f.prepared[0]
		f.prepared = f.prepared[1:]
		return store, nil
	}
	return messages.NewInmemStore(testResolver), nil
}

func (f *stubFactory) Close() error { return nil }

func TestPrepareSuperstepClearFailure(t *testing.T) {
	clearErr := errors.New("disk store failed")

	factory := &stubFactory{
		prepared: []messages.Store{
			&failingClearStore{
				Store: messages.NewInmemStore(testResolver),
				err:   clearErr,
			},
		},
	}

	state, err := NewServerState(factory, common.NewTestEntry(t, logrus.DebugLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	err = state.PrepareSuperstep()
	if err == nil {
		t.Fatalf("PrepareSuperstep should fail when the store cannot be cleared")
	}
	if !strings.Contains(err.Error(), "failed to clear previous message store") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(err, clearErr) {
		t.Fatalf("error should wrap the store failure, got %v", err)
	}

	// the failed rotation must not have advanced the superstep
	if s := state.Superstep(); s != 0 {
		t.Fatalf("Superstep should still be 0, not %d", s)
	}
}
