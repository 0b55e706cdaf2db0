package worker

import (
	"crypto/ecdsa"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/pretzelio/pretzel/src/crypto"
	"github.com/pretzelio/pretzel/src/crypto/keys"
	"github.com/pretzelio/pretzel/src/graph"
	"github.com/pretzelio/pretzel/src/messages"
	"github.com/pretzelio/pretzel/src/net"
	"github.com/pretzelio/pretzel/src/peers"
)

func testResolver(vertexID graph.VertexID) graph.PartitionID {
	return graph.PartitionID(len(vertexID) % 4)
}

// initWorkers creates n workers connected by a full mesh of in-memory
// transports. dropFirst marks the workers configured to simulate a dropped
// connection on their first request.
func initWorkers(t *testing.T, n int, dropFirst map[int]bool) []*Worker {
	t.Helper()

	transports := make([]*net.InmemTransport, n)
	addrs := make([]string, n)

	for i := 0; i < n; i++ {
		addr, trans := net.NewInmemTransport("")
		addrs[i] = addr
		transports[i] = trans
	}

	privateKeys := make([]*ecdsa.PrivateKey, n)
	peerList := make([]*peers.Peer, n)

	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		privateKeys[i] = key
		peerList[i] = peers.NewPeer(
			keys.PublicKeyHex(&key.PublicKey),
			addrs[i],
			fmt.Sprintf("worker%d", i),
		)
	}

	peerSet := peers.NewPeerSet(peerList)

	workers := make([]*Worker, n)

	for i := 0; i < n; i++ {
		conf := TestConfig(t)
		conf.TaskIndex = i
		conf.SimulateFirstRequestClosed = dropFirst[i]

		w, err := NewWorker(conf,
			NewIdentity(privateKeys[i], fmt.Sprintf("worker%d", i)),
			peerSet,
			messages.NewInmemStoreFactory(testResolver),
			transports[i])
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		workers[i] = w
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				transports[i].Connect(addrs[j], transports[j])
			}
		}
	}

	return workers
}

func testMessages() []graph.Message {
	return []graph.Message{
		{To: "v1", Payload: []byte("0.25")},
		{To: "v2", Payload: []byte("0.50")},
		{To: "v1", Payload: []byte("0.75")},
	}
}

func TestWorkerHandshake(t *testing.T) {
	workers := initWorkers(t, 2, nil)
	w0, w1 := workers[0], workers[1]

	if err := w0.Authenticate(w1.AdvertiseAddr()); err != nil {
		t.Fatalf("err: %v", err)
	}

	if l := w1.sessions.Len(); l != 1 {
		t.Fatalf("receiver should hold 1 session, not %d", l)
	}

	// handshake messages are exempt from exactly-once accounting
	if l := w1.reserved.Len(); l != 0 {
		t.Fatalf("handshake should not reserve requests, got %d", l)
	}

	// repeating the handshake on an established session is harmless and
	// completes on the first leg
	if err := w0.Authenticate(w1.AdvertiseAddr()); err != nil {
		t.Fatalf("err: %v", err)
	}

	if l := w1.sessions.Len(); l != 1 {
		t.Fatalf("receiver should still hold 1 session, not %d", l)
	}
}

func TestWorkerHandshakeUnknownWorker(t *testing.T) {
	workers := initWorkers(t, 2, nil)
	w0, w1 := workers[0], workers[1]

	// first leg with an ID that is not in the peer set: the receiver hands
	// out a challenge without checking
	args := net.AuthRequest{FromID: 999}

	var out net.AuthResponse
	if err := w0.trans.Authenticate(w1.AdvertiseAddr(), &args, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	if out.Complete {
		t.Fatal("handshake should not complete on the first leg")
	}

	// second leg fails because no public key is registered for 999
	r, s, err := keys.Sign(w0.identity.Key, crypto.SHA256(out.Challenge))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	args.Signature = keys.EncodeSignature(r, s)

	if err := w0.trans.Authenticate(w1.AdvertiseAddr(), &args, &out); err == nil {
		t.Fatal("expected handshake to fail for an unknown worker")
	}

	// the failed handshake closed the session, but data requests on the same
	// connection still pass through to the stores
	if err := w0.SendMessages(w1.AdvertiseAddr(), testMessages()); err != nil {
		t.Fatalf("err: %v", err)
	}

	if c := w1.State().IncomingStore().Count(); c != 3 {
		t.Fatalf("incoming store should hold 3 messages, not %d", c)
	}
}

func TestWorkerUnauthenticatedPassThrough(t *testing.T) {
	workers := initWorkers(t, 2, nil)
	w0, w1 := workers[0], workers[1]

	// no handshake at all: requests are dispatched anyway
	if err := w0.SendMessages(w1.AdvertiseAddr(), testMessages()); err != nil {
		t.Fatalf("err: %v", err)
	}

	if c := w1.State().IncomingStore().Count(); c != 3 {
		t.Fatalf("incoming store should hold 3 messages, not %d", c)
	}

	if l := w1.sessions.Len(); l != 0 {
		t.Fatalf("no session should exist, got %d", l)
	}
}

func TestWorkerSendMessages(t *testing.T) {
	workers := initWorkers(t, 2, nil)
	w0, w1 := workers[0], workers[1]

	if err := w0.Authenticate(w1.AdvertiseAddr()); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := w0.SendMessages(w1.AdvertiseAddr(), testMessages()); err != nil {
		t.Fatalf("err: %v", err)
	}

	// messages for the next superstep are buffered in the incoming store
	if c := w1.State().IncomingStore().Count(); c != 3 {
		t.Fatalf("incoming store should hold 3 messages, not %d", c)
	}
	if c := w1.State().CurrentStore().Count(); c != 0 {
		t.Fatalf("current store should be empty, got %d", c)
	}

	w1.PrepareSuperstep()

	if s := w1.State().Superstep(); s != 1 {
		t.Fatalf("superstep should be 1, not %d", s)
	}
	if c := w1.State().CurrentStore().Count(); c != 3 {
		t.Fatalf("current store should hold 3 messages, not %d", c)
	}
	if c := w1.State().IncomingStore().Count(); c != 0 {
		t.Fatalf("incoming store should be empty, got %d", c)
	}

	msgs, err := w1.State().CurrentStore().Messages("v1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if l := len(msgs); l != 2 {
		t.Fatalf("v1 should have 2 messages, not %d", l)
	}
}

func TestWorkerSendMutations(t *testing.T) {
	workers := initWorkers(t, 2, nil)
	w0, w1 := workers[0], workers[1]

	mutations := []net.VertexMutation{
		{
			VertexID: "v1",
			Mutation: graph.Mutation{Kind: graph.AddEdge, Edge: &graph.Edge{Target: "v9", Weight: 0.5}},
		},
		{
			VertexID: "v1",
			Mutation: graph.Mutation{Kind: graph.RemoveEdge, Target: "v3"},
		},
		{
			VertexID: "v2",
			Mutation: graph.Mutation{Kind: graph.RemoveVertex},
		},
	}

	if err := w0.SendMutations(w1.AdvertiseAddr(), mutations); err != nil {
		t.Fatalf("err: %v", err)
	}

	ledger := w1.State().Mutations()

	if l := ledger.Len(); l != 2 {
		t.Fatalf("ledger should hold mutations for 2 vertices, not %d", l)
	}

	vm1, ok := ledger.Get("v1")
	if !ok {
		t.Fatal("ledger should hold mutations for v1")
	}
	if l := len(vm1.AddedEdges()); l != 1 {
		t.Fatalf("v1 should have 1 added edge, not %d", l)
	}
	if l := len(vm1.RemovedEdges()); l != 1 {
		t.Fatalf("v1 should have 1 removed edge, not %d", l)
	}

	vm2, ok := ledger.Get("v2")
	if !ok {
		t.Fatal("ledger should hold mutations for v2")
	}
	if c := vm2.RemovedVertexCount(); c != 1 {
		t.Fatalf("v2 should be removed once, not %d times", c)
	}
}

func TestWorkerSendVertices(t *testing.T) {
	workers := initWorkers(t, 2, nil)
	w0, w1 := workers[0], workers[1]

	vertices := []*graph.Vertex{
		{ID: "v1", Value: []byte("1"), Edges: []graph.Edge{{Target: "v2", Weight: 1}}},
		{ID: "v2", Value: []byte("2")},
	}

	if err := w0.SendVertices(w1.AdvertiseAddr(), 3, vertices); err != nil {
		t.Fatalf("err: %v", err)
	}

	staging := w1.State().Staging()

	if l := staging.Len(); l != 1 {
		t.Fatalf("staging should hold 1 partition, not %d", l)
	}
	if c := staging.VertexCount(); c != 2 {
		t.Fatalf("staging should hold 2 vertices, not %d", c)
	}

	got := staging.Vertices(3)
	if !reflect.DeepEqual(got, vertices) {
		t.Fatalf("staged vertices should be %#v, not %#v", vertices, got)
	}
}

func TestWorkerExactlyOnce(t *testing.T) {
	workers := initWorkers(t, 2, nil)
	w0, w1 := workers[0], workers[1]

	args := net.MessageBatchRequest{
		RequestMeta: net.RequestMeta{ClientID: w0.ID(), RequestID: 42},
		Messages:    testMessages(),
	}

	var out net.MessageBatchResponse
	if err := w0.trans.SendMessages(w1.AdvertiseAddr(), &args, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	if !out.Success {
		t.Fatal("request should succeed")
	}

	// a retry with the same (ClientID, RequestID) is acknowledged without
	// being applied again
	var out2 net.MessageBatchResponse
	if err := w0.trans.SendMessages(w1.AdvertiseAddr(), &args, &out2); err != nil {
		t.Fatalf("err: %v", err)
	}
	if !out2.Success {
		t.Fatal("duplicate should be acknowledged")
	}

	if c := w1.State().IncomingStore().Count(); c != 3 {
		t.Fatalf("incoming store should hold 3 messages, not %d", c)
	}
	if h := w1.reserved.DedupHits(); h != 1 {
		t.Fatalf("expected 1 dedup hit, got %d", h)
	}
	if l := w1.reserved.Len(); l != 1 {
		t.Fatalf("expected 1 reserved request, got %d", l)
	}
}

func TestWorkerDropsFirstRequest(t *testing.T) {
	workers := initWorkers(t, 2, map[int]bool{1: true})
	w0, w1 := workers[0], workers[1]

	args := net.MessageBatchRequest{
		RequestMeta: net.RequestMeta{ClientID: w0.ID(), RequestID: 1},
		Messages:    testMessages(),
	}

	var out net.MessageBatchResponse
	if err := w0.trans.SendMessages(w1.AdvertiseAddr(), &args, &out); err == nil {
		t.Fatal("expected the first request to be dropped")
	}

	// the request was swallowed before accounting and before dispatch
	if c := w1.State().IncomingStore().Count(); c != 0 {
		t.Fatalf("incoming store should be empty, got %d", c)
	}
	if l := w1.reserved.Len(); l != 0 {
		t.Fatalf("no request should be reserved, got %d", l)
	}

	// the retry carries the same request pair and goes through
	if err := w0.trans.SendMessages(w1.AdvertiseAddr(), &args, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	if c := w1.State().IncomingStore().Count(); c != 3 {
		t.Fatalf("incoming store should hold 3 messages, not %d", c)
	}

	// the trigger is single-shot
	args2 := net.MessageBatchRequest{
		RequestMeta: net.RequestMeta{ClientID: w0.ID(), RequestID: 2},
		Messages:    testMessages(),
	}
	if err := w0.trans.SendMessages(w1.AdvertiseAddr(), &args2, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	if c := w1.State().IncomingStore().Count(); c != 6 {
		t.Fatalf("incoming store should hold 6 messages, not %d", c)
	}

	if !w1.injector.Tripped() {
		t.Fatal("injector should have tripped")
	}
	if got := w1.GetStats()["dropped_requests"]; got != "1" {
		t.Fatalf("dropped_requests should be 1, not %s", got)
	}
}

func TestWorkerDropsFirstHandshake(t *testing.T) {
	workers := initWorkers(t, 2, map[int]bool{1: true})
	w0, w1 := workers[0], workers[1]

	// the simulated drop also claims handshake requests; Authenticate does
	// not retry internally, so the failure surfaces
	if err := w0.Authenticate(w1.AdvertiseAddr()); err == nil {
		t.Fatal("expected the first handshake to be dropped")
	}

	if err := w0.Authenticate(w1.AdvertiseAddr()); err != nil {
		t.Fatalf("err: %v", err)
	}

	if l := w1.sessions.Len(); l != 1 {
		t.Fatalf("receiver should hold 1 session, not %d", l)
	}
}

func TestWorkerRetriesDroppedRequest(t *testing.T) {
	workers := initWorkers(t, 2, map[int]bool{1: true})
	w0, w1 := workers[0], workers[1]

	// SendMessages retries in transit failures with the same request pair,
	// so the simulated drop is absorbed
	if err := w0.SendMessages(w1.AdvertiseAddr(), testMessages()); err != nil {
		t.Fatalf("err: %v", err)
	}

	if c := w1.State().IncomingStore().Count(); c != 3 {
		t.Fatalf("incoming store should hold 3 messages, not %d", c)
	}

	if !w1.injector.Tripped() {
		t.Fatal("injector should have tripped")
	}
}

func TestWorkerConcurrentSenders(t *testing.T) {
	workers := initWorkers(t, 3, nil)
	w1 := workers[1]

	senders := []*Worker{workers[0], workers[2]}

	wg := sync.WaitGroup{}
	for _, s := range senders {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(s *Worker) {
				defer wg.Done()
				if err := s.SendMessages(w1.AdvertiseAddr(), testMessages()); err != nil {
					t.Errorf("err: %v", err)
				}
			}(s)
		}
	}
	wg.Wait()

	if c := w1.State().IncomingStore().Count(); c != 60 {
		t.Fatalf("incoming store should hold 60 messages, not %d", c)
	}
}

func TestWorkerStats(t *testing.T) {
	workers := initWorkers(t, 2, nil)
	w0, w1 := workers[0], workers[1]

	if err := w0.SendMessages(w1.AdvertiseAddr(), testMessages()); err != nil {
		t.Fatalf("err: %v", err)
	}

	w1.PrepareSuperstep()

	stats := w1.GetStats()

	if got := stats["superstep"]; got != "1" {
		t.Fatalf("superstep should be 1, not %s", got)
	}
	if got := stats["current_messages"]; got != "3" {
		t.Fatalf("current_messages should be 3, not %s", got)
	}
	if got := stats["message_requests"]; got != "1" {
		t.Fatalf("message_requests should be 1, not %s", got)
	}
	if got := stats["num_workers"]; got != "2" {
		t.Fatalf("num_workers should be 2, not %s", got)
	}
	if got := stats["moniker"]; got != "worker1" {
		t.Fatalf("moniker should be worker1, not %s", got)
	}
}

func TestWorkerShutdown(t *testing.T) {
	workers := initWorkers(t, 2, nil)
	w0 := workers[0]

	done := make(chan struct{})
	go func() {
		w0.Run()
		close(done)
	}()

	w0.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return after Shutdown")
	}

	// Shutdown is idempotent
	w0.Shutdown()
}
