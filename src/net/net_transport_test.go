package net

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pretzelio/pretzel/src/common"
	"github.com/pretzelio/pretzel/src/graph"
)

func newTCPTestTransport(maxPool int, handler RequestHandler, t *testing.T) *NetworkTransport {
	trans, err := NewTCPTransport("127.0.0.1:0", "", maxPool, time.Second, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	trans.RegisterHandler(handler)
	go trans.Listen()
	return trans
}

func testBatch(requestID uint64) MessageBatchRequest {
	return MessageBatchRequest{
		RequestMeta: RequestMeta{ClientID: 9, RequestID: requestID},
		Messages:    []graph.Message{{To: "v1", Payload: []byte("0.5")}},
	}
}

func TestNetworkTransport_PooledConn(t *testing.T) {
	resp := MessageBatchResponse{FromID: 1, Success: true}

	trans1 := newTCPTestTransport(2, &testHandler{respond: respondWith(&resp)}, t)
	defer trans1.Close()

	// Transport 2 makes outbound requests, 3 conn pool
	trans2 := newTCPTestTransport(3, &testHandler{}, t)
	defer trans2.Close()

	args := testBatch(1)

	// Create wait group
	wg := &sync.WaitGroup{}
	wg.Add(5)

	appendFunc := func() {
		defer wg.Done()
		var out MessageBatchResponse
		if err := trans2.SendMessages(trans1.LocalAddr(), &args, &out); err != nil {
			t.Errorf("err: %v", err)
			return
		}
		if !out.Success {
			t.Errorf("request should succeed")
		}
	}

	// Try to do parallel requests, should stress the conn pool
	for i := 0; i < 5; i++ {
		go appendFunc()
	}

	// Wait for the routines to finish
	wg.Wait()

	// Check the conn pool size
	addr := trans1.LocalAddr()
	if len(trans2.connPool[addr]) != 3 {
		t.Fatalf("expected 3 pooled conns, got %d", len(trans2.connPool[addr]))
	}
}

func TestNetworkTransport_DropConnection(t *testing.T) {
	dropped := uint32(0)
	handler := &testHandler{
		respond: func(cmd interface{}) (interface{}, error) {
			if atomic.CompareAndSwapUint32(&dropped, 0, 1) {
				return nil, ErrDropConnection
			}
			return &MessageBatchResponse{FromID: 1, Success: true}, nil
		},
	}

	trans1 := newTCPTestTransport(2, handler, t)
	defer trans1.Close()

	trans2 := newTCPTestTransport(2, &testHandler{}, t)
	defer trans2.Close()

	args := testBatch(1)

	// the dropped request surfaces as a connection error, not a response
	var out MessageBatchResponse
	if err := trans2.SendMessages(trans1.LocalAddr(), &args, &out); err == nil {
		t.Fatalf("the dropped request should fail")
	}

	// a retry on a fresh connection goes through
	if err := trans2.SendMessages(trans1.LocalAddr(), &args, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	if !out.Success {
		t.Fatalf("the retry should succeed")
	}

	// the server closed the first connection
	deadline := time.Now().Add(time.Second)
	for handler.numDisconnects() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for the disconnect callback")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNetworkTransport_HandlerError(t *testing.T) {
	handler := &testHandler{
		respond: func(cmd interface{}) (interface{}, error) {
			return nil, errors.New("partition unavailable")
		},
	}

	trans1 := newTCPTestTransport(2, handler, t)
	defer trans1.Close()

	trans2 := newTCPTestTransport(2, &testHandler{}, t)
	defer trans2.Close()

	args := testBatch(1)

	var out MessageBatchResponse
	err := trans2.SendMessages(trans1.LocalAddr(), &args, &out)
	if err == nil || !strings.Contains(err.Error(), "partition unavailable") {
		t.Fatalf("expected the handler error, got %v", err)
	}

	// handler errors travel as responses, so the connection survives and
	// goes back to the pool
	addr := trans1.LocalAddr()
	if len(trans2.connPool[addr]) != 1 {
		t.Fatalf("expected 1 pooled conn, got %d", len(trans2.connPool[addr]))
	}

	// the same connection carries the next request
	resp := MessageBatchResponse{FromID: 1, Success: true}
	handler.setRespond(respondWith(&resp))

	if err := trans2.SendMessages(trans1.LocalAddr(), &args, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	if !out.Success {
		t.Fatalf("request should succeed")
	}
}
