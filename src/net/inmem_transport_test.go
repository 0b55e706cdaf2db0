package net

import (
	"sync/atomic"
	"testing"
)

func TestInmemTransport_UnknownTarget(t *testing.T) {
	_, trans := NewInmemTransport("")
	defer trans.Close()

	args := testBatch(1)

	var out MessageBatchResponse
	if err := trans.SendMessages("nowhere", &args, &out); err == nil {
		t.Fatalf("sending to an unconnected target should fail")
	}
}

func TestInmemTransport_DropConnection(t *testing.T) {
	dropped := uint32(0)
	handler := &testHandler{
		respond: func(cmd interface{}) (interface{}, error) {
			if atomic.CompareAndSwapUint32(&dropped, 0, 1) {
				return nil, ErrDropConnection
			}
			return &MessageBatchResponse{FromID: 1, Success: true}, nil
		},
	}

	_, trans1 := NewInmemTransport("")
	trans1.RegisterHandler(handler)
	defer trans1.Close()

	_, trans2 := NewInmemTransport("")
	trans2.RegisterHandler(&testHandler{})
	defer trans2.Close()

	connectPair(trans1, trans2)

	args := testBatch(1)

	var out MessageBatchResponse
	if err := trans2.SendMessages(trans1.LocalAddr(), &args, &out); err == nil {
		t.Fatalf("the dropped request should fail")
	}

	if err := trans2.SendMessages(trans1.LocalAddr(), &args, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	if !out.Success {
		t.Fatalf("the retry should succeed")
	}

	// dropping severed the pseudo-connection, so the retry arrived on a new
	// one
	if n := handler.numConns(); n != 2 {
		t.Fatalf("expected 2 connections, got %d", n)
	}
	if handler.connAt(0).ID == handler.connAt(1).ID {
		t.Fatalf("the second connection should have a fresh id")
	}
	if n := handler.numDisconnects(); n != 1 {
		t.Fatalf("expected 1 disconnect, got %d", n)
	}
}
