package worker

import (
	"fmt"
	"sync/atomic"

	"github.com/pretzelio/pretzel/src/auth"
	"github.com/pretzelio/pretzel/src/comm"
	"github.com/pretzelio/pretzel/src/net"
	"github.com/sirupsen/logrus"
)

// OnConnect implements net.RequestHandler
func (w *Worker) OnConnect(conn net.ConnInfo) {
	w.logger.WithFields(logrus.Fields{
		"conn": conn.ID,
		"from": conn.RemoteAddr,
	}).Debug("Connection open")
}

// OnRequest implements net.RequestHandler. A request crosses three gates
// before it reaches the communication state:
//
// The fault injector may claim it. When the worker was configured to
// simulate a dropped connection, the very first request the process sees is
// swallowed and the connection closed without a response, whatever its type
// and whichever connection carried it.
//
// Handshake requests are routed to the connection's session, which is
// created on first use. They carry no request metadata and take no part in
// exactly-once accounting.
//
// Everything else is dispatched through the reserved-request set keyed by
// (ClientID, RequestID), so a retry of a request that was already applied is
// acknowledged without running again. Requests arriving on connections that
// never completed a handshake are dispatched all the same; sessions track
// handshake progress but do not block traffic.
func (w *Worker) OnRequest(conn net.ConnInfo, cmd interface{}) (interface{}, error) {
	if w.injector.ShouldDropFirstRequest() {
		atomic.AddUint64(&w.droppedRequests, 1)
		w.logger.WithFields(logrus.Fields{
			"conn": conn.ID,
			"cmd":  fmt.Sprintf("%T", cmd),
		}).Warn("Simulating dropped connection on first request")
		return nil, net.ErrDropConnection
	}

	if req, ok := cmd.(*net.AuthRequest); ok {
		return w.processAuthRequest(conn, req)
	}

	carrier, ok := cmd.(net.MetaCarrier)
	if !ok {
		w.logger.WithField("cmd", cmd).Error("Unexpected command")
		return nil, fmt.Errorf("unexpected command")
	}

	if session, ok := w.sessions.Get(conn.ID); !ok || session.State() != auth.Ready {
		w.logger.WithFields(logrus.Fields{
			"conn": conn.ID,
			"cmd":  fmt.Sprintf("%T", cmd),
		}).Debug("Request on connection without established session")
	}

	meta := carrier.Meta()

	key := comm.RequestKey{
		ClientID:  meta.ClientID,
		RequestID: meta.RequestID,
	}

	var resp interface{}

	err, executed := w.reserved.Execute(key, func() error {
		var applyErr error
		resp, applyErr = w.apply(cmd)
		return applyErr
	})

	if err != nil {
		return nil, err
	}

	if !executed {
		w.logger.WithFields(logrus.Fields{
			"client_id":  key.ClientID,
			"request_id": key.RequestID,
		}).Debug("Duplicate request acknowledged")
		return w.ackFor(cmd), nil
	}

	return resp, nil
}

// OnDisconnect implements net.RequestHandler. The connection's session goes
// away with it; reserved requests are keyed by client and survive.
func (w *Worker) OnDisconnect(conn net.ConnInfo) {
	w.sessions.Drop(conn.ID)

	w.logger.WithField("conn", conn.ID).Debug("Connection closed")
}

// OnError implements net.RequestHandler
func (w *Worker) OnError(conn net.ConnInfo, err error) {
	w.logger.WithError(err).WithField("conn", conn.ID).Error("Connection failed")
}

func (w *Worker) processAuthRequest(conn net.ConnInfo, cmd *net.AuthRequest) (*net.AuthResponse, error) {
	w.logger.WithFields(logrus.Fields{
		"conn":    conn.ID,
		"from_id": cmd.FromID,
	}).Debug("process AuthRequest")

	session := w.sessions.GetOrCreate(conn.ID)

	challenge, complete, err := session.Process(cmd.FromID, cmd.Signature)
	if err != nil {
		w.logger.WithError(err).WithField("conn", conn.ID).Error("Handshake failed")
		return nil, err
	}

	resp := &net.AuthResponse{
		FromID:    w.identity.ID(),
		Challenge: challenge,
		Complete:  complete,
	}

	w.logger.WithFields(logrus.Fields{
		"conn":     conn.ID,
		"complete": resp.Complete,
	}).Debug("Responding to AuthRequest")

	return resp, nil
}

// apply routes a reserved request to the structure it mutates. It runs at
// most once per (ClientID, RequestID) pair.
func (w *Worker) apply(cmd interface{}) (interface{}, error) {
	switch req := cmd.(type) {
	case *net.MessageBatchRequest:
		return w.processMessageBatch(req)
	case *net.MutationBatchRequest:
		return w.processMutationBatch(req)
	case *net.VertexExchangeRequest:
		return w.processVertexExchange(req)
	default:
		w.logger.WithField("cmd", cmd).Error("Unexpected command")
		return nil, fmt.Errorf("unexpected command")
	}
}

// ackFor synthesizes the response for a duplicate of a request that already
// succeeded. The sender only needs to learn that its request went through.
func (w *Worker) ackFor(cmd interface{}) interface{} {
	switch cmd.(type) {
	case *net.MessageBatchRequest:
		return &net.MessageBatchResponse{FromID: w.identity.ID(), Success: true}
	case *net.MutationBatchRequest:
		return &net.MutationBatchResponse{FromID: w.identity.ID(), Success: true}
	case *net.VertexExchangeRequest:
		return &net.VertexExchangeResponse{FromID: w.identity.ID(), Success: true}
	default:
		return nil
	}
}

func (w *Worker) processMessageBatch(cmd *net.MessageBatchRequest) (*net.MessageBatchResponse, error) {
	w.logger.WithFields(logrus.Fields{
		"from_id":  cmd.ClientID,
		"request":  cmd.RequestID,
		"messages": len(cmd.Messages),
	}).Debug("process MessageBatchRequest")

	atomic.AddUint64(&w.messageRequests, 1)

	var respErr error

	if err := w.state.BufferMessages(cmd.Messages); err != nil {
		w.logger.WithError(err).Error("Buffering messages")
		respErr = err
	}

	resp := &net.MessageBatchResponse{
		FromID:  w.identity.ID(),
		Success: respErr == nil,
	}

	return resp, respErr
}

func (w *Worker) processMutationBatch(cmd *net.MutationBatchRequest) (*net.MutationBatchResponse, error) {
	w.logger.WithFields(logrus.Fields{
		"from_id":   cmd.ClientID,
		"request":   cmd.RequestID,
		"mutations": len(cmd.Mutations),
	}).Debug("process MutationBatchRequest")

	atomic.AddUint64(&w.mutationRequests, 1)

	ledger := w.state.Mutations()

	for _, vm := range cmd.Mutations {
		ledger.AppendTo(vm.VertexID, vm.Mutation)
	}

	resp := &net.MutationBatchResponse{
		FromID:  w.identity.ID(),
		Success: true,
	}

	return resp, nil
}

func (w *Worker) processVertexExchange(cmd *net.VertexExchangeRequest) (*net.VertexExchangeResponse, error) {
	w.logger.WithFields(logrus.Fields{
		"from_id":   cmd.ClientID,
		"request":   cmd.RequestID,
		"partition": cmd.PartitionID,
		"vertices":  len(cmd.Vertices),
	}).Debug("process VertexExchangeRequest")

	atomic.AddUint64(&w.vertexRequests, 1)

	w.state.Staging().StageVertices(cmd.PartitionID, cmd.Vertices)

	resp := &net.VertexExchangeResponse{
		FromID:  w.identity.ID(),
		Success: true,
	}

	return resp, nil
}
