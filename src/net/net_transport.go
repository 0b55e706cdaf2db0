package net

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

/*******************************************************************************
MOST OF THIS IS TAKEN FROM HASHICORP RAFT
*******************************************************************************/

const (
	rpcAuth uint8 = iota
	rpcMessages
	rpcMutations
	rpcVertices
)

const (
	// message and vertex batches can be large
	bufSize = math.MaxUint16
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

/*
NetworkTransport provides a network based transport that can be used to
communicate with pretzel workers on remote machines. It requires an
underlying stream layer to provide a stream abstraction, which can be simple
TCP, TLS, etc.

This transport is very simple and lightweight. Each request is framed by
sending a byte that indicates the message type, followed by the json encoded
request.

The response is an error string followed by the response object, both encoded
using json.

Inbound connections are served by a dedicated goroutine which decodes
commands and hands them to the registered RequestHandler one at a time.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	handler RequestHandler

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *json.Decoder
	enc    *json.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The maxPool controls how many outbound connections we will pool
// (per target). The timeout is used to apply I/O deadlines.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	trans := &NetworkTransport{
		connPool:   make(map[string][]*netConn),
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}

	return trans
}

// RegisterHandler implements the Transport interface. It must be called
// before Listen.
func (n *NetworkTransport) RegisterHandler(handler RequestHandler) {
	n.handler = handler
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.shutdown = true
	}
	return nil
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *NetworkTransport) getConn(target string, timeout time.Duration) (*netConn, error) {
	// Check for a pooled conn
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	// Dial a new connection
	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, err
	}

	// Wrap the conn
	netConn := &netConn{
		target: target,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	// Setup encoder/decoders
	netConn.dec = json.NewDecoder(netConn.r)
	netConn.enc = json.NewEncoder(netConn.w)

	// Done
	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Authenticate implements the Transport interface.
func (n *NetworkTransport) Authenticate(target string, args *AuthRequest, resp *AuthResponse) error {
	return n.genericRPC(target, rpcAuth, n.timeout, args, resp)
}

// SendMessages implements the Transport interface.
func (n *NetworkTransport) SendMessages(target string, args *MessageBatchRequest, resp *MessageBatchResponse) error {
	return n.genericRPC(target, rpcMessages, n.timeout, args, resp)
}

// SendMutations implements the Transport interface.
func (n *NetworkTransport) SendMutations(target string, args *MutationBatchRequest, resp *MutationBatchResponse) error {
	return n.genericRPC(target, rpcMutations, n.timeout, args, resp)
}

// SendVertices implements the Transport interface.
func (n *NetworkTransport) SendVertices(target string, args *VertexExchangeRequest, resp *VertexExchangeResponse) error {
	return n.genericRPC(target, rpcVertices, n.timeout, args, resp)
}

// genericRPC handles a simple request/response RPC.
func (n *NetworkTransport) genericRPC(target string, rpcType uint8, timeout time.Duration, args interface{}, resp interface{}) error {
	// Get a conn
	conn, err := n.getConn(target, timeout)
	if err != nil {
		return err
	}

	// Set a deadline
	if timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(timeout))
	}

	// Send the RPC
	if err = sendRPC(conn, rpcType, args); err != nil {
		return err
	}

	// Decode the response
	canReturn, err := decodeResponse(conn, resp)
	if canReturn {
		n.returnConn(conn)
	}

	return err
}

// sendRPC is used to encode and send the RPC.
func sendRPC(conn *netConn, rpcType uint8, args interface{}) error {
	// Write the request type
	if err := conn.w.WriteByte(rpcType); err != nil {
		conn.Release()
		return err
	}

	// Send the request
	if err := conn.enc.Encode(args); err != nil {
		conn.Release()
		return err
	}

	// Flush
	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// decodeResponse is used to decode an RPC response and reports whether
// the connection can be reused.
func decodeResponse(conn *netConn, resp interface{}) (bool, error) {
	// Decode the error if any
	var rpcError string
	if err := conn.dec.Decode(&rpcError); err != nil {
		conn.Release()
		return false, err
	}

	// Decode the response
	if err := conn.dec.Decode(resp); err != nil {
		conn.Release()
		return false, err
	}

	// Format an error if any
	if rpcError != "" {
		return true, fmt.Errorf(rpcError)
	}
	return true, nil
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	if n.handler == nil {
		n.logger.Error("No request handler registered")
		return
	}

	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}

		info := ConnInfo{
			ID:         uuid.New().String(),
			LocalAddr:  conn.LocalAddr().String(),
			RemoteAddr: conn.RemoteAddr().String(),
		}

		n.logger.WithFields(logrus.Fields{
			"conn": info.ID,
			"from": info.RemoteAddr,
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(info, conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(info ConnInfo, conn net.Conn) {
	defer conn.Close()
	defer n.handler.OnDisconnect(info)

	n.handler.OnConnect(info)

	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		if err := n.handleCommand(info, r, dec, enc); err != nil {
			switch err {
			case ErrDropConnection:
				n.logger.WithField("conn", info.ID).Debug("dropping connection")
			case ErrTransportShutdown, io.EOF:
				// clean disconnect
			default:
				n.handler.OnError(info, err)
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.handler.OnError(info, err)
			return
		}
	}
}

// handleCommand is used to decode and dispatch a single command.
func (n *NetworkTransport) handleCommand(info ConnInfo, r *bufio.Reader, dec *json.Decoder, enc *json.Encoder) error {
	// Get the rpc type
	rpcType, err := r.ReadByte()
	if err != nil {
		return err
	}

	// Decode the command
	var cmd interface{}
	switch rpcType {
	case rpcAuth:
		var req AuthRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		cmd = &req
	case rpcMessages:
		var req MessageBatchRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		cmd = &req
	case rpcMutations:
		var req MutationBatchRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		cmd = &req
	case rpcVertices:
		var req VertexExchangeRequest
		if err := dec.Decode(&req); err != nil {
			return err
		}
		cmd = &req
	default:
		return fmt.Errorf("unknown rpc type %d", rpcType)
	}

	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	// Dispatch to the handler
	resp, err := n.handler.OnRequest(info, cmd)
	if err == ErrDropConnection {
		return ErrDropConnection
	}

	// Send the error first
	respErr := ""
	if err != nil {
		respErr = err.Error()
	}
	if err := enc.Encode(respErr); err != nil {
		return err
	}

	// Send the response
	if err := enc.Encode(resp); err != nil {
		return err
	}

	return nil
}
