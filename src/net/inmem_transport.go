package net

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewInmemAddr returns a new in-memory addr with a randomly generated UUID
// as the ID.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemTransport implements the Transport interface, to allow pretzel to be
// tested in-memory without going over a network. Each connected caller gets
// a stable pseudo-connection, so per-connection state such as handshake
// sessions behaves the same as over TCP.
type InmemTransport struct {
	sync.RWMutex
	handler   RequestHandler
	localAddr string
	peers     map[string]*InmemTransport
	inbound   map[string]ConnInfo
	timeout   time.Duration
}

// NewInmemTransport is used to initialize a new transport and generates a
// random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		localAddr: addr,
		peers:     make(map[string]*InmemTransport),
		inbound:   make(map[string]ConnInfo),
		timeout:   time.Second,
	}
	return addr, trans
}

// RegisterHandler implements the Transport interface.
func (i *InmemTransport) RegisterHandler(handler RequestHandler) {
	i.Lock()
	defer i.Unlock()
	i.handler = handler
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Authenticate implements the Transport interface.
func (i *InmemTransport) Authenticate(target string, args *AuthRequest, resp *AuthResponse) error {
	rpcResp, err := i.makeRPC(target, args, i.timeout)
	if err != nil {
		return err
	}

	// Copy the result back
	out := rpcResp.(*AuthResponse)
	*resp = *out
	return nil
}

// SendMessages implements the Transport interface.
func (i *InmemTransport) SendMessages(target string, args *MessageBatchRequest, resp *MessageBatchResponse) error {
	rpcResp, err := i.makeRPC(target, args, i.timeout)
	if err != nil {
		return err
	}

	// Copy the result back
	out := rpcResp.(*MessageBatchResponse)
	*resp = *out
	return nil
}

// SendMutations implements the Transport interface.
func (i *InmemTransport) SendMutations(target string, args *MutationBatchRequest, resp *MutationBatchResponse) error {
	rpcResp, err := i.makeRPC(target, args, i.timeout)
	if err != nil {
		return err
	}

	// Copy the result back
	out := rpcResp.(*MutationBatchResponse)
	*resp = *out
	return nil
}

// SendVertices implements the Transport interface.
func (i *InmemTransport) SendVertices(target string, args *VertexExchangeRequest, resp *VertexExchangeResponse) error {
	rpcResp, err := i.makeRPC(target, args, i.timeout)
	if err != nil {
		return err
	}

	// Copy the result back
	out := rpcResp.(*VertexExchangeResponse)
	*resp = *out
	return nil
}

type inmemResult struct {
	resp interface{}
	err  error
}

func (i *InmemTransport) makeRPC(target string, args interface{}, timeout time.Duration) (interface{}, error) {
	i.RLock()
	peer, ok := i.peers[target]
	i.RUnlock()

	if !ok {
		return nil, fmt.Errorf("failed to connect to worker: %v", target)
	}

	// Deliver on a separate goroutine so a stuck handler cannot hang the
	// caller beyond the timeout, same as a network transport.
	resCh := make(chan inmemResult, 1)
	go func() {
		resp, err := peer.deliver(i.localAddr, args)
		resCh <- inmemResult{resp, err}
	}()

	select {
	case res := <-resCh:
		return res.resp, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("command timed out")
	}
}

// deliver hands an inbound command to the handler under the caller's
// pseudo-connection, creating it on first use.
func (i *InmemTransport) deliver(from string, args interface{}) (interface{}, error) {
	i.Lock()
	handler := i.handler
	conn, ok := i.inbound[from]
	if !ok {
		conn = ConnInfo{
			ID:         uuid.New().String(),
			LocalAddr:  i.localAddr,
			RemoteAddr: from,
		}
		i.inbound[from] = conn
	}
	i.Unlock()

	if handler == nil {
		return nil, fmt.Errorf("no handler registered on %v", i.localAddr)
	}

	if !ok {
		handler.OnConnect(conn)
	}

	resp, err := handler.OnRequest(conn, args)
	if err == ErrDropConnection {
		// Sever the pseudo-connection. The caller sees a generic failure,
		// like a TCP caller whose connection was closed before the response.
		i.Lock()
		delete(i.inbound, from)
		i.Unlock()

		handler.OnDisconnect(conn)

		return nil, fmt.Errorf("connection dropped by %v", i.localAddr)
	}

	return resp, err
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.DisconnectAll()
	return nil
}

// Listen is an empty function as there is no need to defer initialisation
// of the inmem transport
func (i *InmemTransport) Listen() {
}
