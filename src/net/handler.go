package net

import "errors"

// ErrDropConnection instructs the transport to close the connection without
// sending a response. From the caller's side the request appears to have
// been swallowed by a dead connection.
var ErrDropConnection = errors.New("drop connection")

// ConnInfo describes an inbound connection. ID is unique per accepted
// connection and is the key under which the application tracks
// per-connection state, such as handshake sessions.
type ConnInfo struct {
	ID         string
	LocalAddr  string
	RemoteAddr string
}

// RequestHandler is implemented by the application layer to process inbound
// traffic. The transport invokes it from the goroutine dedicated to the
// connection, so requests arriving on one connection are handled in order,
// while different connections are handled in parallel. Implementations must
// therefore be safe for concurrent use.
type RequestHandler interface {

	// OnConnect is called once when a connection is accepted, before any
	// request from it is dispatched.
	OnConnect(conn ConnInfo)

	// OnRequest processes a single decoded command and returns the response
	// to send back. A non-nil error is transmitted to the caller alongside
	// the response, except for ErrDropConnection which closes the connection
	// without responding.
	OnRequest(conn ConnInfo, cmd interface{}) (interface{}, error)

	// OnDisconnect is called once when the connection goes away, whether it
	// was closed by the peer, dropped by OnRequest, or failed.
	OnDisconnect(conn ConnInfo)

	// OnError reports transport-level failures on the connection, such as
	// undecodable commands. The connection is closed afterwards.
	OnError(conn ConnInfo, err error)
}
