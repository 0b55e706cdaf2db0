// Package net implements different transports to communicate between pretzel
// workers.
//
// This package contains various implementations of the Transport interface,
// which is used by pretzel workers to send and receive requests
// (AuthRequest, MessageBatchRequest, MutationBatchRequest,
// VertexExchangeRequest). There are three implementations:
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: communicating over plain TCP
//
// - TLS: mutually-authenticated TLS over TCP
//
// Requests are framed by a single type byte followed by the json encoded
// body; responses are an error string followed by the json encoded response
// object. Outbound connections are pooled per target. Each inbound
// connection is served by a dedicated goroutine which hands decoded commands
// to the registered RequestHandler one at a time, along with a ConnInfo
// carrying the connection's unique id.
//
// TCP
//
// The TCP transport is suitable when workers are in the same local network,
// the normal case for a compute cluster.
//
// To use a TCP transport, set the following configuration options in the
// pretzel Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the worker binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other
// workers. If BindAddr is a local address not reachable by other workers, it
// is useful to set AdvertiseAddr to the reachable public address.
//
// TLS
//
// The TLS transport wraps the same wire protocol in mutually-authenticated
// TLS, for clusters that span networks that cannot be trusted. It requires a
// certificate and key pair, and the CA bundle that client certificates are
// verified against. These do not replace the worker identity keys used by
// the handshake; they protect the stream itself.
package net
