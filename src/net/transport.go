package net

// Transport provides an interface for network transports to allow a worker
// to communicate with other workers.
type Transport interface {

	// RegisterHandler installs the handler for inbound requests. It must be
	// called before Listen.
	RegisterHandler(handler RequestHandler)

	// Listen starts the transport listening for inbound connections. It
	// blocks until the transport is closed.
	Listen()

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other
	// workers can reach us
	AdvertiseAddr() string

	// Authenticate, SendMessages, SendMutations, and SendVertices send the
	// appropriate request to the target worker.

	Authenticate(target string, args *AuthRequest, resp *AuthResponse) error

	SendMessages(target string, args *MessageBatchRequest, resp *MessageBatchResponse) error

	SendMutations(target string, args *MutationBatchRequest, resp *MutationBatchResponse) error

	SendVertices(target string, args *VertexExchangeRequest, resp *VertexExchangeResponse) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
