package net

import (
	"github.com/pretzelio/pretzel/src/graph"
)

// RequestMeta identifies a request for exactly-once processing. ClientID is
// the stable id of the sending worker (derived from its public key, not from
// the connection), and RequestID is a number the sender never reuses for a
// different payload. Requests that carry data embed RequestMeta; the
// receiving worker uses the pair to drop duplicates after reconnects.
type RequestMeta struct {
	ClientID  uint32
	RequestID uint64
}

// Meta returns the embedded RequestMeta. It makes every data-carrying
// request satisfy the MetaCarrier interface.
func (m RequestMeta) Meta() RequestMeta {
	return m
}

// MetaCarrier is satisfied by all requests subject to exactly-once
// accounting.
type MetaCarrier interface {
	Meta() RequestMeta
}

// AuthRequest is one leg of the connection handshake. The first leg carries
// an empty Signature and announces the sender's id; the response to it
// contains a challenge. The second leg carries the signature over the
// challenge. AuthRequest deliberately has no RequestMeta: handshake traffic
// is not subject to exactly-once accounting.
type AuthRequest struct {
	FromID    uint32
	Signature string
}

// AuthResponse carries the responder's id and, after the first leg, the
// challenge to sign. Complete is true once the session is established.
type AuthResponse struct {
	FromID    uint32
	Challenge []byte
	Complete  bool
}

// MessageBatchRequest delivers vertex messages computed during the current
// superstep. They are buffered on the receiver for the next superstep.
type MessageBatchRequest struct {
	RequestMeta
	Messages []graph.Message
}

// MessageBatchResponse indicates the success or failure of a
// MessageBatchRequest.
type MessageBatchResponse struct {
	FromID  uint32
	Success bool
}

// VertexMutation pairs a topology mutation with the vertex it is addressed
// to.
type VertexMutation struct {
	VertexID graph.VertexID
	Mutation graph.Mutation
}

// MutationBatchRequest delivers topology mutations to the worker that owns
// the target vertices. They accumulate in the receiver's mutation ledger
// until the next superstep boundary.
type MutationBatchRequest struct {
	RequestMeta
	Mutations []VertexMutation
}

// MutationBatchResponse indicates the success or failure of a
// MutationBatchRequest.
type MutationBatchResponse struct {
	FromID  uint32
	Success bool
}

// VertexExchangeRequest delivers whole vertices during partition
// rebalancing. The receiver stages them per partition until the exchange
// completes.
type VertexExchangeRequest struct {
	RequestMeta
	PartitionID graph.PartitionID
	Vertices    []*graph.Vertex
}

// VertexExchangeResponse indicates the success or failure of a
// VertexExchangeRequest.
type VertexExchangeResponse struct {
	FromID  uint32
	Success bool
}
