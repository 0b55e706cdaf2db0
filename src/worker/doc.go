// Package worker implements the network-facing side of a graph-processing
// task.
//
// A Worker owns the communication state for one task of a job: the
// double-buffered superstep message stores, the mutation ledger and the
// vertex staging area (cf. the comm package). It registers itself as the
// request handler of a net.Transport and serves the requests of its peers
// for the duration of the job.
//
// Request Path
//
// Computation proceeds in supersteps. While a worker computes superstep N,
// its peers deliver the messages for superstep N+1 as MessageBatchRequests,
// which are buffered in the incoming message store. At the boundary, the
// coordinator calls PrepareSuperstep on every worker, which atomically
// promotes the incoming store to current and installs a fresh incoming
// store. Structural mutations and partition ownership transfers travel as
// MutationBatchRequests and VertexExchangeRequests, which accumulate in the
// mutation ledger and the staging area until the computation phase snapshots
// them.
//
// Every non-handshake request carries a (ClientID, RequestID) pair. The
// worker reserves each pair on first sight and executes the request at most
// once; a retry of an already-executed request is acknowledged without
// running again. The outbound helpers (SendMessages, SendMutations,
// SendVertices) stamp the pair once per logical request and reuse it across
// transit retries, which is what makes retrying safe.
//
// Authentication
//
// Before sending data, a worker proves its identity to a peer with a two-leg
// challenge-response handshake: the first AuthRequest announces the sender's
// ID and collects a random challenge, the second returns the challenge
// signed with the sender's private key. The receiver verifies the signature
// against the public key registered for that ID in the peer set. Handshake
// state lives in a per-connection session and dies with the connection.
// Handshake requests take no part in exactly-once accounting, and requests
// on connections that never completed a handshake are still dispatched.
//
// Fault Injection
//
// For recovery testing, a worker can be configured to simulate a dropped
// connection: the very first request the process sees is swallowed and its
// connection closed without a response. The trigger is process-wide and
// fires exactly once.
package worker
