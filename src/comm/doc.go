// Package comm implements the shared server-side state of a pretzel worker.
//
// During a superstep, a worker receives three kinds of traffic from its
// peers: vertex messages for the next superstep, graph mutations, and whole
// vertices being moved between partitions. This package holds the data
// structures those requests land in, with the concurrency contracts the
// request handlers rely on:
//
// - ServerState keeps two message stores, one being consumed by the current
// superstep and one accumulating messages for the next. PrepareSuperstep
// rotates them at the superstep boundary.
//
// - MutationLedger and VertexStaging accumulate graph mutations and staged
// vertices until the compute layer collects them with SnapshotAndClear.
//
// - ReservedRequests gives every request a single execution, keyed by
// (client id, request id), so that client retries after dropped connections
// do not apply a request twice.
//
// - FaultInjector simulates a dropped connection on the first request a
// worker receives, which is how the exactly-once path is exercised in
// integration tests.
package comm
