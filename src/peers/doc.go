// Package peers defines the concept of a pretzel peer and implements
// functions to manage collections of peers.
//
// A peer is a worker process taking part in a pretzel job. Peers are
// identified by their public keys, and optionally a moniker, which is a
// non-unique user-friendly name. A peer also specifies an IP address and port
// where it can be reached by other workers.
//
// Upon starting up, a worker expects to find a workers.json file in its data
// directory, listing all the workers taking part in the job. The registry is
// the source of truth for handshake verification: a remote worker's identity
// claim is checked against the public key recorded here.
package peers
