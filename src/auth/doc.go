// Package auth implements the challenge-response handshake that workers use
// to prove their identity to each other.
//
// Every connection gets its own Session, created lazily when the first
// handshake message arrives and tracked in a SessionRegistry keyed by
// connection id. The handshake verifies an ECDSA signature over a random
// challenge against the public key the claimed worker registered in
// workers.json, resolved through the CredentialStore interface.
//
// Sessions gate nothing by themselves: the request handler decides what to
// do with traffic arriving on a connection that has not completed its
// handshake.
package auth
