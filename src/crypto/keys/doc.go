// Package keys implements the public key cryptography used throughout
// pretzel.
//
// Every pretzel worker owns a cryptographic key-pair that identifies it within
// a job. The private key is secret but the public key is published in the
// workers.json registry, where other workers find it to verify handshake
// signatures.
//
// Pretzel uses elliptic curve cryptography (ECDSA) with the secp256k1 curve.
package keys
