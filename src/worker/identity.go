package worker

import (
	"crypto/ecdsa"

	"github.com/pretzelio/pretzel/src/crypto/keys"
)

// Identity holds the key material that identifies a worker to its peers. The
// ID derived from the public key doubles as the client identifier on outbound
// requests, so it must be stable for the duration of the job.
type Identity struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	id       uint32
	pubBytes []byte
	pubHex   string
}

// NewIdentity is a factory method for an Identity
func NewIdentity(key *ecdsa.PrivateKey, moniker string) *Identity {
	return &Identity{
		Key:     key,
		Moniker: moniker,
	}
}

// ID returns the worker's numeric ID, derived from its public key
func (i *Identity) ID() uint32 {
	if i.id == 0 {
		i.id = keys.PublicKeyID(i.PublicKeyBytes())
	}
	return i.id
}

// PublicKeyBytes returns the worker's public key as a byte array
func (i *Identity) PublicKeyBytes() []byte {
	if len(i.pubBytes) == 0 {
		i.pubBytes = keys.FromPublicKey(&i.Key.PublicKey)
	}
	return i.pubBytes
}

// PublicKeyHex returns the worker's public key as a hex string
func (i *Identity) PublicKeyHex() string {
	if len(i.pubHex) == 0 {
		i.pubHex = keys.PublicKeyHex(&i.Key.PublicKey)
	}
	return i.pubHex
}
