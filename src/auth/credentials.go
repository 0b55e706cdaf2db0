package auth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/pretzelio/pretzel/src/common"
	"github.com/pretzelio/pretzel/src/crypto/keys"
	"github.com/pretzelio/pretzel/src/peers"
)

// CredentialStore resolves the public key a worker registered for the job.
// It is the collaborator that handshake sessions verify identity claims
// against. The session layer treats it as opaque; the canonical
// implementation reads the workers.json registry.
type CredentialStore interface {
	// PublicKey returns the public key registered for a worker id.
	PublicKey(workerID uint32) (*ecdsa.PublicKey, error)
}

// RegistryCredentials implements CredentialStore over the worker registry.
type RegistryCredentials struct {
	peerSet *peers.PeerSet
}

// NewRegistryCredentials ...
func NewRegistryCredentials(peerSet *peers.PeerSet) *RegistryCredentials {
	return &RegistryCredentials{peerSet: peerSet}
}

// PublicKey implements the CredentialStore interface.
func (rc *RegistryCredentials) PublicKey(workerID uint32) (*ecdsa.PublicKey, error) {
	peer, ok := rc.peerSet.ByID[workerID]
	if !ok {
		return nil, common.NewStoreErr("credentials", common.UnknownWorker, fmt.Sprint(workerID))
	}

	pubKey := keys.ToPublicKey(peer.PubKeyBytes())
	if pubKey == nil || pubKey.X == nil {
		return nil, fmt.Errorf("worker %d has an invalid public key in the registry", workerID)
	}

	return pubKey, nil
}
