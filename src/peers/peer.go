package peers

import (
	"encoding/hex"
	"strings"

	"github.com/pretzelio/pretzel/src/crypto/keys"
)

// Peer is a worker taking part in a pretzel job. Peers are identified by
// their public keys. The Moniker is a non-unique, user-friendly name.
type Peer struct {
	NetAddr   string `json:"NetAddr"`
	PubKeyHex string `json:"PubKeyHex"`
	Moniker   string `json:"Moniker"`

	id uint32
}

// NewPeer instantiates a new Peer.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}

	return peer
}

// ID returns the compact numeric identifier of the peer, a 32-bit hash of its
// public key. It is computed lazily and cached. This is the client id that
// the peer stamps on its wire requests.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		p.id = keys.PublicKeyID(p.PubKeyBytes())
	}
	return p.id
}

// PubKeyBytes returns the byte slice representation of the peer's public key,
// as parsed from the PubKeyHex field.
func (p *Peer) PubKeyBytes() []byte {
	res, _ := hex.DecodeString(strings.TrimPrefix(strings.ToLower(p.PubKeyHex), "0x"))
	return res
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, peer uint32) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID() != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
