package peers

import "sort"

// PeerSet is the set of workers taking part in a job.
type PeerSet struct {
	Peers    []*Peer          `json:"peers"`
	ByPubKey map[string]*Peer `json:"-"`
	ByID     map[uint32]*Peer `json:"-"`
}

// NewPeerSet creates a new PeerSet from a list of Peers. The list is sorted by
// ID so that all workers reading the same registry agree on the order.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByPubKey: make(map[string]*Peer),
		ByID:     make(map[uint32]*Peer),
	}

	for _, peer := range peers {
		peerSet.ByPubKey[peer.PubKeyHex] = peer
		peerSet.ByID[peer.ID()] = peer
	}

	sorted := make([]*Peer, len(peers))
	copy(sorted, peers)
	sort.Sort(ByID(sorted))

	peerSet.Peers = sorted

	return peerSet
}

// WithNewPeer returns a new PeerSet with a list of peers including the new
// one.
func (ps *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := append(ps.Peers, peer)
	return NewPeerSet(peers)
}

// WithRemovedPeer returns a new PeerSet with a list of peers excluding the
// one identified by the given ID.
func (ps *PeerSet) WithRemovedPeer(id uint32) *PeerSet {
	_, peers := ExcludePeer(ps.Peers, id)
	return NewPeerSet(peers)
}

// Len returns the number of peers in the set.
func (ps *PeerSet) Len() int {
	return len(ps.ByPubKey)
}

// IDs returns the sorted list of peer IDs.
func (ps *PeerSet) IDs() []uint32 {
	res := make([]uint32, 0, len(ps.Peers))
	for _, peer := range ps.Peers {
		res = append(res, peer.ID())
	}
	return res
}

// ByID implements sort.Interface for a list of peers based on ID.
type ByID []*Peer

func (a ByID) Len() int           { return len(a) }
func (a ByID) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByID) Less(i, j int) bool { return a[i].ID() < a[j].ID() }
