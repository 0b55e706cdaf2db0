package auth

import "sync/atomic"

// State captures the authentication state of a connection's session:
// Unauthenticated, Handshaking, Ready, or Closed.
type State uint32

const (
	// Unauthenticated is the initial state of every session.
	Unauthenticated State = iota
	// Handshaking means a challenge has been issued and the session is
	// waiting for the matching signature.
	Handshaking
	// Ready means the remote worker has proven its identity.
	Ready
	// Closed is terminal; a closed session never becomes Ready.
	Closed
)

// String ...
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "Unauthenticated"
	case Handshaking:
		return "Handshaking"
	case Ready:
		return "Ready"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}
