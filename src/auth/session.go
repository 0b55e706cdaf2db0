package auth

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/pretzelio/pretzel/src/crypto"
	"github.com/pretzelio/pretzel/src/crypto/keys"
	"github.com/sirupsen/logrus"
)

const challengeSize = 32

// Session tracks the authentication handshake of a single connection.
//
// The handshake takes two legs. In the first, the remote worker announces its
// id and receives a random challenge. In the second, it returns an ECDSA
// signature over the challenge's hash, which the session verifies against the
// public key registered for that id. A session that fails verification
// closes and never becomes Ready.
//
// Process serializes on an internal lock; the state is read atomically so
// observers never block behind a handshake in progress.
type Session struct {
	state

	connID      string
	credentials CredentialStore
	logger      *logrus.Entry

	l         sync.Mutex
	claimedID uint32
	challenge []byte
}

// NewSession creates a Session for one connection in the Unauthenticated
// state.
func NewSession(connID string, credentials CredentialStore, logger *logrus.Entry) *Session {
	return &Session{
		connID:      connID,
		credentials: credentials,
		logger: logger.WithFields(logrus.Fields{
			"component": "auth",
			"conn":      connID,
		}),
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	return s.getState()
}

// PeerID returns the id of the authenticated worker. It is only meaningful
// once the session is Ready.
func (s *Session) PeerID() uint32 {
	s.l.Lock()
	defer s.l.Unlock()

	return s.claimedID
}

// Process advances the handshake with one leg from the remote worker. For the
// first leg, signature is empty and Process returns the challenge to sign.
// For the second leg, Process verifies the signature and completes the
// handshake, returning complete = true.
func (s *Session) Process(fromID uint32, signature string) (challenge []byte, complete bool, err error) {
	s.l.Lock()
	defer s.l.Unlock()

	switch s.getState() {
	case Unauthenticated:
		s.challenge = make([]byte, challengeSize)
		if _, err := rand.Read(s.challenge); err != nil {
			s.setState(Closed)
			return nil, false, fmt.Errorf("generating challenge: %w", err)
		}

		s.claimedID = fromID
		s.setState(Handshaking)

		s.logger.WithField("from", fromID).Debug("Issued handshake challenge")

		return s.challenge, false, nil

	case Handshaking:
		if fromID != s.claimedID {
			s.setState(Closed)
			return nil, false, fmt.Errorf("handshake id changed from %d to %d", s.claimedID, fromID)
		}

		pubKey, err := s.credentials.PublicKey(fromID)
		if err != nil {
			s.setState(Closed)
			return nil, false, err
		}

		r, sig, err := keys.DecodeSignature(signature)
		if err != nil {
			s.setState(Closed)
			return nil, false, err
		}

		if !keys.Verify(pubKey, crypto.SHA256(s.challenge), r, sig) {
			s.setState(Closed)
			return nil, false, fmt.Errorf("invalid handshake signature from worker %d", fromID)
		}

		s.setState(Ready)

		s.logger.WithField("from", fromID).Debug("Handshake complete")

		return nil, true, nil

	case Ready:
		// the remote already proved its identity on this connection
		return nil, true, nil

	default:
		return nil, false, fmt.Errorf("session is closed")
	}
}

// Close marks the session Closed. It is called when the underlying
// connection goes away.
func (s *Session) Close() {
	s.setState(Closed)
}
