package auth

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// SessionRegistry tracks the authentication session of every live
// connection, keyed by connection id.
type SessionRegistry struct {
	l        sync.RWMutex
	sessions map[string]*Session

	credentials CredentialStore
	logger      *logrus.Entry
}

// NewSessionRegistry ...
func NewSessionRegistry(credentials CredentialStore, logger *logrus.Entry) *SessionRegistry {
	return &SessionRegistry{
		sessions:    make(map[string]*Session),
		credentials: credentials,
		logger:      logger,
	}
}

// GetOrCreate returns the connection's session, creating it if this is the
// first handshake message seen on the connection. At most one session is ever
// created per connection id, however many goroutines race on it; losers of
// the race use the winner's session.
func (r *SessionRegistry) GetOrCreate(connID string) *Session {
	r.l.RLock()
	session, ok := r.sessions[connID]
	r.l.RUnlock()

	if ok {
		return session
	}

	r.l.Lock()
	defer r.l.Unlock()

	// re-check: another goroutine may have won the race
	if session, ok := r.sessions[connID]; ok {
		return session
	}

	session = NewSession(connID, r.credentials, r.logger)
	r.sessions[connID] = session

	return session
}

// Get returns the connection's session if one exists.
func (r *SessionRegistry) Get(connID string) (*Session, bool) {
	r.l.RLock()
	defer r.l.RUnlock()

	session, ok := r.sessions[connID]
	return session, ok
}

// Drop closes and forgets the connection's session. It is called when the
// connection goes away; a reconnecting worker starts a fresh handshake.
func (r *SessionRegistry) Drop(connID string) {
	r.l.Lock()
	session, ok := r.sessions[connID]
	delete(r.sessions, connID)
	r.l.Unlock()

	if ok {
		session.Close()
	}
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.l.RLock()
	defer r.l.RUnlock()

	return len(r.sessions)
}
