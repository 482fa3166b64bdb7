package sync

import (
	stdsync "sync"
	"time"

	syncdomain "github.com/qbridge/backend/internal/domain/sync"
)

// SessionStore is the in-memory session table. Sessions are ephemeral by
// design: a process restart drops them all, and clients recover by
// re-authenticating against the durable checkpoint log.
type SessionStore struct {
	mu       stdsync.Mutex
	byTicket map[string]*syncdomain.Session
}

// NewSessionStore creates an empty session table
func NewSessionStore() *SessionStore {
	return &SessionStore{byTicket: make(map[string]*syncdomain.Session)}
}

// Put registers a session under its ticket
func (s *SessionStore) Put(session *syncdomain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTicket[session.Ticket] = session
}

// Get looks a session up by ticket
func (s *SessionStore) Get(ticket string) (*syncdomain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byTicket[ticket]
	return session, ok
}

// ActiveForPairing returns the non-terminal session for a pairing, if any.
// At most one exists; Put is only called after this check.
func (s *SessionStore) ActiveForPairing(pairing string) (*syncdomain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.byTicket {
		if session.Pairing == pairing && !session.Status.IsTerminal() {
			return session, true
		}
	}
	return nil, false
}

// Remove drops a session from the table
func (s *SessionStore) Remove(ticket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byTicket, ticket)
}

// EvictIdle aborts and drops sessions without client activity for longer
// than the timeout, returning the evicted tickets. Terminal sessions stay
// until they idle out too, so a finished client can still read its result.
func (s *SessionStore) EvictIdle(now time.Time, timeout time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for ticket, session := range s.byTicket {
		if session.IdleFor(now) > timeout {
			if !session.Status.IsTerminal() {
				session.Abort()
			}
			delete(s.byTicket, ticket)
			evicted = append(evicted, ticket)
		}
	}
	return evicted
}

// Len returns the number of tracked sessions
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byTicket)
}
