// Package session tracks console logins.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is one successful login.
type Session struct {
	Token      string
	Username   string
	RemoteAddr string
	CreatedAt  time.Time
}

// Store maps opaque tokens to sessions. A token is either present and valid
// or absent; nothing expires on a timer. Store has a single owner and is not
// safe for concurrent use.
type Store struct {
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session with a fresh random token.
func (s *Store) Create(username, remoteAddr string) *Session {
	sess := &Session{
		Token:      uuid.NewString(),
		Username:   username,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now().UTC(),
	}
	s.sessions[sess.Token] = sess
	return sess
}

// Lookup returns the session for token, if any.
func (s *Store) Lookup(token string) (*Session, bool) {
	if token == "" {
		return nil, false
	}
	sess, ok := s.sessions[token]
	return sess, ok
}

func (s *Store) Valid(token string) bool {
	_, ok := s.Lookup(token)
	return ok
}

// Revoke removes token and reports whether it was present.
func (s *Store) Revoke(token string) bool {
	if _, ok := s.sessions[token]; !ok {
		return false
	}
	delete(s.sessions, token)
	return true
}

// Reset drops every session.
func (s *Store) Reset() {
	clear(s.sessions)
}

func (s *Store) Len() int {
	return len(s.sessions)
}
