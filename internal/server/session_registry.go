// Package server tracks joined participants in the SessionRegistry, the single
// source of truth for identity and presence.
package server

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

// SessionRegistry maps connection ids to joined sessions.
type SessionRegistry struct {
	mu            sync.RWMutex
	policy        TextPolicy
	maxNameLength int
	sessions      map[string]Session
}

// NewSessionRegistry creates an empty registry. Display names are sanitized
// through policy and limited to maxNameLength runes after trimming.
func NewSessionRegistry(policy TextPolicy, maxNameLength int) *SessionRegistry {
	if maxNameLength <= 0 {
		maxNameLength = 20
	}
	return &SessionRegistry{
		policy:        policy,
		maxNameLength: maxNameLength,
		sessions:      make(map[string]Session),
	}
}

// Join registers a session for connID. It fails with ErrInvalidUsername when
// the trimmed name is empty or too long, and with ErrAlreadyJoined when the
// connection already has a session.
func (r *SessionRegistry) Join(connID, rawName string, now time.Time) (Session, error) {
	trimmed := strings.TrimSpace(rawName)
	if n := utf8.RuneCountInString(trimmed); n == 0 || n > r.maxNameLength {
		return Session{}, ErrInvalidUsername
	}

	name := r.policy.Sanitize(trimmed)
	if name == "" {
		return Session{}, ErrInvalidUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connID]; exists {
		return Session{}, ErrAlreadyJoined
	}

	session := Session{
		ConnectionID: connID,
		DisplayName:  name,
		JoinedAt:     now,
	}
	r.sessions[connID] = session
	return session, nil
}

// Leave removes and returns the session for connID, if any.
func (r *SessionRegistry) Leave(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[connID]
	if ok {
		delete(r.sessions, connID)
	}
	return session, ok
}

// Get returns the session for connID.
func (r *SessionRegistry) Get(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[connID]
	return session, ok
}

// Has reports whether connID has joined.
func (r *SessionRegistry) Has(connID string) bool {
	_, ok := r.Get(connID)
	return ok
}

// Count returns the number of joined sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current sessions ordered by join time.
func (r *SessionRegistry) Snapshot() []Session {
	r.mu.RLock()
	sessions := lo.Values(r.sessions)
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].JoinedAt.Equal(sessions[j].JoinedAt) {
			return sessions[i].ConnectionID < sessions[j].ConnectionID
		}
		return sessions[i].JoinedAt.Before(sessions[j].JoinedAt)
	})
	return sessions
}
