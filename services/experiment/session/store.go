// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"errors"
	"sync"
)

// ErrSessionNotFound is returned when a session id resolves to nothing,
// either because it never existed or because the TTL sweeper removed it.
var ErrSessionNotFound = errors.New("session not found")

// Store holds the live sessions. Implementations must be safe for
// concurrent use; session state itself is guarded by the session.
type Store interface {
	// Get returns the session with the given id.
	Get(id string) (*Session, error)

	// Put registers a session under its ID, replacing any previous
	// entry with the same id.
	Put(s *Session)

	// Delete removes a session. Removing an absent id is a no-op; the
	// caller owns closing the session's audit writer.
	Delete(id string)

	// List snapshots all live sessions in unspecified order.
	List() []*Session

	// Len returns the number of live sessions.
	Len() int
}

// MemoryStore is the in-process Store used in production. Sessions
// hold open file handles, so they live in memory rather than in a
// persistent store; completed and expired sessions are summarized into
// the archive instead.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemoryStore) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
