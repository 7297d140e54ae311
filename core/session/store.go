// Package session keeps bounded per-session conversation history in
// memory so the HTTP boundary can feed prior turns back into the chat
// pipeline. Sessions evict least-recently-used; nothing is persisted.
package session

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/azzcolabs/concierge/core/persona"
)

const (
	// DefaultMaxSessions bounds how many concurrent sessions are kept.
	DefaultMaxSessions = 1024

	// DefaultMaxTurns bounds the turns retained per session.
	DefaultMaxTurns = 20
)

// Store holds conversation history keyed by session id.
type Store struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, []persona.Turn]
	maxTurns int
}

// NewStore creates a history store. Zero arguments fall back to the
// defaults.
func NewStore(maxSessions, maxTurns int) (*Store, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	cache, err := lru.New[string, []persona.Turn](maxSessions)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache, maxTurns: maxTurns}, nil
}

// Append adds a turn to a session, trimming the oldest turns past the
// per-session bound.
func (s *Store) Append(sessionID string, turn persona.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, _ := s.cache.Get(sessionID)
	turns = append(turns, turn)
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.cache.Add(sessionID, turns)
}

// History returns the session's turns in chronological order. The
// returned slice is a copy; callers may hold it across calls.
func (s *Store) History(sessionID string) []persona.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns, ok := s.cache.Get(sessionID)
	if !ok {
		return nil
	}
	out := make([]persona.Turn, len(turns))
	copy(out, turns)
	return out
}

// Len reports how many sessions are currently tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
