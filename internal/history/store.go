// Package history keeps bounded per-session conversation turns in memory.
package history

import (
	"sync"

	"sidekick-relay/internal/models"
)

// DefaultLimit is the number of turns retained per session key.
const DefaultLimit = 20

// Store keeps bounded, in-memory conversation histories keyed by session.
type Store struct {
	mu    sync.RWMutex
	limit int
	turns map[string][]models.Turn
}

// NewStore constructs an empty store. A non-positive limit selects DefaultLimit.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit: limit,
		turns: make(map[string][]models.Turn),
	}
}

// Append adds turns to the history for key under a single lock, so a
// user/assistant pair lands together. When the cap is exceeded the oldest
// pair is evicted as a unit.
func (s *Store) Append(key string, turns ...models.Turn) {
	if len(turns) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.turns[key], turns...)
	for len(history) > s.limit {
		drop := 2
		if len(history) < drop {
			drop = len(history)
		}
		history = history[drop:]
	}

	// Compact so the backing array does not grow without bound.
	out := make([]models.Turn, len(history))
	copy(out, history)
	s.turns[key] = out
}

// Get returns a snapshot of the history for key.
func (s *Store) Get(key string) []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.turns[key]
	if len(history) == 0 {
		return nil
	}
	out := make([]models.Turn, len(history))
	copy(out, history)
	return out
}

// Len returns the number of turns stored for key.
func (s *Store) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns[key])
}

// Clear removes every key's history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = make(map[string][]models.Turn)
}
