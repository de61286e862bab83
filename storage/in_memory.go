package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/personamesh/core"
)

// room is the internal representation of a storage room. The secret token
// doubles as the room id; the persistence token is an optional caller-supplied
// correlation key indexed separately.
type room struct {
	id               string
	persistenceToken string
	participants     map[string]struct{}
}

// InMemoryStore is a volatile Store implementation keeping rooms and
// participants in process-local maps. It is safe for concurrent access and
// best suited for tests or single-process deployments. Participant reads
// return copies to prevent external mutation of internal state.
type InMemoryStore struct {
	mu         sync.RWMutex
	rooms      map[string]*room  // secret token -> room
	byExternal map[string]string // persistence token -> secret token
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rooms:      make(map[string]*room),
		byExternal: make(map[string]string),
	}
}

// Init implements core.Store; nothing to prepare for the in-memory backend.
func (s *InMemoryStore) Init(_ context.Context) error { return nil }

// CreateRoom allocates a room under a fresh secret token, optionally indexed
// by the caller-supplied persistence token.
func (s *InMemoryStore) CreateRoom(_ context.Context, persistenceToken string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if persistenceToken != "" {
		if _, exists := s.byExternal[persistenceToken]; exists {
			return "", fmt.Errorf("persistence token %q already in use", persistenceToken)
		}
	}

	secret := core.NewID()
	s.rooms[secret] = &room{
		id:               secret,
		persistenceToken: persistenceToken,
		participants:     make(map[string]struct{}),
	}
	if persistenceToken != "" {
		s.byExternal[persistenceToken] = secret
	}
	return secret, nil
}

// RemoveRoom releases the room and its persistence token index entry.
func (s *InMemoryStore) RemoveRoom(_ context.Context, secretToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[secretToken]
	if !ok {
		return fmt.Errorf("room %s not found", secretToken)
	}
	if r.persistenceToken != "" {
		delete(s.byExternal, r.persistenceToken)
	}
	delete(s.rooms, secretToken)
	return nil
}

// GetRoom resolves a secret or persistence token to the room id.
func (s *InMemoryStore) GetRoom(_ context.Context, token string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rooms[token]; ok {
		return token, true, nil
	}
	if secret, ok := s.byExternal[token]; ok {
		return secret, true, nil
	}
	return "", false, nil
}

// AddParticipant records a user's membership; adding an existing participant
// is a no-op.
func (s *InMemoryStore) AddParticipant(_ context.Context, userID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s not found", roomID)
	}
	r.participants[userID] = struct{}{}
	return nil
}

// RemoveParticipant drops a user's membership; removing a non-participant is
// a no-op.
func (s *InMemoryStore) RemoveParticipant(_ context.Context, userID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s not found", roomID)
	}
	delete(r.participants, userID)
	return nil
}

// ParticipantsForRoom returns a copy of the room's participant id set.
func (s *InMemoryStore) ParticipantsForRoom(_ context.Context, roomID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s not found", roomID)
	}
	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	return ids, nil
}
