package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"quizcast/internal/game"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore keeps serialized room records in process memory. It mirrors
// the cache semantics of the Redis store (serialized values, sliding TTL,
// active-rooms set) so the two are interchangeable. Expiry is checked
// lazily on access; there is no sweeper.
type MemoryStore struct {
	mu     sync.RWMutex
	rooms  map[string]memoryEntry
	active map[string]struct{}
	locks  *keyedMutex
	ttl    time.Duration
}

// NewMemoryStore creates an in-memory store with the given sliding TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		rooms:  make(map[string]memoryEntry),
		active: make(map[string]struct{}),
		locks:  newKeyedMutex(),
		ttl:    ttl,
	}
}

// Create stores a new room record, set-if-absent.
func (s *MemoryStore) Create(ctx context.Context, code string, room *game.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.rooms[code]; ok && time.Now().Before(e.expiresAt) {
		return ErrCodeInUse
	}

	room.Version = 1
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room %s: %w", code, err)
	}
	s.rooms[code] = memoryEntry{data: data, expiresAt: time.Now().Add(s.ttl)}
	s.active[code] = struct{}{}
	return nil
}

// Get returns a copy of the room record or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, code string) (*game.Room, error) {
	s.mu.RLock()
	e, ok := s.rooms[code]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		s.expire(code)
		return nil, ErrNotFound
	}

	var room game.Room
	if err := json.Unmarshal(e.data, &room); err != nil {
		return nil, fmt.Errorf("unmarshal room %s: %w", code, err)
	}
	return &room, nil
}

// Update applies mutate under the per-code lock and writes back with a
// refreshed TTL.
func (s *MemoryStore) Update(ctx context.Context, code string, mutate func(*game.Room) error) (*game.Room, error) {
	unlock := s.locks.lock(code)
	defer unlock()

	room, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := mutate(room); err != nil {
		return nil, err
	}
	room.Version++

	data, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("marshal room %s: %w", code, err)
	}

	s.mu.Lock()
	s.rooms[code] = memoryEntry{data: data, expiresAt: time.Now().Add(s.ttl)}
	s.active[code] = struct{}{}
	s.mu.Unlock()
	return room, nil
}

// Delete removes the record and active-set membership.
func (s *MemoryStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	delete(s.active, code)
	return nil
}

// ActiveCodes lists codes whose records have not expired.
func (s *MemoryStore) ActiveCodes(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.active))
	now := time.Now()
	for code := range s.active {
		if e, ok := s.rooms[code]; ok && now.Before(e.expiresAt) {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expire(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.rooms[code]; ok && time.Now().After(e.expiresAt) {
		delete(s.rooms, code)
		delete(s.active, code)
	}
}
