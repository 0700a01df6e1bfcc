package store

import (
	"context"
	"errors"
	"sync"

	"quizcast/internal/game"
)

// Cache key layout.
const (
	roomKeyPrefix  = "room:"
	activeRoomsKey = "active:rooms"
)

var (
	ErrNotFound      = errors.New("room not found")
	ErrCodeInUse     = errors.New("room code already in use")
	ErrConflict      = errors.New("concurrent room update conflict")
	ErrCodeExhausted = errors.New("could not allocate a room code")
)

// RoomStore is read-modify-write access to room records keyed by code.
// Within one process all mutations to the same code are serialized; Update
// holds the per-code lock across read, mutate and write-back, and every
// write refreshes the sliding TTL.
type RoomStore interface {
	// Create stores a new room, failing with ErrCodeInUse when the code is
	// taken, and adds the code to the active-rooms set.
	Create(ctx context.Context, code string, room *game.Room) error
	// Get returns a copy of the room record or ErrNotFound.
	Get(ctx context.Context, code string) (*game.Room, error)
	// Update applies mutate to the current record under the per-code lock
	// and writes the result back. A mutate error aborts the write and is
	// returned as-is. The committed record is returned.
	Update(ctx context.Context, code string, mutate func(*game.Room) error) (*game.Room, error)
	// Delete removes the record and its active-set membership.
	Delete(ctx context.Context, code string) error
	// ActiveCodes lists the codes currently in the active-rooms set.
	ActiveCodes(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

func roomKey(code string) string {
	return roomKeyPrefix + code
}

// keyedMutex serializes work per room code.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
