package game

import (
	"math/rand"
	"sync"
)

// DefaultAvatars is the fixed set of 16 avatars players can pick from.
var DefaultAvatars = []string{
	"🦊", "🐼", "🐨", "🦁",
	"🐯", "🐸", "🐙", "🦄",
	"🐵", "🐰", "🐻", "🐷",
	"🐹", "🦉", "🐺", "🐮",
}

// IsAvatar reports whether a belongs to the fixed avatar set
func IsAvatar(a string) bool {
	for _, v := range DefaultAvatars {
		if v == a {
			return true
		}
	}
	return false
}

// AvatarPool hands out unique avatars within one room. Pools are per-room
// and per-process; when missing after a restart they are rebuilt from the
// room's player list.
type AvatarPool struct {
	mu    sync.Mutex
	inUse map[string]bool
}

// NewAvatarPool creates an empty pool
func NewAvatarPool() *AvatarPool {
	return &AvatarPool{inUse: make(map[string]bool)}
}

// Acquire returns a random unused avatar and marks it used. When every
// avatar is taken it falls back to a random member of the set.
func (p *AvatarPool) Acquire() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := make([]string, 0, len(DefaultAvatars))
	for _, a := range DefaultAvatars {
		if !p.inUse[a] {
			free = append(free, a)
		}
	}
	if len(free) == 0 {
		return DefaultAvatars[rand.Intn(len(DefaultAvatars))]
	}
	a := free[rand.Intn(len(free))]
	p.inUse[a] = true
	return a
}

// MarkUsed claims a specific avatar. Returns false when it is not a member
// of the set or already taken; the caller should Acquire instead.
func (p *AvatarPool) MarkUsed(a string) bool {
	if !IsAvatar(a) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse[a] {
		return false
	}
	p.inUse[a] = true
	return true
}

// Release returns an avatar to the pool
func (p *AvatarPool) Release(a string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, a)
}

// Reset clears all claims
func (p *AvatarPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse = make(map[string]bool)
}
