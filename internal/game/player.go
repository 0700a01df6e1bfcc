package game

import (
	"time"
)

// Player represents a player in a room
type Player struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar"`
	Score       int       `json:"score"`
	Streak      int       `json:"streak"`
	JingleID    string    `json:"jingleId,omitempty"`
	IsConnected bool      `json:"isConnected"`
	IsHost      bool      `json:"isHost"`
	IsReady     bool      `json:"isReady"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// NewPlayer creates a connected player
func NewPlayer(id, name, avatar string) *Player {
	return &Player{
		ID:          id,
		Name:        name,
		Avatar:      avatar,
		IsConnected: true,
		JoinedAt:    time.Now(),
	}
}
