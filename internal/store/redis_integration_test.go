package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"quizcast/internal/game"
)

// startRedis spins up a disposable Redis container. Guarded behind the
// INTEGRATION env var so the default test run stays container-free.
func startRedis(t *testing.T) *RedisStore {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run container-backed tests")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	addr := strings.TrimPrefix(endpoint, "redis://")

	s, err := NewRedisStore(addr, "", 0, 4*time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := startRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "K7MN2P", testRoom("K7MN2P")))
	assert.ErrorIs(t, s.Create(ctx, "K7MN2P", testRoom("K7MN2P")), ErrCodeInUse)

	room, err := s.Get(ctx, "K7MN2P")
	require.NoError(t, err)
	assert.Equal(t, "K7MN2P", room.Code)
	assert.EqualValues(t, 1, room.Version)

	updated, err := s.Update(ctx, "K7MN2P", func(r *game.Room) error {
		return r.AddPlayer(game.NewPlayer("p1", "Alice", "🦊"))
	})
	require.NoError(t, err)
	assert.Len(t, updated.Players, 1)
	assert.EqualValues(t, 2, updated.Version)

	codes, err := s.ActiveCodes(ctx)
	require.NoError(t, err)
	assert.Contains(t, codes, "K7MN2P")

	require.NoError(t, s.Delete(ctx, "K7MN2P"))
	_, err = s.Get(ctx, "K7MN2P")
	assert.ErrorIs(t, err, ErrNotFound)

	codes, err = s.ActiveCodes(ctx)
	require.NoError(t, err)
	assert.NotContains(t, codes, "K7MN2P")
}

func TestRedisStoreUpdateMissing(t *testing.T) {
	s := startRedis(t)
	_, err := s.Update(context.Background(), "NOPE42", func(r *game.Room) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreSerializedWrites(t *testing.T) {
	s := startRedis(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "ABC234", testRoom("ABC234")))

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_, err := s.Update(ctx, "ABC234", func(r *game.Room) error {
				r.CurrentQuestionIndex++
				return nil
			})
			done <- err
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, <-done)
	}

	room, err := s.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, 20, room.CurrentQuestionIndex)
}
