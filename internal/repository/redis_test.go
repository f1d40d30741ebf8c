package repository

import (
	"context"
	"testing"
	"time"

	"itinera/internal/config"
	"itinera/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDraftRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisDraftRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SaveAndGetDraft", func(t *testing.T) {
		draft := &models.Draft{
			ID: "d-123",
			Settings: models.TripSettings{
				Destination: "Kyoto",
				Cities:      []string{"Osaka"},
				Theme:       "Cultural",
			},
		}

		err := repo.SaveDraft(ctx, draft)
		require.NoError(t, err)

		got, err := repo.GetDraft(ctx, "d-123")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Kyoto", got.Settings.Destination)
		assert.Equal(t, []string{"Osaka"}, got.Settings.Cities)

		assert.True(t, s.Exists("draft:d-123"))
		assert.Equal(t, time.Hour, s.TTL("draft:d-123"))
	})

	t.Run("GetMissingDraft", func(t *testing.T) {
		got, err := repo.GetDraft(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DraftExpires", func(t *testing.T) {
		require.NoError(t, repo.SaveDraft(ctx, &models.Draft{ID: "short"}))
		s.FastForward(time.Hour + time.Second)

		got, err := repo.GetDraft(ctx, "short")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearDraft", func(t *testing.T) {
		require.NoError(t, repo.SaveDraft(ctx, &models.Draft{ID: "gone"}))

		err := repo.ClearDraft(ctx, "gone")
		require.NoError(t, err)

		got, _ := repo.GetDraft(ctx, "gone")
		assert.Nil(t, got)
	})

	t.Run("CorruptDraft", func(t *testing.T) {
		require.NoError(t, s.Set("draft:bad", "{not json"))
		_, err := repo.GetDraft(ctx, "bad")
		assert.Error(t, err)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "comment:token-1:127.0.0.1"
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		// Third request (exceeds limit)
		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		// Wait for window to expire
		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisDraftRepository(nil, time.Hour)
		_, err := repo.GetDraft(ctx, "x")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
		assert.Error(t, repo.SaveDraft(ctx, &models.Draft{ID: "x"}))
		assert.Error(t, repo.ClearDraft(ctx, "x"))
		_, err = repo.CheckRateLimit(ctx, "x", 1, time.Second)
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		err := Ping(ctx, client)
		assert.NoError(t, err)
	})
}

func TestRedisDraftRepository_ServerDown(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	s.Close()

	repo := NewRedisDraftRepository(client, time.Hour)
	_, err = repo.GetDraft(context.Background(), "x")
	assert.Error(t, err)
	assert.Error(t, Ping(context.Background(), client))
}

func TestClose(t *testing.T) {
	assert.NoError(t, Close(nil))
}
