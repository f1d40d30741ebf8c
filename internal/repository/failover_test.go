package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"itinera/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Draft), args.Error(1)
}

func (m *mockRepo) SaveDraft(ctx context.Context, draft *models.Draft) error {
	args := m.Called(ctx, draft)
	return args.Error(0)
}

func (m *mockRepo) ClearDraft(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverDraftRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverDraftRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		draft := &models.Draft{ID: "1"}
		primary.On("GetDraft", ctx, "1").Return(draft, nil).Once()

		got, err := repo.GetDraft(ctx, "1")
		assert.NoError(t, err)
		assert.Equal(t, draft, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		draft := &models.Draft{ID: "2"}
		primary.On("GetDraft", ctx, "2").Return(nil, errors.New("fail")).Once()
		fallback.On("GetDraft", ctx, "2").Return(draft, nil).Once()

		got, err := repo.GetDraft(ctx, "2")
		assert.NoError(t, err)
		assert.Equal(t, draft, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("SaveDraft", ctx, mock.Anything).Return(nil).Once()

		err := repo.SaveDraft(ctx, &models.Draft{ID: "3"})
		assert.NoError(t, err)
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "SaveDraft", ctx, mock.Anything)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

		draft := &models.Draft{ID: "4"}
		primary.On("GetDraft", ctx, "4").Return(draft, nil).Once()

		got, err := repo.GetDraft(ctx, "4")
		assert.NoError(t, err)
		assert.Equal(t, draft, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

		primary.On("GetDraft", ctx, "5").Return(nil, errors.New("still fail")).Once()
		fallback.On("GetDraft", ctx, "5").Return(nil, nil).Once()

		_, err := repo.GetDraft(ctx, "5")
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ClearDraftClearsBoth", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("ClearDraft", ctx, "6").Return(nil).Once()
		fallback.On("ClearDraft", ctx, "6").Return(nil).Once()

		err := repo.ClearDraft(ctx, "6")
		assert.NoError(t, err)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "k", 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "k", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SaveDraftFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		draft := &models.Draft{ID: "7"}
		primary.On("SaveDraft", ctx, draft).Return(errors.New("fail")).Once()
		fallback.On("SaveDraft", ctx, draft).Return(nil).Once()

		err := repo.SaveDraft(ctx, draft)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

func TestFailoverWithRealStores(t *testing.T) {
	logger := zerolog.New(io.Discard)
	primary := NewRedisDraftRepository(nil, time.Hour) // always errors
	fallback := NewMemoryDraftRepository(time.Hour)
	repo := NewFailoverDraftRepository(primary, fallback, &logger)
	ctx := context.Background()

	assert.NoError(t, repo.SaveDraft(ctx, &models.Draft{ID: "x", Settings: models.TripSettings{Destination: "Oslo"}}))
	got, err := repo.GetDraft(ctx, "x")
	assert.NoError(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, "Oslo", got.Settings.Destination)
	}
}
