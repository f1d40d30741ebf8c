package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"itinera/internal/models"
	"itinera/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDraftRepository struct {
	mock.Mock
}

func (m *MockDraftRepository) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Draft), args.Error(1)
}

func (m *MockDraftRepository) SaveDraft(ctx context.Context, draft *models.Draft) error {
	return m.Called(ctx, draft).Error(0)
}

func (m *MockDraftRepository) ClearDraft(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockDraftRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestDraftService_GetDraft(t *testing.T) {
	mockRepo := new(MockDraftRepository)
	logger := zerolog.Nop()
	s := NewDraftService(mockRepo, nil, &logger)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		expected := &models.Draft{ID: "d1", Settings: models.TripSettings{Destination: "Rome"}}
		mockRepo.On("GetDraft", ctx, "d1").Return(expected, nil).Once()

		draft, err := s.GetDraft(ctx, "d1")
		assert.NoError(t, err)
		assert.Equal(t, expected, draft)
	})

	t.Run("Error", func(t *testing.T) {
		mockRepo.On("GetDraft", ctx, "d1").Return(nil, errors.New("redis down")).Once()

		draft, err := s.GetDraft(ctx, "d1")
		assert.Error(t, err)
		assert.Nil(t, draft)
	})
	mockRepo.AssertExpectations(t)
}

func TestDraftService_SaveDraft(t *testing.T) {
	mockRepo := new(MockDraftRepository)
	logger := zerolog.Nop()
	s := NewDraftService(mockRepo, nil, &logger)
	ctx := context.Background()

	t.Run("MintsID", func(t *testing.T) {
		mockRepo.On("SaveDraft", ctx, mock.MatchedBy(func(d *models.Draft) bool {
			return d.ID != "" && d.Settings.Destination == "Rome"
		})).Return(nil).Once()

		draft, err := s.SaveDraft(ctx, "", models.TripSettings{Destination: "Rome"})
		require.NoError(t, err)
		assert.NotEmpty(t, draft.ID)
		assert.False(t, draft.UpdatedAt.IsZero())
	})

	t.Run("IncompleteSettingsAllowed", func(t *testing.T) {
		mockRepo.On("SaveDraft", ctx, mock.Anything).Return(nil).Once()

		draft, err := s.SaveDraft(ctx, "d2", models.TripSettings{})
		require.NoError(t, err)
		assert.Equal(t, "d2", draft.ID)
	})

	t.Run("RepoError", func(t *testing.T) {
		mockRepo.On("SaveDraft", ctx, mock.Anything).Return(errors.New("fail")).Once()

		_, err := s.SaveDraft(ctx, "d3", models.TripSettings{})
		assert.Error(t, err)
	})
	mockRepo.AssertExpectations(t)
}

func TestDraftService_GenerateFromDraft(t *testing.T) {
	env := newTestEnv(t)
	logger := zerolog.Nop()
	drafts := repository.NewMemoryDraftRepository(time.Hour)
	s := NewDraftService(drafts, env.svc, &logger)
	ctx := context.Background()

	_, err := s.SaveDraft(ctx, "builder-1", parisSettings())
	require.NoError(t, err)

	it, redirect, err := s.GenerateFromDraft(ctx, "builder-1")
	require.NoError(t, err)
	assert.Equal(t, "/edit/"+it.ID, redirect)

	left, err := s.GetDraft(ctx, "builder-1")
	require.NoError(t, err)
	assert.Nil(t, left)

	t.Run("MissingDraft", func(t *testing.T) {
		_, _, err := s.GenerateFromDraft(ctx, "builder-1")
		assert.ErrorIs(t, err, ErrDraftNotFound)
	})

	t.Run("InvalidDraftIsKept", func(t *testing.T) {
		_, err := s.SaveDraft(ctx, "builder-2", models.TripSettings{Destination: "Oslo"})
		require.NoError(t, err)

		_, _, err = s.GenerateFromDraft(ctx, "builder-2")
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)

		kept, err := s.GetDraft(ctx, "builder-2")
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})
}
