package service

import (
	"context"
	"strings"
	"time"

	"itinera/internal/domain"
	"itinera/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DraftService keeps the multi-step builder form between page loads.
type DraftService struct {
	draftRepo   domain.DraftRepository
	itineraries domain.ItineraryService
	logger      *zerolog.Logger
}

func NewDraftService(draftRepo domain.DraftRepository, itineraries domain.ItineraryService, logger *zerolog.Logger) *DraftService {
	return &DraftService{
		draftRepo:   draftRepo,
		itineraries: itineraries,
		logger:      logger,
	}
}

// GetDraft returns nil without error when the draft does not exist or expired.
func (s *DraftService) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	draft, err := s.draftRepo.GetDraft(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("draft_id", id).Msg("failed to get draft")
		return nil, err
	}

	return draft, nil
}

// SaveDraft stores settings as-is; drafts may be incomplete. An empty id
// mints a new draft.
func (s *DraftService) SaveDraft(ctx context.Context, id string, settings models.TripSettings) (*models.Draft, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	draft := &models.Draft{
		ID:        id,
		Settings:  settings,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.draftRepo.SaveDraft(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *DraftService) ClearDraft(ctx context.Context, id string) error {
	return s.draftRepo.ClearDraft(ctx, id)
}

// GenerateFromDraft generates and persists an itinerary from a stored draft,
// then clears the draft.
func (s *DraftService) GenerateFromDraft(ctx context.Context, id string) (*models.Itinerary, string, error) {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if draft == nil {
		return nil, "", ErrDraftNotFound
	}

	it, redirect, err := s.itineraries.Generate(ctx, draft.Settings)
	if err != nil {
		return nil, "", err
	}

	if err := s.draftRepo.ClearDraft(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("draft_id", id).Msg("failed to clear draft after generate")
	}
	return it, redirect, nil
}
