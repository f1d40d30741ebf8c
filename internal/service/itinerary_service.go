package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"itinera/internal/database"
	"itinera/internal/domain"
	"itinera/internal/events"
	"itinera/internal/generator"
	"itinera/internal/models"
	"itinera/internal/workflow"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRateLimited is returned when a share link posts comments too fast;
// ErrDraftNotFound when a builder draft is missing or expired.
var (
	ErrRateLimited   = errors.New("too many comments, try again later")
	ErrDraftNotFound = errors.New("draft not found")
)

// EditPath and SharePath build the in-app destinations returned after create
// and share.
func EditPath(id string) string { return "/edit/" + id }
func SharePath(token string) string { return "/itinerary/" + token }

type ItineraryServiceConfig struct {
	PublicBaseURL string
	CommentLimit  int
	CommentWindow time.Duration
}

type ItineraryService struct {
	repo      domain.ItineraryRepository
	generator generator.Generator
	eventBus  domain.EventPublisher
	worker    domain.SyncWorker
	limiter   domain.DraftRepository
	cfg       ItineraryServiceConfig
	logger    *zerolog.Logger
}

func NewItineraryService(
	repo domain.ItineraryRepository,
	gen generator.Generator,
	eventBus domain.EventPublisher,
	worker domain.SyncWorker,
	limiter domain.DraftRepository,
	cfg ItineraryServiceConfig,
	logger *zerolog.Logger,
) *ItineraryService {
	if cfg.CommentLimit <= 0 {
		cfg.CommentLimit = models.CommentRateLimit
	}
	if cfg.CommentWindow <= 0 {
		cfg.CommentWindow = models.CommentRateWindow * time.Second
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	l := logger.With().Str("component", "itinerary_service").Logger()
	return &ItineraryService{
		repo:      repo,
		generator: gen,
		eventBus:  eventBus,
		worker:    worker,
		limiter:   limiter,
		cfg:       cfg,
		logger:    &l,
	}
}

// ShareURL returns the absolute client link for token, or the bare path when
// no public base URL is configured.
func (s *ItineraryService) ShareURL(token string) string {
	return s.cfg.PublicBaseURL + SharePath(token)
}

// Generate builds a draft from settings, persists it and returns it with the
// edit path.
func (s *ItineraryService) Generate(ctx context.Context, settings models.TripSettings) (*models.Itinerary, string, error) {
	it, err := s.generator.Generate(settings)
	if err != nil {
		return nil, "", err
	}

	if err := s.repo.CreateItinerary(ctx, it); err != nil {
		s.logger.Error().Err(err).Str("destination", it.Destination).Msg("failed to save itinerary")
		return nil, "", err
	}

	s.logger.Info().Str("itinerary_id", it.ID).Int("days", len(it.Days)).Msg("itinerary generated")
	s.publishEvent(events.EventItineraryCreated, it, nil, "consultant")
	s.enqueue(ctx, models.TaskSheetUpsert, it.ID, it)

	return it, EditPath(it.ID), nil
}

// Preview runs the generator without persisting anything.
func (s *ItineraryService) Preview(_ context.Context, settings models.TripSettings) (*models.Itinerary, error) {
	return s.generator.Generate(settings)
}

func (s *ItineraryService) Get(ctx context.Context, id string) (*models.Itinerary, error) {
	return s.repo.GetItinerary(ctx, id)
}

func (s *ItineraryService) GetByShareToken(ctx context.Context, token string) (*models.Itinerary, error) {
	return s.repo.GetItineraryByShareToken(ctx, strings.TrimSpace(token))
}

func (s *ItineraryService) List(ctx context.Context, filter models.ItineraryFilter) ([]*models.Itinerary, error) {
	return s.repo.ListItineraries(ctx, filter)
}

func (s *ItineraryService) Stats(ctx context.Context) (models.DashboardStats, error) {
	all, err := s.repo.ListItineraries(ctx, models.ItineraryFilter{})
	if err != nil {
		return models.DashboardStats{}, err
	}
	return models.ComputeStats(all), nil
}

// Update applies a partial edit. version 0 means "whatever is current";
// otherwise it must match the stored version.
func (s *ItineraryService) Update(ctx context.Context, id string, patch models.ItineraryPatch, version int64) (*models.Itinerary, error) {
	it, err := s.repo.GetItinerary(ctx, id)
	if err != nil {
		return nil, err
	}
	if version != 0 && version != it.Version {
		return nil, database.ErrConcurrentModification
	}
	if patch.IsEmpty() {
		return it, nil
	}
	if err := validatePatch(it, patch); err != nil {
		return nil, err
	}

	fromVersion := it.Version
	daysChanged := patch.Apply(it)
	datesChanged := patch.StartDate != nil || patch.EndDate != nil
	if daysChanged {
		renumberDays(it.Days)
	}
	if daysChanged || datesChanged {
		alignToDates(it, patch)
	}

	if err := s.repo.UpdateItinerary(ctx, it, fromVersion, daysChanged || datesChanged); err != nil {
		return nil, err
	}

	s.publishEvent(events.EventItineraryUpdated, it, nil, "consultant")
	s.enqueue(ctx, models.TaskSheetUpsert, it.ID, it)
	return it, nil
}

func (s *ItineraryService) Delete(ctx context.Context, id string) error {
	it, err := s.repo.GetItinerary(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItinerary(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Str("itinerary_id", id).Msg("itinerary deleted")
	s.publishEvent(events.EventItineraryDeleted, it, nil, "consultant")
	s.enqueue(ctx, models.TaskSheetDelete, id, nil)
	return nil
}

// Share marks the itinerary shared and returns the client path. Sharing an
// already shared itinerary re-issues the same link without a write.
func (s *ItineraryService) Share(ctx context.Context, id string) (*models.Itinerary, string, error) {
	it, err := s.repo.GetItinerary(ctx, id)
	if err != nil {
		return nil, "", err
	}

	next, err := workflow.Transition(it.Status, workflow.EventShare)
	if err != nil {
		return nil, "", err
	}
	if next != it.Status {
		if it, err = s.setStatus(ctx, it, next); err != nil {
			return nil, "", err
		}
		s.publishEvent(events.EventItineraryShared, it, nil, "consultant")
		s.enqueue(ctx, models.TaskSheetUpsert, it.ID, it)
	}

	return it, SharePath(it.ShareToken), nil
}

// Complete closes the itinerary. It is an administrative action.
func (s *ItineraryService) Complete(ctx context.Context, id string) (*models.Itinerary, error) {
	it, err := s.repo.GetItinerary(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := workflow.Transition(it.Status, workflow.EventComplete)
	if err != nil {
		return nil, err
	}
	if next == it.Status {
		return it, nil
	}
	if it, err = s.setStatus(ctx, it, next); err != nil {
		return nil, err
	}

	s.publishEvent(events.EventItineraryCompleted, it, nil, "admin")
	s.enqueue(ctx, models.TaskSheetUpsert, it.ID, it)
	return it, nil
}

// AddClientComment records feedback posted through a share link.
func (s *ItineraryService) AddClientComment(ctx context.Context, token string, input models.CommentInput) (*models.Itinerary, *models.Comment, error) {
	comment, err := newClientComment(input)
	if err != nil {
		return nil, nil, err
	}

	it, err := s.GetByShareToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	next, err := workflow.Transition(it.Status, workflow.EventComment)
	if err != nil {
		return nil, nil, err
	}

	if err := s.checkCommentLimit(ctx, it.ShareToken); err != nil {
		return nil, nil, err
	}

	if err := s.repo.AddComment(ctx, it.ID, it.Version, next, comment); err != nil {
		return nil, nil, err
	}
	it, err = s.repo.GetItinerary(ctx, it.ID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().Str("itinerary_id", it.ID).Str("section", comment.Section).Msg("client comment added")
	s.publishEvent(events.EventCommentAdded, it, comment, models.AuthorClient)
	s.enqueue(ctx, models.TaskSheetUpsert, it.ID, it)
	s.notify(ctx, it,
		fmt.Sprintf("New feedback on %s", it.Title),
		fmt.Sprintf("[%s] %s", comment.Section, comment.Content),
	)
	return it, comment, nil
}

// Approve is the client's sign-off. Approving twice is a no-op.
func (s *ItineraryService) Approve(ctx context.Context, token string) (*models.Itinerary, error) {
	it, err := s.GetByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}

	next, err := workflow.Transition(it.Status, workflow.EventApprove)
	if err != nil {
		return nil, err
	}
	if next == it.Status {
		return it, nil
	}
	if it, err = s.setStatus(ctx, it, next); err != nil {
		return nil, err
	}

	s.logger.Info().Str("itinerary_id", it.ID).Msg("itinerary approved")
	s.publishEvent(events.EventItineraryApproved, it, nil, models.AuthorClient)
	s.enqueue(ctx, models.TaskSheetUpsert, it.ID, it)
	s.notify(ctx, it,
		fmt.Sprintf("%s was approved", it.Title),
		fmt.Sprintf("The client approved the %s itinerary.", it.Destination),
	)
	return it, nil
}

// Reply answers a client comment as the consultant. The original comment is
// marked addressed and the itinerary moves to feedback.
func (s *ItineraryService) Reply(ctx context.Context, id, commentID, text string) (*models.Itinerary, *models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, models.NewValidationError("content", "is required")
	}

	it, err := s.repo.GetItinerary(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	original := it.CommentByID(commentID)
	if original == nil {
		return nil, nil, database.ErrCommentNotFound
	}
	if _, err := workflow.CommentTransition(original.Status, workflow.CommentEventAddress); err != nil {
		return nil, nil, err
	}
	next, err := workflow.Transition(it.Status, workflow.EventComment)
	if err != nil {
		return nil, nil, err
	}

	reply := &models.Comment{
		ID:        uuid.NewString(),
		Section:   models.SectionResponse,
		Content:   text,
		Author:    models.AuthorConsultant,
		Timestamp: time.Now().UTC(),
		Status:    models.CommentAddressed,
		Type:      models.CommentTypeFeedback,
	}
	if err := s.repo.ReplyToComment(ctx, it.ID, it.Version, original.ID, reply, next); err != nil {
		return nil, nil, err
	}
	it, err = s.repo.GetItinerary(ctx, it.ID)
	if err != nil {
		return nil, nil, err
	}

	s.publishEvent(events.EventCommentReplied, it, reply, models.AuthorConsultant)
	s.enqueue(ctx, models.TaskSheetUpsert, it.ID, it)
	return it, reply, nil
}

// ResolveComment closes a comment. Resolving twice is a no-op.
func (s *ItineraryService) ResolveComment(ctx context.Context, id, commentID string) (*models.Itinerary, error) {
	it, err := s.repo.GetItinerary(ctx, id)
	if err != nil {
		return nil, err
	}
	c := it.CommentByID(commentID)
	if c == nil {
		return nil, database.ErrCommentNotFound
	}

	next, err := workflow.CommentTransition(c.Status, workflow.CommentEventResolve)
	if err != nil {
		return nil, err
	}
	if next == c.Status {
		return it, nil
	}

	if err := s.repo.UpdateCommentStatus(ctx, it.ID, it.Version, c.ID, next); err != nil {
		return nil, err
	}
	resolved := *c
	resolved.Status = next
	it, err = s.repo.GetItinerary(ctx, it.ID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventCommentResolved, it, &resolved, "consultant")
	s.enqueue(ctx, models.TaskSheetUpsert, it.ID, it)
	return it, nil
}

func (s *ItineraryService) setStatus(ctx context.Context, it *models.Itinerary, status string) (*models.Itinerary, error) {
	if err := s.repo.UpdateItineraryStatus(ctx, it.ID, it.Version, status); err != nil {
		return nil, err
	}
	return s.repo.GetItinerary(ctx, it.ID)
}

func (s *ItineraryService) checkCommentLimit(ctx context.Context, token string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.CheckRateLimit(ctx, "comment:"+token, s.cfg.CommentLimit, s.cfg.CommentWindow)
	if err != nil {
		// Лимитер недоступен: не блокируем клиента
		s.logger.Warn().Err(err).Msg("comment rate limit check failed")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

func newClientComment(input models.CommentInput) (*models.Comment, error) {
	verr := &models.ValidationError{}
	content := strings.TrimSpace(input.Content)
	section := strings.TrimSpace(input.Section)
	if content == "" {
		verr.Add("content", "is required")
	}
	if section == "" {
		verr.Add("section", "is required")
	} else if section == models.SectionResponse {
		verr.Add("section", "is reserved")
	}

	commentType := strings.TrimSpace(input.Type)
	switch commentType {
	case "":
		commentType = models.CommentTypeFeedback
	case models.CommentTypeFeedback, models.CommentTypeChangeRequest, models.CommentTypeApproval:
	default:
		verr.Add("type", "must be feedback, change_request or approval")
	}
	if verr.HasErrors() {
		return nil, verr
	}

	return &models.Comment{
		ID:        uuid.NewString(),
		Section:   section,
		ItemID:    strings.TrimSpace(input.ItemID),
		Content:   content,
		Author:    models.AuthorClient,
		Timestamp: time.Now().UTC(),
		Status:    models.CommentPending,
		Type:      commentType,
	}, nil
}

func validatePatch(current *models.Itinerary, p models.ItineraryPatch) error {
	verr := &models.ValidationError{}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		verr.Add("title", "must not be empty")
	}
	if p.Destination != nil && strings.TrimSpace(*p.Destination) == "" {
		verr.Add("destination", "must not be empty")
	}
	if p.Travelers != nil && *p.Travelers < 1 {
		verr.Add("travelers", "must be at least 1")
	}

	start, end := current.StartDate, current.EndDate
	if p.StartDate != nil {
		start = *p.StartDate
	}
	if p.EndDate != nil {
		end = *p.EndDate
	}
	if p.StartDate != nil || p.EndDate != nil || p.Days != nil {
		s, errS := time.Parse(models.DateLayout, start)
		e, errE := time.Parse(models.DateLayout, end)
		switch {
		case errS != nil:
			verr.Add("start_date", "must be YYYY-MM-DD")
		case errE != nil:
			verr.Add("end_date", "must be YYYY-MM-DD")
		case !e.After(s):
			verr.Add("end_date", "must be after start_date")
		default:
			// один день на каждые сутки поездки
			days := len(current.Days)
			if p.Days != nil {
				days = len(*p.Days)
			}
			if want := generator.DayCount(s, e); days != want {
				verr.Add("days", fmt.Sprintf("must have %d entries for %s to %s", want, start, end))
			}
		}
	}

	if p.Days != nil {
		for i, d := range *p.Days {
			if strings.TrimSpace(d.Title) == "" {
				verr.Add(fmt.Sprintf("days[%d].title", i), "must not be empty")
			}
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// alignToDates dates each day from start_date. When the trip dates moved it
// also refreshes the duration label and hotel nights unless the patch set
// them explicitly.
func alignToDates(it *models.Itinerary, p models.ItineraryPatch) {
	start, err := time.Parse(models.DateLayout, it.StartDate)
	if err != nil {
		return
	}
	for i := range it.Days {
		it.Days[i].Date = start.AddDate(0, 0, i).Format(models.DateLayout)
	}
	if p.StartDate == nil && p.EndDate == nil {
		return
	}
	if p.Duration == nil {
		it.Duration = generator.DurationLabel(len(it.Days))
	}
	if p.Accommodation == nil {
		it.Accommodation.Nights = max(len(it.Days)-1, 0)
	}
}

// renumberDays keeps days 1-based and contiguous in the order given.
func renumberDays(days []models.ItineraryDay) {
	for i := range days {
		days[i].Day = i + 1
		if days[i].Activities == nil {
			days[i].Activities = []string{}
		}
	}
}

func (s *ItineraryService) publishEvent(eventType string, it *models.Itinerary, c *models.Comment, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.ItineraryEventPayload{
		ItineraryID: it.ID,
		Title:       it.Title,
		Destination: it.Destination,
		Status:      it.Status,
		Version:     it.Version,
		ShareToken:  it.ShareToken,
		ChangedBy:   changedBy,
	}
	if c != nil {
		payload.CommentID = c.ID
		payload.Section = c.Section
		payload.Content = c.Content
		payload.Author = c.Author
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("itinerary_id", it.ID).Msg("publish event error")
	}
}

func (s *ItineraryService) enqueue(ctx context.Context, taskType, itineraryID string, payload interface{}) {
	if s.worker == nil {
		return
	}
	if err := s.worker.EnqueueTask(ctx, taskType, itineraryID, payload); err != nil {
		s.logger.Error().Err(err).Str("itinerary_id", itineraryID).Str("task", taskType).Msg("enqueue error")
	}
}

func (s *ItineraryService) notify(ctx context.Context, it *models.Itinerary, subject, body string) {
	s.enqueue(ctx, models.TaskNotify, it.ID, &models.Notification{
		ItineraryID: it.ID,
		Title:       it.Title,
		Subject:     subject,
		Body:        body,
		Link:        s.cfg.PublicBaseURL + EditPath(it.ID),
	})
}
