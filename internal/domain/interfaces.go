package domain

import (
	"context"
	"time"

	"itinera/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type ItineraryRepository interface {
	CreateItinerary(ctx context.Context, it *models.Itinerary) error
	GetItinerary(ctx context.Context, id string) (*models.Itinerary, error)
	GetItineraryByShareToken(ctx context.Context, token string) (*models.Itinerary, error)
	ListItineraries(ctx context.Context, filter models.ItineraryFilter) ([]*models.Itinerary, error)
	UpdateItinerary(ctx context.Context, it *models.Itinerary, fromVersion int64, replaceDays bool) error
	UpdateItineraryStatus(ctx context.Context, id string, fromVersion int64, status string) error
	AddComment(ctx context.Context, itineraryID string, fromVersion int64, itineraryStatus string, c *models.Comment) error
	ReplyToComment(ctx context.Context, itineraryID string, fromVersion int64, commentID string, reply *models.Comment, itineraryStatus string) error
	UpdateCommentStatus(ctx context.Context, itineraryID string, fromVersion int64, commentID, status string) error
	DeleteItinerary(ctx context.Context, id string) error
}

type SyncQueueRepository interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error)
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// DraftRepository keeps builder drafts and client rate-limit counters.
type DraftRepository interface {
	GetDraft(ctx context.Context, id string) (*models.Draft, error)
	SaveDraft(ctx context.Context, draft *models.Draft) error
	ClearDraft(ctx context.Context, id string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncWorker accepts background tasks. Payload is *models.Itinerary for sheet
// tasks and *models.Notification for notify tasks.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType, itineraryID string, payload interface{}) error
}

type SheetsWriter interface {
	UpsertItinerary(ctx context.Context, it *models.Itinerary) error
	DeleteItineraryRow(ctx context.Context, itineraryID string) error
}

type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type ItineraryService interface {
	Generate(ctx context.Context, settings models.TripSettings) (*models.Itinerary, string, error)
	Preview(ctx context.Context, settings models.TripSettings) (*models.Itinerary, error)
	Get(ctx context.Context, id string) (*models.Itinerary, error)
	List(ctx context.Context, filter models.ItineraryFilter) ([]*models.Itinerary, error)
	Stats(ctx context.Context) (models.DashboardStats, error)
	Update(ctx context.Context, id string, patch models.ItineraryPatch, version int64) (*models.Itinerary, error)
	Delete(ctx context.Context, id string) error
	Share(ctx context.Context, id string) (*models.Itinerary, string, error)
	Complete(ctx context.Context, id string) (*models.Itinerary, error)
	GetByShareToken(ctx context.Context, token string) (*models.Itinerary, error)
	AddClientComment(ctx context.Context, token string, input models.CommentInput) (*models.Itinerary, *models.Comment, error)
	Approve(ctx context.Context, token string) (*models.Itinerary, error)
	Reply(ctx context.Context, id, commentID, text string) (*models.Itinerary, *models.Comment, error)
	ResolveComment(ctx context.Context, id, commentID string) (*models.Itinerary, error)
}

type DraftService interface {
	GetDraft(ctx context.Context, id string) (*models.Draft, error)
	SaveDraft(ctx context.Context, id string, settings models.TripSettings) (*models.Draft, error)
	ClearDraft(ctx context.Context, id string) error
	GenerateFromDraft(ctx context.Context, id string) (*models.Itinerary, string, error)
}
