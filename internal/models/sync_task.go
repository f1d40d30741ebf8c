package models

import "time"

// SyncTask is a queued background job (sheet sync or consultant
// notification) persisted in the outbox table.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	ItineraryID string     `json:"itinerary_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// Notification is a message for the consultant about client activity.
type Notification struct {
	ItineraryID string `json:"itinerary_id"`
	Title       string `json:"title"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Link        string `json:"link,omitempty"`
}

// Background task types.
const (
	TaskSheetUpsert = "sheet_upsert"
	TaskSheetDelete = "sheet_delete"
	TaskNotify      = "notify"
)
