package models

// Itinerary statuses.
const (
	StatusDraft     = "draft"
	StatusShared    = "shared"
	StatusFeedback  = "feedback"
	StatusApproved  = "approved"
	StatusCompleted = "completed"
)

// Comment statuses.
const (
	CommentPending   = "pending"
	CommentAddressed = "addressed"
	CommentResolved  = "resolved"
)

// Comment types.
const (
	CommentTypeFeedback      = "feedback"
	CommentTypeChangeRequest = "change_request"
	CommentTypeApproval      = "approval"
)

// Comment sections a client may attach feedback to. SectionResponse is
// reserved for consultant replies.
const (
	SectionGeneral       = "general"
	SectionFlights       = "flights"
	SectionAccommodation = "accommodation"
	SectionItinerary     = "itinerary"
	SectionInclusions    = "inclusions"
	SectionResponse      = "response"
)

const (
	AuthorClient     = "Client"
	AuthorConsultant = "Consultant"
)

const (
	// DateLayout is the wire and storage format of trip dates.
	DateLayout = "2006-01-02"

	// DefaultTravelers matches the builder form default.
	DefaultTravelers = 2

	// DefaultDraftTTL время жизни черновика конструктора в секундах
	DefaultDraftTTL = 7 * 24 * 60 * 60

	// CommentRateLimit количество комментариев клиента в окне
	CommentRateLimit = 10

	// CommentRateWindow окно ограничения комментариев в секундах
	CommentRateWindow = 60

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// SheetsCacheTTL время жизни кэша строк Google Sheets
	SheetsCacheTTL = 60 * 60
)

// ValidStatus reports whether s is a known itinerary status.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusShared, StatusFeedback, StatusApproved, StatusCompleted:
		return true
	}
	return false
}

// ClientSections lists the sections accepted from the share view.
var ClientSections = []string{
	SectionGeneral,
	SectionFlights,
	SectionAccommodation,
	SectionItinerary,
	SectionInclusions,
}
