package events

import (
	"encoding/json"
	"sync"
	"time"

	"itinera/internal/metrics"
)

const (
	EventItineraryCreated   = "itinerary_created"
	EventItineraryUpdated   = "itinerary_updated"
	EventItineraryShared    = "itinerary_shared"
	EventItineraryApproved  = "itinerary_approved"
	EventItineraryCompleted = "itinerary_completed"
	EventItineraryDeleted   = "itinerary_deleted"
	EventCommentAdded       = "comment_added"
	EventCommentReplied     = "comment_replied"
	EventCommentResolved    = "comment_resolved"
)

// ItineraryEvents lists every event type the service publishes.
var ItineraryEvents = []string{
	EventItineraryCreated,
	EventItineraryUpdated,
	EventItineraryShared,
	EventItineraryApproved,
	EventItineraryCompleted,
	EventItineraryDeleted,
	EventCommentAdded,
	EventCommentReplied,
	EventCommentResolved,
}

// ItineraryEventPayload describes the minimal itinerary snapshot for event consumers.
type ItineraryEventPayload struct {
	ItineraryID string `json:"itinerary_id"`
	Title       string `json:"title"`
	Destination string `json:"destination"`
	Status      string `json:"status"`
	Version     int64  `json:"version"`
	ShareToken  string `json:"share_token,omitempty"`
	CommentID   string `json:"comment_id,omitempty"`
	Section     string `json:"section,omitempty"`
	Content     string `json:"content,omitempty"`
	Author      string `json:"author,omitempty"`
	ChangedBy   string `json:"changed_by,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// Decode unmarshals the event payload into an itinerary payload.
func (e *Event) Decode() (ItineraryEventPayload, error) {
	var p ItineraryEventPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every itinerary event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range ItineraryEvents {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	metrics.IncEvent(event.Type)

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
