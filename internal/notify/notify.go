package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"itinera/internal/domain"
	"itinera/internal/models"

	"github.com/rs/zerolog"
)

// Multi fans a notification out to every configured channel. A channel
// failure does not stop the others; all errors are returned together so the
// worker retries the task.
type Multi struct {
	notifiers []domain.Notifier
	logger    *zerolog.Logger
}

func NewMulti(logger *zerolog.Logger, notifiers ...domain.Notifier) *Multi {
	l := logger.With().Str("component", "notifier").Logger()
	active := make([]domain.Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &Multi{notifiers: active, logger: &l}
}

// Enabled reports whether at least one channel is configured.
func (m *Multi) Enabled() bool {
	return len(m.notifiers) > 0
}

func (m *Multi) Notify(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return errors.New("notification is nil")
	}
	if len(m.notifiers) == 0 {
		m.logger.Debug().Str("itinerary_id", n.ItineraryID).Msg("No notification channels configured, dropping")
		return nil
	}

	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Text renders a notification as plain text.
func Text(n *models.Notification) string {
	var b strings.Builder
	if n.Subject != "" {
		b.WriteString(n.Subject)
		b.WriteString("\n\n")
	}
	if n.Title != "" {
		fmt.Fprintf(&b, "Itinerary: %s\n", n.Title)
	}
	if n.Body != "" {
		b.WriteString(n.Body)
		b.WriteString("\n")
	}
	if n.Link != "" {
		fmt.Fprintf(&b, "\n%s\n", n.Link)
	}
	return strings.TrimRight(b.String(), "\n")
}
