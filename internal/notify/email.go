package notify

import (
	"context"
	"fmt"

	"itinera/internal/config"
	"itinera/internal/models"

	"gopkg.in/gomail.v2"
)

// Dialer is the part of *gomail.Dialer the notifier needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends consultant alerts over SMTP.
type EmailNotifier struct {
	dialer Dialer
	from   string
	to     []string
}

func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &EmailNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
		to:     cfg.To,
	}
}

func (e *EmailNotifier) Notify(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to...)
	m.SetHeader("Subject", subject(n))
	m.SetBody("text/plain", Text(n))

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("email notify: %w", err)
	}
	return nil
}

func subject(n *models.Notification) string {
	if n.Subject != "" {
		return n.Subject
	}
	return "Itinerary update: " + n.Title
}
