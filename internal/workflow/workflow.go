// Package workflow holds the itinerary lifecycle and comment state machines.
// Every status change in the service layer goes through Transition or
// CommentTransition; nothing else assigns status fields.
package workflow

import (
	"errors"
	"fmt"

	"itinera/internal/models"
)

// ErrInvalidTransition is returned when an event is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Event triggers an itinerary status change.
type Event string

const (
	EventShare    Event = "share"
	EventComment  Event = "comment"
	EventApprove  Event = "approve"
	EventComplete Event = "complete"
)

// Transition returns the status that follows current when event happens.
//
//	share:    draft -> shared; shared, feedback, approved unchanged
//	comment:  draft, shared, feedback -> feedback
//	approve:  draft, shared, feedback, approved -> approved
//	complete: any -> completed
//
// completed is terminal for everything except a repeated complete, and
// approved never moves back to feedback.
func Transition(current string, event Event) (string, error) {
	if !models.ValidStatus(current) {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, current)
	}

	switch event {
	case EventShare:
		switch current {
		case models.StatusDraft:
			return models.StatusShared, nil
		case models.StatusShared, models.StatusFeedback, models.StatusApproved:
			return current, nil
		}
	case EventComment:
		switch current {
		case models.StatusDraft, models.StatusShared, models.StatusFeedback:
			return models.StatusFeedback, nil
		}
	case EventApprove:
		if current != models.StatusCompleted {
			return models.StatusApproved, nil
		}
	case EventComplete:
		return models.StatusCompleted, nil
	default:
		return "", fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, event)
	}

	return "", fmt.Errorf("%w: %s is not allowed from %s", ErrInvalidTransition, event, current)
}

// CanTransition is Transition without the result.
func CanTransition(current string, event Event) bool {
	_, err := Transition(current, event)
	return err == nil
}

// CommentEvent triggers a comment status change.
type CommentEvent string

const (
	CommentEventAddress CommentEvent = "address"
	CommentEventResolve CommentEvent = "resolve"
)

// CommentTransition applies the pending -> addressed -> resolved machine.
// Resolving is idempotent; nothing leaves resolved.
func CommentTransition(current string, event CommentEvent) (string, error) {
	switch current {
	case models.CommentPending, models.CommentAddressed:
	case models.CommentResolved:
		if event == CommentEventResolve {
			return models.CommentResolved, nil
		}
		return "", fmt.Errorf("%w: comment is resolved", ErrInvalidTransition)
	default:
		return "", fmt.Errorf("%w: unknown comment status %q", ErrInvalidTransition, current)
	}

	switch event {
	case CommentEventAddress:
		return models.CommentAddressed, nil
	case CommentEventResolve:
		return models.CommentResolved, nil
	}
	return "", fmt.Errorf("%w: unknown comment event %q", ErrInvalidTransition, event)
}
