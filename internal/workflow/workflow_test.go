package workflow

import (
	"testing"

	"itinera/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		current string
		event   Event
		want    string
		wantErr bool
	}{
		{"share draft", models.StatusDraft, EventShare, models.StatusShared, false},
		{"share again", models.StatusShared, EventShare, models.StatusShared, false},
		{"share keeps feedback", models.StatusFeedback, EventShare, models.StatusFeedback, false},
		{"share approved", models.StatusApproved, EventShare, models.StatusApproved, false},
		{"share completed", models.StatusCompleted, EventShare, "", true},

		{"comment on draft", models.StatusDraft, EventComment, models.StatusFeedback, false},
		{"comment on shared", models.StatusShared, EventComment, models.StatusFeedback, false},
		{"comment keeps feedback", models.StatusFeedback, EventComment, models.StatusFeedback, false},
		{"comment on approved", models.StatusApproved, EventComment, "", true},
		{"comment on completed", models.StatusCompleted, EventComment, "", true},

		{"approve draft", models.StatusDraft, EventApprove, models.StatusApproved, false},
		{"approve shared", models.StatusShared, EventApprove, models.StatusApproved, false},
		{"approve feedback", models.StatusFeedback, EventApprove, models.StatusApproved, false},
		{"approve twice", models.StatusApproved, EventApprove, models.StatusApproved, false},
		{"approve completed", models.StatusCompleted, EventApprove, "", true},

		{"complete approved", models.StatusApproved, EventComplete, models.StatusCompleted, false},
		{"complete draft", models.StatusDraft, EventComplete, models.StatusCompleted, false},
		{"complete twice", models.StatusCompleted, EventComplete, models.StatusCompleted, false},

		{"unknown status", "archived", EventShare, "", true},
		{"unknown event", models.StatusDraft, Event("reopen"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.current, tt.event)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.False(t, CanTransition(tt.current, tt.event))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApproveIsIdempotent(t *testing.T) {
	first, err := Transition(models.StatusFeedback, EventApprove)
	require.NoError(t, err)
	second, err := Transition(first, EventApprove)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCommentTransition(t *testing.T) {
	tests := []struct {
		name    string
		current string
		event   CommentEvent
		want    string
		wantErr bool
	}{
		{"resolve pending directly", models.CommentPending, CommentEventResolve, models.CommentResolved, false},
		{"address pending", models.CommentPending, CommentEventAddress, models.CommentAddressed, false},
		{"resolve addressed", models.CommentAddressed, CommentEventResolve, models.CommentResolved, false},
		{"follow-up reply", models.CommentAddressed, CommentEventAddress, models.CommentAddressed, false},
		{"resolve resolved", models.CommentResolved, CommentEventResolve, models.CommentResolved, false},
		{"reply to resolved", models.CommentResolved, CommentEventAddress, "", true},
		{"unknown status", "open", CommentEventResolve, "", true},
		{"unknown event", models.CommentPending, CommentEvent("reopen"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CommentTransition(tt.current, tt.event)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
