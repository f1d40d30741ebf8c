package models

import "time"

// Comment is a feedback entry attached to an itinerary section. Replies are
// separate comments; the log is flat and ordered by Timestamp.
type Comment struct {
	ID        string    `json:"id"`
	Section   string    `json:"section"`
	ItemID    string    `json:"item_id,omitempty"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"` // pending, addressed, resolved
	Type      string    `json:"type"`   // feedback, change_request, approval
}

// CommentInput is what a client submits from the share view.
type CommentInput struct {
	Section string `json:"section"`
	ItemID  string `json:"item_id,omitempty"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}
