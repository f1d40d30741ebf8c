package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"itinera/internal/models"

	"github.com/google/uuid"
)

// AddComment appends c to the itinerary log, moving the itinerary to
// itineraryStatus under a version check.
func (db *DB) AddComment(ctx context.Context, itineraryID string, fromVersion int64, itineraryStatus string, c *models.Comment) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := bumpVersion(ctx, tx, itineraryID, fromVersion, itineraryStatus); err != nil {
			return err
		}
		return insertComment(ctx, tx, itineraryID, c)
	})
}

// ReplyToComment marks the original comment addressed and appends reply in the
// same transaction.
func (db *DB) ReplyToComment(ctx context.Context, itineraryID string, fromVersion int64, commentID string, reply *models.Comment, itineraryStatus string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := bumpVersion(ctx, tx, itineraryID, fromVersion, itineraryStatus); err != nil {
			return err
		}
		if err := setCommentStatus(ctx, tx, itineraryID, commentID, models.CommentAddressed); err != nil {
			return err
		}
		return insertComment(ctx, tx, itineraryID, reply)
	})
}

func (db *DB) UpdateCommentStatus(ctx context.Context, itineraryID string, fromVersion int64, commentID, status string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := bumpVersion(ctx, tx, itineraryID, fromVersion, ""); err != nil {
			return err
		}
		return setCommentStatus(ctx, tx, itineraryID, commentID, status)
	})
}

func setCommentStatus(ctx context.Context, tx *sql.Tx, itineraryID, commentID, status string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE itinerary_comments SET status = ? WHERE id = ? AND itinerary_id = ?`,
		status, commentID, itineraryID,
	)
	if err != nil {
		return fmt.Errorf("failed to update comment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrCommentNotFound
	}
	return nil
}

func insertComment(ctx context.Context, tx *sql.Tx, itineraryID string, c *models.Comment) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	query := `INSERT INTO itinerary_comments (id, itinerary_id, section, item_id, content, author, status, type, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query,
		c.ID, itineraryID, c.Section, c.ItemID, c.Content, c.Author, c.Status, c.Type, c.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

func (db *DB) getComments(ctx context.Context, itineraryID string) ([]models.Comment, error) {
	query := `SELECT id, section, item_id, content, author, status, type, created_at
              FROM itinerary_comments WHERE itinerary_id = ? ORDER BY created_at ASC, rowid ASC`
	rows, err := db.QueryContext(ctx, query, itineraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.Section, &c.ItemID, &c.Content, &c.Author, &c.Status, &c.Type, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
