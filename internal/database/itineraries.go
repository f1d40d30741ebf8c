package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"itinera/internal/models"

	"github.com/google/uuid"
)

const itineraryColumns = `id, title, destination, start_date, end_date, duration, travelers, budget,
	theme, status, share_token, flight_departure, flight_return, hotel_name, hotel_nights,
	hotel_rating, inclusions, exclusions, consultant, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateItinerary inserts the itinerary with its days in one transaction and
// mints the share token.
func (db *DB) CreateItinerary(ctx context.Context, it *models.Itinerary) error {
	now := time.Now().UTC()
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.ShareToken == "" {
		it.ShareToken = uuid.NewString()
	}
	if it.Status == "" {
		it.Status = models.StatusDraft
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = now
	it.Version = 1

	inclusions, exclusions, consultant, err := encodeItineraryJSON(it)
	if err != nil {
		return err
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO itineraries (` + itineraryColumns + `)
                  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, query,
			it.ID,
			it.Title,
			it.Destination,
			it.StartDate,
			it.EndDate,
			it.Duration,
			it.Travelers,
			it.Budget,
			it.Theme,
			it.Status,
			it.ShareToken,
			it.Flights.Departure,
			it.Flights.Return,
			it.Accommodation.Hotel,
			it.Accommodation.Nights,
			it.Accommodation.Rating,
			inclusions,
			exclusions,
			consultant,
			it.CreatedAt,
			it.UpdatedAt,
			it.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to create itinerary: %w", err)
		}
		if err := insertDays(ctx, tx, it.ID, it.Days); err != nil {
			return err
		}
		for i := range it.Comments {
			if err := insertComment(ctx, tx, it.ID, &it.Comments[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Debug().Str("itinerary_id", it.ID).Int("days", len(it.Days)).Msg("Itinerary created")
	return nil
}

func (db *DB) GetItinerary(ctx context.Context, id string) (*models.Itinerary, error) {
	return db.getItineraryBy(ctx, "id", id)
}

func (db *DB) GetItineraryByShareToken(ctx context.Context, token string) (*models.Itinerary, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrItineraryNotFound
	}
	return db.getItineraryBy(ctx, "share_token", token)
}

func (db *DB) getItineraryBy(ctx context.Context, column, value string) (*models.Itinerary, error) {
	query := `SELECT ` + itineraryColumns + ` FROM itineraries WHERE ` + column + ` = ?`
	it, err := scanItinerary(db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItineraryNotFound
		}
		return nil, fmt.Errorf("failed to get itinerary: %w", err)
	}

	if err := db.loadChildren(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// ListItineraries returns itineraries newest first, narrowed by filter.
func (db *DB) ListItineraries(ctx context.Context, filter models.ItineraryFilter) ([]*models.Itinerary, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" && filter.Status != "all" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Search)); q != "" {
		where = append(where, "(lower(title) LIKE ? OR lower(destination) LIKE ?)")
		pattern := "%" + q + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + itineraryColumns + ` FROM itineraries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list itineraries: %w", err)
	}

	var list []*models.Itinerary
	for rows.Next() {
		it, err := scanItinerary(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan itinerary: %w", err)
		}
		list = append(list, it)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Соединение одно: дочерние запросы только после закрытия rows
	rows.Close()

	for _, it := range list {
		if err := db.loadChildren(ctx, it); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// UpdateItinerary writes the editable columns of it if the stored version
// still equals fromVersion. Days are replaced in the same transaction when
// replaceDays is set. On success it.Version holds the new version.
func (db *DB) UpdateItinerary(ctx context.Context, it *models.Itinerary, fromVersion int64, replaceDays bool) error {
	inclusions, exclusions, consultant, err := encodeItineraryJSON(it)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE itineraries SET
                    title = ?, destination = ?, start_date = ?, end_date = ?, duration = ?,
                    travelers = ?, budget = ?, theme = ?, flight_departure = ?, flight_return = ?,
                    hotel_name = ?, hotel_nights = ?, hotel_rating = ?, inclusions = ?,
                    exclusions = ?, consultant = ?, updated_at = ?, version = version + 1
                  WHERE id = ? AND version = ?`
		result, err := tx.ExecContext(ctx, query,
			it.Title,
			it.Destination,
			it.StartDate,
			it.EndDate,
			it.Duration,
			it.Travelers,
			it.Budget,
			it.Theme,
			it.Flights.Departure,
			it.Flights.Return,
			it.Accommodation.Hotel,
			it.Accommodation.Nights,
			it.Accommodation.Rating,
			inclusions,
			exclusions,
			consultant,
			now,
			it.ID,
			fromVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to update itinerary: %w", err)
		}
		if err := checkVersioned(ctx, tx, result, it.ID); err != nil {
			return err
		}

		if !replaceDays {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM itinerary_days WHERE itinerary_id = ?`, it.ID); err != nil {
			return fmt.Errorf("failed to clear itinerary days: %w", err)
		}
		return insertDays(ctx, tx, it.ID, it.Days)
	})
	if err != nil {
		return err
	}

	it.Version = fromVersion + 1
	it.UpdatedAt = now
	return nil
}

// UpdateItineraryStatus moves the itinerary to status under a version check.
func (db *DB) UpdateItineraryStatus(ctx context.Context, id string, fromVersion int64, status string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return bumpVersion(ctx, tx, id, fromVersion, status)
	})
}

func (db *DB) DeleteItinerary(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	result, err := db.ExecContext(ctx, `DELETE FROM itineraries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete itinerary: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrItineraryNotFound
	}
	db.logger.Debug().Str("itinerary_id", id).Msg("Itinerary deleted")
	return nil
}

// bumpVersion increments the version and optionally sets status. An empty
// status leaves the column as is.
func bumpVersion(ctx context.Context, tx *sql.Tx, id string, fromVersion int64, status string) error {
	query := `UPDATE itineraries
              SET status = COALESCE(NULLIF(?, ''), status), version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query, status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update itinerary status: %w", err)
	}
	return checkVersioned(ctx, tx, result, id)
}

// checkVersioned tells a missing row apart from a stale version.
func checkVersioned(ctx context.Context, tx *sql.Tx, result sql.Result, id string) error {
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM itineraries WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check itinerary: %w", err)
	}
	if exists == 0 {
		return ErrItineraryNotFound
	}
	return ErrConcurrentModification
}

func insertDays(ctx context.Context, tx *sql.Tx, itineraryID string, days []models.ItineraryDay) error {
	if len(days) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO itinerary_days
        (itinerary_id, day, date, title, city, activities, meals, accommodation, images, description)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare day insert: %w", err)
	}
	defer stmt.Close()

	for i := range days {
		d := &days[i]
		activities, err := marshalStrings(d.Activities)
		if err != nil {
			return err
		}
		images, err := marshalStrings(d.Images)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			itineraryID, d.Day, d.Date, d.Title, d.City, activities, d.Meals, d.Accommodation, images, d.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to insert day %d: %w", d.Day, err)
		}
	}
	return nil
}

func (db *DB) loadChildren(ctx context.Context, it *models.Itinerary) error {
	days, err := db.getDays(ctx, it.ID)
	if err != nil {
		return err
	}
	comments, err := db.getComments(ctx, it.ID)
	if err != nil {
		return err
	}
	it.Days = days
	it.Comments = comments
	return nil
}

func (db *DB) getDays(ctx context.Context, itineraryID string) ([]models.ItineraryDay, error) {
	query := `SELECT day, date, title, city, activities, meals, accommodation, images, description
              FROM itinerary_days WHERE itinerary_id = ? ORDER BY day ASC`
	rows, err := db.QueryContext(ctx, query, itineraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get itinerary days: %w", err)
	}
	defer rows.Close()

	days := []models.ItineraryDay{}
	for rows.Next() {
		var (
			d                  models.ItineraryDay
			activities, images string
		)
		if err := rows.Scan(&d.Day, &d.Date, &d.Title, &d.City, &activities, &d.Meals, &d.Accommodation, &images, &d.Description); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		if d.Activities, err = unmarshalStrings(activities); err != nil {
			return nil, err
		}
		if d.Images, err = unmarshalStrings(images); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func scanItinerary(row rowScanner) (*models.Itinerary, error) {
	var (
		it                                 models.Itinerary
		shareToken                         sql.NullString
		inclusions, exclusions, consultant string
	)
	err := row.Scan(
		&it.ID, &it.Title, &it.Destination, &it.StartDate, &it.EndDate, &it.Duration,
		&it.Travelers, &it.Budget, &it.Theme, &it.Status, &shareToken,
		&it.Flights.Departure, &it.Flights.Return,
		&it.Accommodation.Hotel, &it.Accommodation.Nights, &it.Accommodation.Rating,
		&inclusions, &exclusions, &consultant,
		&it.CreatedAt, &it.UpdatedAt, &it.Version,
	)
	if err != nil {
		return nil, err
	}
	it.ShareToken = shareToken.String

	if it.Inclusions, err = unmarshalStrings(inclusions); err != nil {
		return nil, err
	}
	if it.Exclusions, err = unmarshalStrings(exclusions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(consultant), &it.Consultant); err != nil {
		return nil, fmt.Errorf("failed to decode consultant: %w", err)
	}
	return &it, nil
}

func encodeItineraryJSON(it *models.Itinerary) (inclusions, exclusions, consultant string, err error) {
	if inclusions, err = marshalStrings(it.Inclusions); err != nil {
		return "", "", "", err
	}
	if exclusions, err = marshalStrings(it.Exclusions); err != nil {
		return "", "", "", err
	}
	raw, err := json.Marshal(it.Consultant)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode consultant: %w", err)
	}
	return inclusions, exclusions, string(raw), nil
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(raw), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	values := []string{}
	if raw == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return values, nil
}
