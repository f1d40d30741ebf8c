package database

import (
	"context"
	"testing"
	"time"

	"itinera/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetItinerary(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	it := sampleItinerary()
	require.NoError(t, db.CreateItinerary(ctx, it))

	assert.NotEmpty(t, it.ID)
	assert.NotEmpty(t, it.ShareToken)
	assert.Equal(t, int64(1), it.Version)

	got, err := db.GetItinerary(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, it.Title, got.Title)
	assert.Equal(t, it.Flights, got.Flights)
	assert.Equal(t, it.Accommodation, got.Accommodation)
	assert.Equal(t, it.Consultant, got.Consultant)
	assert.Equal(t, it.Inclusions, got.Inclusions)
	assert.Equal(t, models.StatusDraft, got.Status)
	require.Len(t, got.Days, 3)
	for i, d := range got.Days {
		assert.Equal(t, i+1, d.Day)
	}
	assert.Equal(t, []string{"Louvre", "Seine cruise"}, got.Days[1].Activities)
	assert.Equal(t, []string{"a.jpg"}, got.Days[0].Images)
	assert.Empty(t, got.Comments)

	byToken, err := db.GetItineraryByShareToken(ctx, it.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, it.ID, byToken.ID)
}

func TestGetItinerary_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	_, err := db.GetItinerary(ctx, "missing")
	assert.ErrorIs(t, err, ErrItineraryNotFound)

	_, err = db.GetItineraryByShareToken(ctx, "bogus-token")
	assert.ErrorIs(t, err, ErrItineraryNotFound)

	_, err = db.GetItineraryByShareToken(ctx, "")
	assert.ErrorIs(t, err, ErrItineraryNotFound)
}

func TestCreateItinerary_RollsBackOnDayFailure(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	it := sampleItinerary()
	// Duplicate day numbers violate the primary key
	it.Days[1].Day = 1

	err := db.CreateItinerary(ctx, it)
	require.Error(t, err)

	list, err := db.ListItineraries(ctx, models.ItineraryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListItineraries(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	paris := sampleItinerary()
	require.NoError(t, db.CreateItinerary(ctx, paris))

	rome := sampleItinerary()
	rome.Title = "Rome Culinary Experience"
	rome.Destination = "Rome"
	rome.CreatedAt = paris.CreatedAt.Add(time.Second)
	require.NoError(t, db.CreateItinerary(ctx, rome))
	require.NoError(t, db.UpdateItineraryStatus(ctx, rome.ID, 1, models.StatusShared))

	t.Run("NewestFirst", func(t *testing.T) {
		list, err := db.ListItineraries(ctx, models.ItineraryFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, rome.ID, list[0].ID)
		assert.Len(t, list[1].Days, 3)
	})

	t.Run("SearchIsCaseInsensitive", func(t *testing.T) {
		list, err := db.ListItineraries(ctx, models.ItineraryFilter{Search: "ROME"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, rome.ID, list[0].ID)
	})

	t.Run("StatusFilter", func(t *testing.T) {
		list, err := db.ListItineraries(ctx, models.ItineraryFilter{Status: models.StatusShared})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, rome.ID, list[0].ID)

		list, err = db.ListItineraries(ctx, models.ItineraryFilter{Status: "all"})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}

func TestUpdateItinerary(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	it := sampleItinerary()
	require.NoError(t, db.CreateItinerary(ctx, it))

	t.Run("ScalarFieldsKeepDays", func(t *testing.T) {
		it.Title = "Paris in Spring"
		it.Travelers = 4
		require.NoError(t, db.UpdateItinerary(ctx, it, 1, false))
		assert.Equal(t, int64(2), it.Version)

		got, err := db.GetItinerary(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, "Paris in Spring", got.Title)
		assert.Equal(t, 4, got.Travelers)
		assert.Equal(t, int64(2), got.Version)
		assert.Len(t, got.Days, 3)
	})

	t.Run("ReplaceDays", func(t *testing.T) {
		it.Days = it.Days[:2]
		it.Days[1].Title = "Free day"
		require.NoError(t, db.UpdateItinerary(ctx, it, 2, true))

		got, err := db.GetItinerary(ctx, it.ID)
		require.NoError(t, err)
		require.Len(t, got.Days, 2)
		assert.Equal(t, "Free day", got.Days[1].Title)
		assert.Equal(t, int64(3), got.Version)
	})

	t.Run("StaleVersion", func(t *testing.T) {
		it.Title = "Stale"
		err := db.UpdateItinerary(ctx, it, 1, true)
		assert.ErrorIs(t, err, ErrConcurrentModification)

		got, err := db.GetItinerary(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, "Paris in Spring", got.Title)
		assert.Len(t, got.Days, 2)
	})

	t.Run("Missing", func(t *testing.T) {
		ghost := sampleItinerary()
		ghost.ID = "ghost"
		err := db.UpdateItinerary(ctx, ghost, 1, false)
		assert.ErrorIs(t, err, ErrItineraryNotFound)
	})
}

func TestUpdateItineraryStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	it := sampleItinerary()
	require.NoError(t, db.CreateItinerary(ctx, it))

	require.NoError(t, db.UpdateItineraryStatus(ctx, it.ID, 1, models.StatusShared))
	assert.ErrorIs(t, db.UpdateItineraryStatus(ctx, it.ID, 1, models.StatusApproved), ErrConcurrentModification)
	assert.ErrorIs(t, db.UpdateItineraryStatus(ctx, "missing", 1, models.StatusShared), ErrItineraryNotFound)

	got, err := db.GetItinerary(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShared, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, it.ShareToken, got.ShareToken)
}

func TestDeleteItinerary_Cascades(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	it := sampleItinerary()
	require.NoError(t, db.CreateItinerary(ctx, it))
	require.NoError(t, db.AddComment(ctx, it.ID, 1, models.StatusFeedback, &models.Comment{
		Section: models.SectionFlights, Content: "Earlier flight?", Author: models.AuthorClient,
		Status: models.CommentPending, Type: models.CommentTypeFeedback,
	}))

	require.NoError(t, db.DeleteItinerary(ctx, it.ID))
	assert.ErrorIs(t, db.DeleteItinerary(ctx, it.ID), ErrItineraryNotFound)

	var days, comments int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM itinerary_days`).Scan(&days))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM itinerary_comments`).Scan(&comments))
	assert.Zero(t, days)
	assert.Zero(t, comments)
}
