package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"itinera/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentEdits(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	it := sampleItinerary()
	require.NoError(t, db.CreateItinerary(ctx, it))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	// Every writer read version 1; only one may win.
	for i := 0; i < numGoroutines; i++ {
		go func(n int) {
			defer wg.Done()
			edit := *it
			edit.Title = "Edit"
			edit.Days = append([]models.ItineraryDay(nil), it.Days...)
			edit.Days[0].Title = "Arrival"
			results <- db.UpdateItinerary(ctx, &edit, 1, n%2 == 0)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, ErrConcurrentModification):
			conflictCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "only one writer should win")
	assert.Equal(t, numGoroutines-1, conflictCount)

	got, err := db.GetItinerary(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Len(t, got.Days, 3)
}
