package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"itinera/internal/config"
	"itinera/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()

	t.Run("CreateItinerary_Error", func(t *testing.T) {
		err := db.CreateItinerary(ctx, sampleItinerary())
		assert.Error(t, err)
	})

	t.Run("GetItinerary_Error", func(t *testing.T) {
		_, err := db.GetItinerary(ctx, "x")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrItineraryNotFound)
	})

	t.Run("ListItineraries_Error", func(t *testing.T) {
		_, err := db.ListItineraries(ctx, models.ItineraryFilter{})
		assert.Error(t, err)
	})

	t.Run("UpdateItineraryStatus_Error", func(t *testing.T) {
		err := db.UpdateItineraryStatus(ctx, "x", 1, models.StatusShared)
		assert.Error(t, err)
	})

	t.Run("DeleteItinerary_Error", func(t *testing.T) {
		err := db.DeleteItinerary(ctx, "x")
		assert.Error(t, err)
	})

	t.Run("CreateSyncTask_Error", func(t *testing.T) {
		err := db.CreateSyncTask(ctx, &models.SyncTask{})
		assert.Error(t, err)
	})

	t.Run("GetPendingSyncTasks_Error", func(t *testing.T) {
		_, err := db.GetPendingSyncTasks(ctx, 1)
		assert.Error(t, err)
	})
}

func TestBackupService_Fallback(t *testing.T) {
	logger := zerolog.New(io.Discard)
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "source.db")
	storagePath := filepath.Join(tempDir, "backups")

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	s := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: storagePath}, &logger)

	backupPath := filepath.Join(storagePath, "fallback_test.db")
	require.NoError(t, os.MkdirAll(storagePath, 0o755))

	err = s.performBackupFallback(backupPath)
	assert.NoError(t, err)

	_, err = os.Stat(backupPath)
	assert.NoError(t, err)
}

func TestBackupService_StorageError(t *testing.T) {
	// StoragePath pointing below a file makes MkdirAll fail
	tmpFile := filepath.Join(t.TempDir(), "notadir")
	require.NoError(t, os.WriteFile(tmpFile, nil, 0o644))

	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	cfg := config.BackupConfig{Enabled: true, StoragePath: filepath.Join(tmpFile, "subdir")}
	bs := NewBackupService(db, cfg, &logger)

	_, err = bs.PerformBackup(context.Background())
	assert.Error(t, err)
}

func TestNewDB_Error(t *testing.T) {
	logger := zerolog.New(io.Discard)
	_, err := NewDB(t.TempDir(), &logger)
	assert.Error(t, err)
}
