package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"itinera/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const defaultBackupSchedule = "@daily"

type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	l := logger.With().Str("component", "backup").Logger()
	return &BackupService{
		db:     db,
		config: cfg,
		logger: &l,
		now:    time.Now,
	}
}

// Schedule converts the configured schedule into a cron spec. Plain
// durations like "12h" are accepted as "@every 12h".
func (s *BackupService) Schedule() string {
	spec := strings.TrimSpace(s.config.Schedule)
	if spec == "" {
		return defaultBackupSchedule
	}
	if d, err := time.ParseDuration(spec); err == nil {
		return "@every " + d.String()
	}
	return spec
}

// Start runs backups on the cron schedule until ctx is cancelled.
func (s *BackupService) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return nil
	}

	c := cron.New()
	spec := s.Schedule()
	_, err := c.AddFunc(spec, func() {
		if _, err := s.PerformBackup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled backup failed")
		}
		s.CleanupOldBackups()
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}

	s.logger.Info().Str("schedule", spec).Msg("Backup service started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("Backup service stopped")
	return nil
}

// PerformBackup writes a consistent copy of the database and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := s.now().Format("20060102_150405")
	backupPath := filepath.Join(s.config.StoragePath, fmt.Sprintf("itinera_%s.db", timestamp))

	s.logger.Info().Str("path", backupPath).Msg("Performing database backup using VACUUM INTO")

	escaped := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, falling back to file copy")
		if err := s.performBackupFallback(backupPath); err != nil {
			return "", err
		}
		return backupPath, nil
	}

	s.logger.Info().Msg("Backup completed successfully")
	return backupPath, nil
}

func (s *BackupService) performBackupFallback(backupPath string) error {
	source, err := os.Open(s.db.Path())
	if err != nil {
		return fmt.Errorf("failed to open database file: %w", err)
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer destination.Close()

	// io.Copy не атомарен для SQLite, копия может быть повреждена при записи
	if _, err := io.Copy(destination, source); err != nil {
		return fmt.Errorf("failed to copy database file: %w", err)
	}

	s.logger.Info().Msg("Fallback backup completed successfully")
	return nil
}

// CleanupOldBackups removes backups older than the retention window and
// returns the removed file names.
func (s *BackupService) CleanupOldBackups() []string {
	if s.config.RetentionDays <= 0 {
		return nil
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return nil
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)

	var removed []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
				continue
			}
			removed = append(removed, file.Name())
		}
	}
	sort.Strings(removed)
	return removed
}
