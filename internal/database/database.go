package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the sqlite-backed itinerary store. Writes go through a single
// connection so transactions never interleave.
type DB struct {
	*sql.DB
	path   string
	mu     sync.Mutex
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	l := logger.With().Str("component", "database").Logger()
	l.Info().Str("path", path).Msg("Database initialized")

	return &DB{DB: sqlDB, path: path, logger: &l}, nil
}

// Path returns the file the store was opened from.
func (db *DB) Path() string {
	return db.path
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS itineraries (
            id TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            destination TEXT NOT NULL,
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            duration TEXT NOT NULL DEFAULT '',
            travelers INTEGER NOT NULL DEFAULT 0,
            budget TEXT NOT NULL DEFAULT '',
            theme TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'draft',
            share_token TEXT UNIQUE,
            flight_departure TEXT NOT NULL DEFAULT '',
            flight_return TEXT NOT NULL DEFAULT '',
            hotel_name TEXT NOT NULL DEFAULT '',
            hotel_nights INTEGER NOT NULL DEFAULT 0,
            hotel_rating TEXT NOT NULL DEFAULT '',
            inclusions TEXT NOT NULL DEFAULT '[]',
            exclusions TEXT NOT NULL DEFAULT '[]',
            consultant TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS itinerary_days (
            itinerary_id TEXT NOT NULL REFERENCES itineraries(id) ON DELETE CASCADE,
            day INTEGER NOT NULL,
            date TEXT NOT NULL,
            title TEXT NOT NULL,
            city TEXT NOT NULL DEFAULT '',
            activities TEXT NOT NULL DEFAULT '[]',
            meals TEXT NOT NULL DEFAULT '',
            accommodation TEXT NOT NULL DEFAULT '',
            images TEXT NOT NULL DEFAULT '[]',
            description TEXT NOT NULL DEFAULT '',
            PRIMARY KEY (itinerary_id, day)
        )`,
		`CREATE TABLE IF NOT EXISTS itinerary_comments (
            id TEXT PRIMARY KEY,
            itinerary_id TEXT NOT NULL REFERENCES itineraries(id) ON DELETE CASCADE,
            section TEXT NOT NULL,
            item_id TEXT NOT NULL DEFAULT '',
            content TEXT NOT NULL,
            author TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            type TEXT NOT NULL DEFAULT 'feedback',
            created_at DATETIME NOT NULL
        )`,
		// Очередь фоновых задач (outbox)
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            itinerary_id TEXT NOT NULL,
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_itineraries_created_at ON itineraries(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_itineraries_status ON itineraries(status)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_itinerary ON itinerary_comments(itinerary_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
