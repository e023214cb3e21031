package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite persists continue-watching records in a local SQLite database
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) the progress database at dbPath
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection keeps in-memory databases consistent and is
	// plenty for one controller instance
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS progress (
			media_id TEXT NOT NULL,
			video_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			position REAL NOT NULL,
			duration REAL NOT NULL,
			ratio REAL NOT NULL,
			finished BOOLEAN NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (media_id, video_id)
		);

		CREATE INDEX IF NOT EXISTS idx_progress_updated ON progress(updated_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReadProgress returns the record for (mediaID, videoID), or ErrNotFound
func (s *SQLite) ReadProgress(ctx context.Context, mediaID, videoID string) (Record, error) {
	query := `
		SELECT media_id, video_id, title, position, duration, ratio, finished, updated_at
		FROM progress
		WHERE media_id = ? AND video_id = ?
	`
	var (
		rec     Record
		updated int64
	)
	err := s.db.QueryRowContext(ctx, query, mediaID, videoID).Scan(
		&rec.MediaID,
		&rec.VideoID,
		&rec.Title,
		&rec.Position,
		&rec.Duration,
		&rec.Ratio,
		&rec.Finished,
		&updated,
	)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read progress: %w", err)
	}
	rec.UpdatedAt = time.Unix(updated, 0)
	return rec, nil
}

// WriteProgress inserts or replaces the record for its key
func (s *SQLite) WriteProgress(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO progress (media_id, video_id, title, position, duration, ratio, finished, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (media_id, video_id) DO UPDATE SET
			title = excluded.title,
			position = excluded.position,
			duration = excluded.duration,
			ratio = excluded.ratio,
			finished = excluded.finished,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.MediaID,
		rec.VideoID,
		rec.Title,
		rec.Position,
		rec.Duration,
		rec.Ratio,
		rec.Finished,
		rec.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write progress: %w", err)
	}
	return nil
}

// ListRecent returns the most recently updated unfinished records
func (s *SQLite) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT media_id, video_id, title, position, duration, ratio, finished, updated_at
		FROM progress
		WHERE finished = 0
		ORDER BY updated_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			updated int64
		)
		if err := rows.Scan(
			&rec.MediaID,
			&rec.VideoID,
			&rec.Title,
			&rec.Position,
			&rec.Duration,
			&rec.Ratio,
			&rec.Finished,
			&updated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		rec.UpdatedAt = time.Unix(updated, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteFinished removes finished records older than the given age
func (s *SQLite) DeleteFinished(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM progress WHERE finished = 1 AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished records: %w", err)
	}
	return result.RowsAffected()
}
