package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no progress record exists for a key
var ErrNotFound = errors.New("progress record not found")

// Record is one continue-watching entry
type Record struct {
	MediaID   string
	VideoID   string // Empty for movies
	Title     string
	Position  float64 // Seconds
	Duration  float64 // Seconds
	Ratio     float64 // Position/Duration at write time
	Finished  bool
	UpdatedAt time.Time
}

// Store is the persistence collaborator the controller writes progress
// through. The controller never touches storage directly.
type Store interface {
	// ReadProgress returns the record for (mediaID, videoID), or
	// ErrNotFound when none exists
	ReadProgress(ctx context.Context, mediaID, videoID string) (Record, error)

	// WriteProgress inserts or replaces the record for its key
	WriteProgress(ctx context.Context, rec Record) error

	// ListRecent returns the most recently updated unfinished
	// records, newest first
	ListRecent(ctx context.Context, limit int) ([]Record, error)

	// DeleteFinished removes finished records older than the given age
	DeleteFinished(ctx context.Context, olderThan time.Duration) (int64, error)

	// Close releases the underlying storage
	Close() error
}
