package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "progress.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_ReadMissingRecord(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadProgress(context.Background(), "tt100", "s01e01")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_WriteReadRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := Record{
		MediaID:   "tt100",
		VideoID:   "s01e01",
		Title:     "Episode 1",
		Position:  123.5,
		Duration:  600,
		Ratio:     0.205,
		UpdatedAt: time.Unix(1700000000, 0),
	}
	if err := s.WriteProgress(ctx, want); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := s.ReadProgress(ctx, "tt100", "s01e01")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Title != want.Title || got.Position != want.Position ||
		got.Duration != want.Duration || got.Ratio != want.Ratio ||
		got.Finished != want.Finished {
		t.Errorf("roundtrip mismatch: got %+v want %+v", got, want)
	}
	if !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("timestamp mismatch: got %v want %v", got.UpdatedAt, want.UpdatedAt)
	}
}

func TestSQLite_UpsertReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := Record{
		MediaID: "tt100", VideoID: "s01e01",
		Position: 100, Duration: 600, Ratio: 0.17,
		UpdatedAt: time.Unix(1700000000, 0),
	}
	if err := s.WriteProgress(ctx, first); err != nil {
		t.Fatalf("first write failed: %v", err)
	}

	second := first
	second.Position = 550
	second.Ratio = 0.92
	second.Finished = true
	second.UpdatedAt = time.Unix(1700001000, 0)
	if err := s.WriteProgress(ctx, second); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	got, err := s.ReadProgress(ctx, "tt100", "s01e01")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.Position != 550 || !got.Finished {
		t.Errorf("expected updated record, got %+v", got)
	}
}

func TestSQLite_SeparateRecordsPerEpisode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, video := range []string{"s01e01", "s01e02"} {
		rec := Record{
			MediaID: "tt100", VideoID: video,
			Position: float64(100 * (i + 1)), Duration: 600,
			UpdatedAt: time.Unix(1700000000, 0),
		}
		if err := s.WriteProgress(ctx, rec); err != nil {
			t.Fatalf("write %s failed: %v", video, err)
		}
	}

	e1, err := s.ReadProgress(ctx, "tt100", "s01e01")
	if err != nil {
		t.Fatalf("read e1 failed: %v", err)
	}
	e2, err := s.ReadProgress(ctx, "tt100", "s01e02")
	if err != nil {
		t.Fatalf("read e2 failed: %v", err)
	}
	if e1.Position != 100 || e2.Position != 200 {
		t.Errorf("episodes share a record: e1=%v e2=%v", e1.Position, e2.Position)
	}
}

func TestSQLite_ListRecentOrdersAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []Record{
		{MediaID: "a", Position: 10, Duration: 100, UpdatedAt: time.Unix(1000, 0)},
		{MediaID: "b", Position: 20, Duration: 100, UpdatedAt: time.Unix(3000, 0)},
		{MediaID: "c", Position: 30, Duration: 100, UpdatedAt: time.Unix(2000, 0)},
		{MediaID: "d", Position: 100, Duration: 100, Finished: true, UpdatedAt: time.Unix(4000, 0)},
	}
	for _, rec := range recs {
		if err := s.WriteProgress(ctx, rec); err != nil {
			t.Fatalf("write %s failed: %v", rec.MediaID, err)
		}
	}

	got, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 unfinished records, got %d", len(got))
	}
	order := []string{got[0].MediaID, got[1].MediaID, got[2].MediaID}
	want := []string{"b", "c", "a"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestSQLite_ListRecentHonorsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := Record{
			MediaID: string(rune('a' + i)), Position: 10, Duration: 100,
			UpdatedAt: time.Unix(int64(1000+i), 0),
		}
		if err := s.WriteProgress(ctx, rec); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	got, err := s.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
}

func TestSQLite_DeleteFinishedKeepsRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := Record{
		MediaID: "old", Position: 100, Duration: 100, Finished: true,
		UpdatedAt: time.Now().Add(-60 * 24 * time.Hour),
	}
	fresh := Record{
		MediaID: "fresh", Position: 100, Duration: 100, Finished: true,
		UpdatedAt: time.Now(),
	}
	unfinished := Record{
		MediaID: "watching", Position: 50, Duration: 100,
		UpdatedAt: time.Now().Add(-60 * 24 * time.Hour),
	}
	for _, rec := range []Record{old, fresh, unfinished} {
		if err := s.WriteProgress(ctx, rec); err != nil {
			t.Fatalf("write %s failed: %v", rec.MediaID, err)
		}
	}

	n, err := s.DeleteFinished(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted record, got %d", n)
	}

	if _, err := s.ReadProgress(ctx, "old", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected old finished record removed, got %v", err)
	}
	if _, err := s.ReadProgress(ctx, "fresh", ""); err != nil {
		t.Errorf("recent finished record removed: %v", err)
	}
	if _, err := s.ReadProgress(ctx, "watching", ""); err != nil {
		t.Errorf("unfinished record removed: %v", err)
	}
}
