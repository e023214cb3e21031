package session

import (
	"testing"
	"time"

	"github.com/castaway-tv/castaway/internal/store"
	"github.com/rs/zerolog"
)

func newTestTracker(t *testing.T, clock *fakeClock, mediaType MediaType) (*progressTracker, *[]store.Record, *int) {
	t.Helper()
	settings := DefaultSettings()
	settings.PersistInterval = 10 * time.Second
	settings.SeriesUpNextRatio = 0.95
	settings.MovieUpNextRatio = 0.97
	settings.CompletionRatio = 0.9

	var persisted []store.Record
	approaches := 0
	p := newProgressTracker(clock, settings,
		Params{MediaID: "m1", VideoID: "v1", Type: mediaType},
		func(f func()) { f() },
		func(rec store.Record) { persisted = append(persisted, rec) },
		func() { approaches++ },
		zerolog.Nop(),
	)
	return p, &persisted, &approaches
}

func TestProgress_PersistsOnIntervalNotPerEvent(t *testing.T) {
	clock := newFakeClock()
	p, persisted, _ := newTestTracker(t, clock, Movie)
	p.Start()

	// A storm of progress reports inside one interval produces no
	// writes until the interval timer fires
	for i := 0; i < 100; i++ {
		p.Observe(float64(i), 3600)
	}
	if len(*persisted) != 0 {
		t.Fatalf("persisted %d records before interval elapsed", len(*persisted))
	}

	clock.Advance(10 * time.Second)

	if len(*persisted) != 1 {
		t.Fatalf("expected 1 persist after interval, got %d", len(*persisted))
	}
	rec := (*persisted)[0]
	if rec.MediaID != "m1" || rec.VideoID != "v1" {
		t.Errorf("unexpected record key: %+v", rec)
	}
	if rec.Position != 99 {
		t.Errorf("expected latest position 99, got %v", rec.Position)
	}
}

func TestProgress_NoWriteWhenNothingChanged(t *testing.T) {
	clock := newFakeClock()
	p, persisted, _ := newTestTracker(t, clock, Movie)
	p.Start()

	// No progress reports at all: interval ticks stay silent
	clock.Advance(time.Minute)

	if len(*persisted) != 0 {
		t.Fatalf("expected no persists without progress, got %d", len(*persisted))
	}
}

func TestProgress_ApproachingEndFiresOnce(t *testing.T) {
	clock := newFakeClock()
	p, _, approaches := newTestTracker(t, clock, Series)
	p.Start()

	p.Observe(940, 1000) // 0.94, below series threshold
	if *approaches != 0 {
		t.Fatal("approaching-end fired below threshold")
	}

	p.Observe(950, 1000) // crosses 0.95
	if *approaches != 1 {
		t.Fatalf("expected 1 approaching-end signal, got %d", *approaches)
	}

	// Further reports past the threshold never repeat the signal
	p.Observe(960, 1000)
	p.Observe(990, 1000)
	if *approaches != 1 {
		t.Fatalf("approaching-end repeated: %d", *approaches)
	}
}

func TestProgress_MovieThresholdHigherThanSeries(t *testing.T) {
	clock := newFakeClock()
	p, _, approaches := newTestTracker(t, clock, Movie)
	p.Start()

	p.Observe(950, 1000) // 0.95 crosses series but not movie threshold
	if *approaches != 0 {
		t.Fatal("movie fired at the series threshold")
	}
	p.Observe(970, 1000)
	if *approaches != 1 {
		t.Fatalf("expected signal at movie threshold, got %d", *approaches)
	}
}

func TestProgress_FinishedBelowFullDuration(t *testing.T) {
	clock := newFakeClock()
	p, _, _ := newTestTracker(t, clock, Movie)

	p.Observe(850, 1000)
	if p.Finished() {
		t.Error("finished below completion threshold")
	}
	p.Observe(900, 1000)
	if !p.Finished() {
		t.Error("expected finished at completion threshold")
	}
}

func TestProgress_StopCancelsTimer(t *testing.T) {
	clock := newFakeClock()
	p, persisted, _ := newTestTracker(t, clock, Movie)
	p.Start()

	p.Observe(100, 1000)
	p.Stop()

	clock.Advance(time.Minute)

	if len(*persisted) != 0 {
		t.Fatalf("persist fired after stop: %d", len(*persisted))
	}
	if n := clock.pendingTimers(); n != 0 {
		t.Errorf("expected no pending timers after stop, got %d", n)
	}
}
