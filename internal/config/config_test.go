package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Isolate from any real user configuration
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(cfg.Backends) != 2 || cfg.Backends[0] != "mpv" || cfg.Backends[1] != "vlc" {
		t.Errorf("unexpected default backends: %v", cfg.Backends)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("expected 30 day retention default, got %d", cfg.RetentionDays)
	}
	if cfg.MaxAutoRetries != 5 {
		t.Errorf("expected 5 max auto retries, got %d", cfg.MaxAutoRetries)
	}

	s := cfg.Settings()
	if s.Watchdog != 300*time.Millisecond {
		t.Errorf("expected 300ms watchdog, got %v", s.Watchdog)
	}
	if s.CommitDelay != 600*time.Millisecond {
		t.Errorf("expected 600ms commit delay, got %v", s.CommitDelay)
	}
	if s.SeriesUpNextRatio >= s.MovieUpNextRatio {
		t.Errorf("series threshold %v should be below movie threshold %v",
			s.SeriesUpNextRatio, s.MovieUpNextRatio)
	}

	if got := cfg.Retention(); got != 30*24*time.Hour {
		t.Errorf("expected 30 day retention duration, got %v", got)
	}

	opts := cfg.PlayerOptions()
	if opts.MPVBinary != "mpv" || opts.VLCBinary != "vlc" {
		t.Errorf("unexpected default binaries: %+v", opts)
	}
}
