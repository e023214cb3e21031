package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/castaway-tv/castaway/internal/player"
	"github.com/castaway-tv/castaway/internal/session"
	"github.com/spf13/viper"
)

// Config holds application configuration. Every timing constant and
// threshold the playback controller consumes is supplied from here;
// nothing is hardcoded in the controller itself.
type Config struct {
	// Ordered backend preference list
	Backends []string

	// Seek step size in seconds per remote pulse
	SeekStep float64

	// Seek gesture timing (milliseconds)
	WatchdogMS    int
	CommitDelayMS int
	SyncWindowMS  int

	// Acceleration: after AccelThreshold steps, steps are multiplied
	// by AccelFactor
	AccelThreshold int
	AccelFactor    float64

	// Progress persistence interval in seconds
	PersistIntervalSec int

	// Completion ratio thresholds
	MovieUpNextRatio  float64
	SeriesUpNextRatio float64
	CompletionRatio   float64

	// Up-next prompt inactivity demotion delay in seconds
	UpNextInactivitySec int

	// Hard ceiling on automatic retries (fallback + auto-play) per session
	MaxAutoRetries int

	// Finished records older than this many days are pruned when the
	// progress database is opened; 0 disables pruning
	RetentionDays int

	// Backend process settings
	MPVBinary string
	MPVSocket string
	VLCBinary string

	// Data directory for the progress database
	DataDir string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	defaults := session.DefaultSettings()
	v.SetDefault("backends", defaults.Backends)
	v.SetDefault("seek.step", defaults.SeekStep)
	v.SetDefault("seek.watchdog_ms", int(defaults.Watchdog/time.Millisecond))
	v.SetDefault("seek.commit_delay_ms", int(defaults.CommitDelay/time.Millisecond))
	v.SetDefault("seek.sync_window_ms", int(defaults.SyncWindow/time.Millisecond))
	v.SetDefault("seek.accel_threshold", defaults.AccelThreshold)
	v.SetDefault("seek.accel_factor", defaults.AccelFactor)
	v.SetDefault("progress.persist_interval", int(defaults.PersistInterval/time.Second))
	v.SetDefault("progress.movie_upnext_ratio", defaults.MovieUpNextRatio)
	v.SetDefault("progress.series_upnext_ratio", defaults.SeriesUpNextRatio)
	v.SetDefault("progress.completion_ratio", defaults.CompletionRatio)
	v.SetDefault("progress.retention_days", 30)
	v.SetDefault("upnext.inactivity", int(defaults.UpNextInactivity/time.Second))
	v.SetDefault("max_auto_retries", defaults.MaxAutoRetries)
	v.SetDefault("mpv.binary", "mpv")
	v.SetDefault("mpv.socket", "")
	v.SetDefault("vlc.binary", "vlc")
	v.SetDefault("data_dir", defaultDataDir())

	// Config file is optional
	_ = v.ReadInConfig()

	v.SetEnvPrefix("CASTAWAY")
	v.AutomaticEnv()

	cfg := &Config{
		Backends:            v.GetStringSlice("backends"),
		SeekStep:            v.GetFloat64("seek.step"),
		WatchdogMS:          v.GetInt("seek.watchdog_ms"),
		CommitDelayMS:       v.GetInt("seek.commit_delay_ms"),
		SyncWindowMS:        v.GetInt("seek.sync_window_ms"),
		AccelThreshold:      v.GetInt("seek.accel_threshold"),
		AccelFactor:         v.GetFloat64("seek.accel_factor"),
		PersistIntervalSec:  v.GetInt("progress.persist_interval"),
		MovieUpNextRatio:    v.GetFloat64("progress.movie_upnext_ratio"),
		SeriesUpNextRatio:   v.GetFloat64("progress.series_upnext_ratio"),
		CompletionRatio:     v.GetFloat64("progress.completion_ratio"),
		UpNextInactivitySec: v.GetInt("upnext.inactivity"),
		MaxAutoRetries:      v.GetInt("max_auto_retries"),
		RetentionDays:       v.GetInt("progress.retention_days"),
		MPVBinary:           v.GetString("mpv.binary"),
		MPVSocket:           v.GetString("mpv.socket"),
		VLCBinary:           v.GetString("vlc.binary"),
		DataDir:             v.GetString("data_dir"),
	}

	return cfg, nil
}

// Settings maps the configuration onto the controller's tuning knobs
func (c *Config) Settings() session.Settings {
	return session.Settings{
		Backends:          c.Backends,
		SeekStep:          c.SeekStep,
		Watchdog:          time.Duration(c.WatchdogMS) * time.Millisecond,
		CommitDelay:       time.Duration(c.CommitDelayMS) * time.Millisecond,
		SyncWindow:        time.Duration(c.SyncWindowMS) * time.Millisecond,
		AccelThreshold:    c.AccelThreshold,
		AccelFactor:       c.AccelFactor,
		PersistInterval:   time.Duration(c.PersistIntervalSec) * time.Second,
		MovieUpNextRatio:  c.MovieUpNextRatio,
		SeriesUpNextRatio: c.SeriesUpNextRatio,
		CompletionRatio:   c.CompletionRatio,
		UpNextInactivity:  time.Duration(c.UpNextInactivitySec) * time.Second,
		MaxAutoRetries:    c.MaxAutoRetries,
	}
}

// Retention maps the pruning knob onto a duration; zero disables pruning
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// PlayerOptions maps the configuration onto backend process settings
func (c *Config) PlayerOptions() player.Options {
	return player.Options{
		MPVBinary: c.MPVBinary,
		MPVSocket: c.MPVSocket,
		VLCBinary: c.VLCBinary,
	}
}

// getConfigDir returns the configuration directory path, creating it
// if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	configDir := filepath.Join(homeDir, ".config", "castaway")
	_ = os.MkdirAll(configDir, 0755)
	return configDir
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "castaway")
}
