package session

import (
	"time"

	"github.com/castaway-tv/castaway/internal/player"
)

// MediaType distinguishes movies from series episodes; they use
// different approaching-end thresholds since episodes carry credits
// and previews that start earlier relative to runtime.
type MediaType int

const (
	Movie MediaType = iota
	Series
)

// String returns a human-readable representation of the MediaType
func (t MediaType) String() string {
	switch t {
	case Movie:
		return "movie"
	case Series:
		return "series"
	default:
		return "unknown"
	}
}

// Direction of a remote-control seek pulse
type Direction int

const (
	SeekBackward Direction = iota
	SeekForward
)

// String returns a human-readable representation of the Direction
func (d Direction) String() string {
	if d == SeekForward {
		return "forward"
	}
	return "backward"
}

// UpNextTarget identifies the item an up-next advance navigates to
type UpNextTarget struct {
	MediaID string
	VideoID string
	Title   string
}

// Params describes one playback request
type Params struct {
	MediaID    string
	VideoID    string // Empty for movies
	BingeGroup string // Groups episodes that auto-advance into each other
	Type       MediaType
	Source     player.Source
	UpNext     *UpNextTarget // Next episode, nil when there is none
}

// Settings holds every externally supplied tuning knob the controller
// consumes at session start. Nothing here is hardcoded in the state
// machines themselves.
type Settings struct {
	// Backends is the ordered backend preference list
	Backends []string

	// SeekStep is the seconds moved per remote pulse
	SeekStep float64

	// Watchdog is how long after the last pulse a gesture is
	// considered finished (key-up events are unreliable on TV
	// input stacks, so gesture end is timeout-driven)
	Watchdog time.Duration

	// CommitDelay debounces rapid pulses into a single seek call
	CommitDelay time.Duration

	// SyncWindow pins the displayed position to the committed seek
	// value while the backend catches up
	SyncWindow time.Duration

	// AccelThreshold is the step count past which pulses seek coarser
	AccelThreshold int

	// AccelFactor multiplies the step size once accelerated
	AccelFactor float64

	// PersistInterval bounds how often progress is written out
	PersistInterval time.Duration

	// MovieUpNextRatio and SeriesUpNextRatio are the completion
	// ratios at which the approaching-end signal fires
	MovieUpNextRatio  float64
	SeriesUpNextRatio float64

	// CompletionRatio is the ratio past which a session counts as
	// finished (credits and trailing black frames mean playback
	// rarely reaches exactly 1.0)
	CompletionRatio float64

	// UpNextInactivity demotes an unanswered up-next prompt to its
	// dimmed state after this delay
	UpNextInactivity time.Duration

	// MaxAutoRetries caps automatic backend switches and auto-play
	// attempts per session combined
	MaxAutoRetries int
}

// DefaultSettings returns the tuning used when configuration is absent
func DefaultSettings() Settings {
	return Settings{
		Backends:          []string{"mpv", "vlc"},
		SeekStep:          10,
		Watchdog:          300 * time.Millisecond,
		CommitDelay:       600 * time.Millisecond,
		SyncWindow:        4 * time.Second,
		AccelThreshold:    6,
		AccelFactor:       3,
		PersistInterval:   10 * time.Second,
		MovieUpNextRatio:  0.97,
		SeriesUpNextRatio: 0.95,
		CompletionRatio:   0.9,
		UpNextInactivity:  12 * time.Second,
		MaxAutoRetries:    5,
	}
}

// retryBudget caps total automatic recovery attempts for one session.
// Backend fallback and up-next auto-play draw from the same budget so
// a persistently broken source cannot loop forever.
type retryBudget struct {
	used int
	max  int
}

func (b *retryBudget) tryConsume() bool {
	if b.used >= b.max {
		return false
	}
	b.used++
	return true
}

func (b *retryBudget) remaining() int {
	return b.max - b.used
}
