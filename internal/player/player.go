package player

import (
	"context"
	"fmt"
)

// Source describes the media a backend should load
type Source struct {
	URL      string // Stream URL
	Title    string // Display title passed to the backend
	MediaID  string // Owning media identifier
	VideoID  string // Episode/video identifier (empty for movies)
	Headers  map[string]string
	Subtitle string // Optional external subtitle URL
}

// EventKind identifies the kind of event a backend emitted
type EventKind int

const (
	EventLoadComplete EventKind = iota // Media loaded, duration/dimensions known
	EventProgress                      // Periodic position report
	EventEndOfMedia                    // Playback reached the end
	EventError                         // Backend error with a raw message
	EventBuffering                     // Buffering state changed
	EventTracksChanged                 // Audio/subtitle track list changed
)

// String returns a human-readable representation of the EventKind
func (k EventKind) String() string {
	switch k {
	case EventLoadComplete:
		return "load-complete"
	case EventProgress:
		return "progress"
	case EventEndOfMedia:
		return "end-of-media"
	case EventError:
		return "error"
	case EventBuffering:
		return "buffering"
	case EventTracksChanged:
		return "tracks-changed"
	default:
		return "unknown"
	}
}

// Track describes one selectable audio or subtitle track
type Track struct {
	ID       int
	Type     string // "audio" or "sub"
	Language string
	Title    string
	Selected bool
}

// Event is a single notification from a backend.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind      EventKind
	Position  float64 // Seconds; EventProgress
	Duration  float64 // Seconds; EventLoadComplete, EventProgress
	Width     int     // EventLoadComplete
	Height    int     // EventLoadComplete
	Message   string  // EventError: raw backend error text
	Buffering bool    // EventBuffering
	Tracks    []Track // EventTracksChanged
}

// Engine is the contract every playback backend must satisfy.
// The controller depends only on this interface and never on a
// concrete backend's API shape.
type Engine interface {
	// Name returns the backend identifier used in configuration
	// and failure bookkeeping ("mpv", "vlc", ...).
	Name() string

	// Load starts playback of src at startPos seconds. Completion is
	// reported asynchronously via an EventLoadComplete event.
	Load(ctx context.Context, src Source, startPos float64) error

	// SetPaused pauses or resumes playback
	SetPaused(paused bool) error

	// Seek moves playback to pos seconds. Returns once the backend
	// has accepted the seek.
	Seek(ctx context.Context, pos float64) error

	// SetAudioTrack selects an audio track by id
	SetAudioTrack(id int) error

	// SetSubtitleTrack selects a subtitle track by id (0 disables)
	SetSubtitleTrack(id int) error

	// Events returns the backend's event stream. The channel is
	// closed when the backend shuts down.
	Events() <-chan Event

	// Stop tears down the backend and releases its resources
	Stop() error
}

// Factory creates a backend by name
type Factory func(name string) (Engine, error)

// Options carries backend process settings shared by all adapters
type Options struct {
	MPVSocket string // Unix socket path for mpv IPC
	MPVBinary string // mpv executable (default "mpv")
	VLCBinary string // vlc executable (default "vlc")
}

// Open creates the named backend with the given options.
// It is the default Factory used by the CLI.
func Open(name string, opts Options) (Engine, error) {
	switch name {
	case "mpv":
		return NewMPV(opts)
	case "vlc":
		return NewVLC(opts)
	default:
		return nil, fmt.Errorf("unknown playback backend %q", name)
	}
}
