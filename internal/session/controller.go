package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/castaway-tv/castaway/internal/player"
	"github.com/castaway-tv/castaway/internal/store"
	"github.com/rs/zerolog"
)

// ErrPlaybackFailed is wrapped by Run when a session ends with a
// terminal, user-visible failure
var ErrPlaybackFailed = errors.New("playback failed")

// Navigator is invoked when a session exits playback: on user stop, on
// a terminal failure and on up-next advances.
type Navigator interface {
	ExitPlayback(ctx context.Context, target NavTarget) error
}

// NavTarget tells the navigation collaborator where control goes after
// a session ends
type NavTarget struct {
	MediaID  string
	VideoID  string
	Type     MediaType
	AutoPlay bool // True when the next item should start playing immediately
}

// Hooks are UI-facing callbacks the controller invokes on state
// transitions. Every field may be nil; the default is a no-op.
type Hooks struct {
	// OnUpNext fires when the up-next prompt changes visual state
	OnUpNext func(state UpNextState, target *UpNextTarget)

	// OnTerminalError fires once with the classifier's user-facing
	// message when a session fails unrecoverably
	OnTerminalError func(message string)

	// OnBackendSwitch fires on every silent fallback switch
	OnBackendSwitch func(from, to string)
}

func (h Hooks) upNext(state UpNextState, target *UpNextTarget) {
	if h.OnUpNext != nil {
		h.OnUpNext(state, target)
	}
}

func (h Hooks) terminalError(message string) {
	if h.OnTerminalError != nil {
		h.OnTerminalError(message)
	}
}

func (h Hooks) backendSwitch(from, to string) {
	if h.OnBackendSwitch != nil {
		h.OnBackendSwitch(from, to)
	}
}

// Status is a point-in-time snapshot of the session for display
type Status struct {
	Backend   string
	Phase     Phase
	Position  float64 // Display position (pinned during seek sync)
	Duration  float64
	Ratio     float64
	Paused    bool
	Buffering bool
	Seeking   bool // A gesture is accumulating
	UpNext    UpNextState
	Tracks    []player.Track
	Message   string // Terminal failure message, if any
}

// Config wires a Controller's collaborators
type Config struct {
	Settings  Settings
	Store     store.Store
	Navigator Navigator
	Hooks     Hooks

	// OpenBackend creates a backend by name. Defaults to player.Open
	// with empty options.
	OpenBackend func(name string) (player.Engine, error)

	// Clock defaults to RealClock
	Clock Clock

	Logger zerolog.Logger
}

// Controller owns one playback session at a time: backend selection
// and fallback, seek gesture coordination, progress persistence and
// up-next scheduling. All session state is mutated from a single
// event-loop goroutine; timers and adapter completions are dispatched
// back into that loop, so no locking is needed beyond the status
// snapshot.
type Controller struct {
	settings Settings
	store    store.Store
	nav      Navigator
	hooks    Hooks
	open     func(name string) (player.Engine, error)
	clock    Clock
	log      zerolog.Logger

	loop     chan func()
	pulses   chan Direction
	stopCh   chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}

	// Loop-owned session state
	params       Params
	engine       player.Engine
	engineEvents <-chan player.Event
	backendGen   uint64 // Invalidates completions from replaced backends
	fb           *fallbackState
	seek         *seekCoordinator
	progress     *progressTracker
	upnext       *upNextScheduler
	budget       *retryBudget
	paused       bool
	buffering    bool
	tracks       []player.Track
	seekInFlight bool
	pendingSeek  *float64
	result       *outcome

	mu     sync.RWMutex
	status Status
}

// outcome records how the session ended and where navigation goes
type outcome struct {
	err error
	nav *NavTarget
}

// New creates a Controller from cfg. Run starts a session.
func New(cfg Config) *Controller {
	open := cfg.OpenBackend
	if open == nil {
		open = func(name string) (player.Engine, error) {
			return player.Open(name, player.Options{})
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Controller{
		settings: cfg.Settings,
		store:    cfg.Store,
		nav:      cfg.Navigator,
		hooks:    cfg.Hooks,
		open:     open,
		clock:    clock,
		log:      cfg.Logger.With().Str("component", "controller").Logger(),
		loop:     make(chan func(), 64),
		pulses:   make(chan Direction, 16),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Run plays one session to completion. It blocks until the media
// finishes, the user stops, a terminal failure occurs or ctx is
// cancelled. Terminal failures are reported as an error wrapping
// ErrPlaybackFailed; navigation is invoked in every case.
func (c *Controller) Run(ctx context.Context, params Params) error {
	c.params = params
	c.budget = &retryBudget{max: c.settings.MaxAutoRetries}
	c.fb = newFallbackState(c.settings.Backends, c.log)
	c.seek = newSeekCoordinator(c.clock, c.settings, c.dispatch, c.commitSeek, c.log)
	c.progress = newProgressTracker(c.clock, c.settings, params, c.dispatch, c.persistRecord, c.onApproachingEnd, c.log)
	c.upnext = newUpNextScheduler(c.clock, c.settings, params.UpNext, c.budget, c.dispatch, c.hooks.upNext, c.log)

	resume := c.resumePosition(ctx)
	// Seed the tracker so a fallback reload before any progress
	// report still resumes where the session started
	c.progress.position = resume

	if !c.fb.SelectFirst() {
		close(c.loopDone)
		return fmt.Errorf("no playback backends configured")
	}

	c.log.Info().
		Str("media", params.MediaID).
		Str("video", params.VideoID).
		Str("backend", c.fb.Current()).
		Float64("resume", resume).
		Msg("Starting playback session")

	c.startBackend(c.fb.Current(), resume)
	c.progress.Start()
	c.publishStatus()

	for c.result == nil {
		select {
		case <-ctx.Done():
			c.result = &outcome{err: ctx.Err()}
		case f := <-c.loop:
			f()
		case d := <-c.pulses:
			c.handlePulse(d)
		case ev, ok := <-c.engineEvents:
			if !ok {
				// Channel closed by a backend shutting down; a
				// replacement (if any) was already wired in
				c.engineEvents = nil
				continue
			}
			c.handleEvent(ev)
		case <-c.stopCh:
			c.result = &outcome{nav: &NavTarget{
				MediaID: params.MediaID,
				VideoID: params.VideoID,
				Type:    params.Type,
			}}
		}
	}

	c.teardown()

	if c.nav != nil && c.result.nav != nil {
		if err := c.nav.ExitPlayback(context.WithoutCancel(ctx), *c.result.nav); err != nil {
			c.log.Warn().Err(err).Msg("Navigation failed")
		}
	}

	return c.result.err
}

// resumePosition reads the stored progress record once at session
// start. A finished record restarts from the beginning.
func (c *Controller) resumePosition(ctx context.Context) float64 {
	if c.store == nil {
		return 0
	}
	rec, err := c.store.ReadProgress(ctx, c.params.MediaID, c.params.VideoID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.log.Warn().Err(err).Msg("Failed to read progress record")
		}
		return 0
	}
	if rec.Finished || rec.Ratio >= c.settings.CompletionRatio {
		return 0
	}
	return rec.Position
}

// dispatch hands a closure to the event loop. Callbacks arriving
// after the loop exited are dropped; a stale timer must never fire
// into a torn-down session.
func (c *Controller) dispatch(f func()) {
	select {
	case c.loop <- f:
	case <-c.loopDone:
	}
}

// --- External API (safe to call from any goroutine) ---

// Pulse feeds one remote-control directional pulse
func (c *Controller) Pulse(dir Direction) {
	select {
	case c.pulses <- dir:
	case <-c.loopDone:
	}
}

// TogglePause flips the paused state
func (c *Controller) TogglePause() {
	c.dispatch(func() {
		c.paused = !c.paused
		paused := c.paused
		eng := c.engine
		if eng != nil {
			go func() { _ = eng.SetPaused(paused) }()
		}
		c.publishStatus()
	})
}

// SelectAudioTrack selects an audio track on the active backend
func (c *Controller) SelectAudioTrack(id int) {
	c.dispatch(func() {
		if c.engine != nil {
			eng := c.engine
			go func() { _ = eng.SetAudioTrack(id) }()
		}
	})
}

// SelectSubtitleTrack selects a subtitle track on the active backend
func (c *Controller) SelectSubtitleTrack(id int) {
	c.dispatch(func() {
		if c.engine != nil {
			eng := c.engine
			go func() { _ = eng.SetSubtitleTrack(id) }()
		}
	})
}

// PlayNext accepts the up-next prompt: the session ends and navigation
// advances to the next item. A user choice does not spend the
// auto-play budget.
func (c *Controller) PlayNext() {
	c.dispatch(func() {
		target := c.upnext.Target()
		if target == nil {
			return
		}
		c.result = &outcome{nav: &NavTarget{
			MediaID:  target.MediaID,
			VideoID:  target.VideoID,
			Type:     c.params.Type,
			AutoPlay: true,
		}}
	})
}

// Stop ends the session (user stop / navigate-away)
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Snapshot returns the current session status for display
func (c *Controller) Snapshot() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// --- Loop-side handling ---

func (c *Controller) handlePulse(dir Direction) {
	if c.fb.Phase() != PhasePlaying {
		return
	}
	c.seek.Pulse(dir, c.progress.position, c.progress.duration)
	c.publishStatus()
}

func (c *Controller) handleEvent(ev player.Event) {
	switch ev.Kind {
	case player.EventLoadComplete:
		c.fb.MarkPlaying()
		if ev.Duration > 0 {
			c.progress.Observe(c.progress.position, ev.Duration)
		}
		c.log.Info().
			Str("backend", c.fb.Current()).
			Float64("duration", ev.Duration).
			Msg("Media loaded")

	case player.EventProgress:
		c.seek.Observe(ev.Position)
		c.progress.Observe(ev.Position, ev.Duration)

	case player.EventEndOfMedia:
		c.finish()

	case player.EventError:
		c.handleRawError(ev.Message)

	case player.EventBuffering:
		c.buffering = ev.Buffering

	case player.EventTracksChanged:
		c.tracks = ev.Tracks
	}
	c.publishStatus()
}

// handleRawError classifies a backend failure and either switches to
// the next candidate silently or surfaces a terminal failure.
func (c *Controller) handleRawError(raw string) {
	cls := player.Classify(raw)
	c.fb.MarkFailing()

	c.log.Warn().
		Str("backend", c.fb.Current()).
		Str("kind", cls.Kind.String()).
		Bool("fallback", cls.ShouldFallback).
		Str("raw", raw).
		Msg("Backend error")

	if cls.ShouldFallback && c.budget.tryConsume() {
		from := c.fb.Current()
		if name, ok := c.fb.Advance(); ok {
			// An uncommitted gesture does not survive the switch;
			// a committed position does, via the progress tracker
			c.seek.Cancel()
			c.pendingSeek = nil
			c.hooks.backendSwitch(from, name)
			c.switchBackend(name)
			return
		}
	}

	c.fb.MarkStopped()
	c.hooks.terminalError(cls.Message)
	c.setMessage(cls.Message)
	c.result = &outcome{
		err: fmt.Errorf("%w: %s", ErrPlaybackFailed, cls.Message),
		nav: &NavTarget{
			MediaID: c.params.MediaID,
			VideoID: c.params.VideoID,
			Type:    c.params.Type,
		},
	}
}

// switchBackend stops the current backend and reloads on the named one
// at the last known position
func (c *Controller) switchBackend(name string) {
	if c.engine != nil {
		old := c.engine
		go func() { _ = old.Stop() }()
	}
	c.engine = nil
	c.engineEvents = nil
	c.backendGen++
	c.seekInFlight = false

	resume := c.progress.position
	c.startBackend(name, resume)
}

// startBackend opens the named backend and begins loading. Open and
// load failures re-enter the error path so fallback applies to them
// the same as to runtime errors.
func (c *Controller) startBackend(name string, resume float64) {
	eng, err := c.open(name)
	if err != nil {
		c.log.Warn().Err(err).Str("backend", name).Msg("Failed to open backend")
		c.handleRawError(err.Error())
		return
	}
	c.engine = eng
	c.engineEvents = eng.Events()
	gen := c.backendGen

	src := c.params.Source
	go func() {
		if err := eng.Load(context.Background(), src, resume); err != nil {
			c.dispatch(func() {
				if gen != c.backendGen {
					return
				}
				c.handleRawError(err.Error())
			})
		}
	}()

	if c.paused {
		go func() { _ = eng.SetPaused(true) }()
	}
}

// commitSeek issues the single seek for a committed gesture. At most
// one seek is in flight per session; a newer commit queues behind it
// instead of issuing a second concurrent call.
func (c *Controller) commitSeek(pos float64) {
	// The committed value is the session position from here on: a
	// backend switch or final persist inside the in-flight window,
	// before the backend reports progress at the target, must resume
	// at the committed position rather than the pre-seek one.
	c.progress.Observe(pos, c.progress.duration)
	if c.engine == nil {
		return
	}
	if c.seekInFlight {
		c.pendingSeek = &pos
		return
	}
	c.issueSeek(pos)
}

func (c *Controller) issueSeek(pos float64) {
	c.seekInFlight = true
	eng := c.engine
	gen := c.backendGen
	go func() {
		err := eng.Seek(context.Background(), pos)
		c.dispatch(func() { c.onSeekDone(gen, err) })
	}()
}

func (c *Controller) onSeekDone(gen uint64, err error) {
	if gen != c.backendGen {
		// Acknowledgment from a backend that was since replaced
		return
	}
	c.seekInFlight = false
	if err != nil {
		c.log.Warn().Err(err).Msg("Seek failed")
	}
	if c.pendingSeek != nil {
		pos := *c.pendingSeek
		c.pendingSeek = nil
		c.issueSeek(pos)
	}
}

func (c *Controller) onApproachingEnd() {
	c.upnext.Trigger()
	c.publishStatus()
}

// finish handles end-of-media: the final record is marked finished and
// navigation either auto-advances (within the shared retry budget) or
// returns control to the user.
func (c *Controller) finish() {
	c.log.Info().Str("media", c.params.MediaID).Msg("Playback finished")

	if c.progress.duration > 0 {
		c.progress.Observe(c.progress.duration, c.progress.duration)
	}

	nav := &NavTarget{
		MediaID: c.params.MediaID,
		VideoID: c.params.VideoID,
		Type:    c.params.Type,
	}
	if target := c.upnext.Target(); target != nil && c.upnext.ConsumeAutoPlay() {
		nav = &NavTarget{
			MediaID:  target.MediaID,
			VideoID:  target.VideoID,
			Type:     c.params.Type,
			AutoPlay: true,
		}
	}
	c.result = &outcome{nav: nav}
}

// persistRecord writes one progress record through the store
func (c *Controller) persistRecord(rec store.Record) {
	if c.store == nil {
		return
	}
	rec.Title = c.params.Source.Title
	rec.Finished = c.progress.Finished()
	if err := c.store.WriteProgress(context.Background(), rec); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist progress")
	}
}

// teardown cancels every outstanding timer, performs the final
// progress write and stops the backend. After teardown no timer or
// adapter completion can produce a side effect.
func (c *Controller) teardown() {
	c.seek.Cancel()
	c.progress.Stop()
	c.upnext.Cancel()
	c.backendGen++
	close(c.loopDone)

	if c.progress.duration > 0 {
		c.persistRecord(c.progress.Record())
	}

	if c.engine != nil {
		_ = c.engine.Stop()
		c.engine = nil
	}
	if c.fb.Phase() != PhaseExhausted {
		c.fb.MarkStopped()
	}
	c.publishStatus()

	c.log.Info().Msg("Session torn down")
}

// publishStatus refreshes the snapshot other goroutines read
func (c *Controller) publishStatus() {
	st := Status{
		Backend:   c.fb.Current(),
		Phase:     c.fb.Phase(),
		Position:  c.seek.DisplayPosition(c.progress.position),
		Duration:  c.progress.duration,
		Ratio:     c.progress.Ratio(),
		Paused:    c.paused,
		Buffering: c.buffering,
		Seeking:   c.seek.Active(),
		UpNext:    c.upnext.State(),
		Tracks:    c.tracks,
	}
	c.mu.Lock()
	st.Message = c.status.Message
	c.status = st
	c.mu.Unlock()
}

func (c *Controller) setMessage(msg string) {
	c.mu.Lock()
	c.status.Message = msg
	c.mu.Unlock()
}
