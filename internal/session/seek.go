package session

import (
	"time"

	"github.com/rs/zerolog"
)

// syncTolerance is how close a backend progress report must come to a
// committed seek position before the display pin is released early.
const syncTolerance = 3.0 // seconds

// seekGesture is the transient state of one remote seek burst.
// At most one gesture is live per session.
type seekGesture struct {
	Direction   Direction
	Steps       int
	LastPulse   time.Time
	Accelerated bool
	Pending     float64 // Position the gesture will commit, in seconds
}

// seekCoordinator turns a burst of discrete remote pulses into exactly
// one committed seek per gesture.
//
// Key-up events are dropped often enough on TV input stacks that
// gesture end cannot rely on a release event; instead a watchdog timer
// fires when pulses stop arriving. A commit-delay timer runs alongside
// it as the debounce bound, and whichever fires first takes the single
// commit path. Both timers are reset by every pulse, so the gesture
// accumulates for as long as the user keeps pressing.
//
// All methods must be called from the controller loop.
type seekCoordinator struct {
	clock Clock
	// dispatch hands a timer callback to the controller loop so timer
	// expiry is processed with the same single-threaded sequencing as
	// every other event
	dispatch func(f func())
	// commit issues the single seek call for a finished gesture
	commit func(pos float64)
	log    zerolog.Logger

	step        float64
	watchdog    time.Duration
	commitDelay time.Duration
	syncWindow  time.Duration
	accelAfter  int
	accelFactor float64

	gesture *seekGesture
	gen     uint64 // Invalidates timer fires from replaced gestures

	watchdogTimer Timer
	commitTimer   Timer

	// Display pin: after a commit the UI position stays at the
	// committed value until the backend reports a nearby position or
	// the sync window lapses, so the scrubber never snaps backward.
	pinned    bool
	pinnedPos float64
	pinTimer  Timer
	pinGen    uint64
}

func newSeekCoordinator(clock Clock, settings Settings, dispatch func(func()), commit func(float64), log zerolog.Logger) *seekCoordinator {
	return &seekCoordinator{
		clock:       clock,
		dispatch:    dispatch,
		commit:      commit,
		log:         log.With().Str("component", "seek").Logger(),
		step:        settings.SeekStep,
		watchdog:    settings.Watchdog,
		commitDelay: settings.CommitDelay,
		syncWindow:  settings.SyncWindow,
		accelAfter:  settings.AccelThreshold,
		accelFactor: settings.AccelFactor,
	}
}

// Pulse feeds one directional pulse into the state machine.
// currentPos and duration describe the playback position the first
// pulse of a gesture starts from.
func (s *seekCoordinator) Pulse(dir Direction, currentPos, duration float64) {
	now := s.clock.Now()

	if s.gesture == nil {
		base := currentPos
		if s.pinned {
			// A fresh gesture right after a commit continues from
			// the committed value, not the stale backend position
			base = s.pinnedPos
		}
		s.gesture = &seekGesture{
			Direction: dir,
			LastPulse: now,
			Pending:   base,
		}
	}

	g := s.gesture
	if dir != g.Direction {
		// Direction flip restarts accumulation and acceleration
		g.Direction = dir
		g.Steps = 0
		g.Accelerated = false
	}

	stepSize := s.step
	if g.Steps >= s.accelAfter && s.accelFactor > 1 {
		stepSize *= s.accelFactor
		g.Accelerated = true
	}

	if dir == SeekForward {
		g.Pending += stepSize
	} else {
		g.Pending -= stepSize
	}
	g.Pending = clampPosition(g.Pending, duration)
	g.Steps++
	g.LastPulse = now

	s.armTimers()

	s.log.Debug().
		Str("direction", dir.String()).
		Int("steps", g.Steps).
		Bool("accelerated", g.Accelerated).
		Float64("pending", g.Pending).
		Msg("Seek pulse")
}

// armTimers (re)starts the watchdog and commit-delay timers for the
// current gesture
func (s *seekCoordinator) armTimers() {
	s.stopGestureTimers()
	gen := s.gen
	s.watchdogTimer = s.clock.AfterFunc(s.watchdog, func() {
		s.dispatch(func() { s.onTimer(gen) })
	})
	s.commitTimer = s.clock.AfterFunc(s.commitDelay, func() {
		s.dispatch(func() { s.onTimer(gen) })
	})
}

// onTimer runs the single commit path when either gesture timer fires.
// Fires belonging to a replaced or cancelled gesture are dropped.
func (s *seekCoordinator) onTimer(gen uint64) {
	if gen != s.gen || s.gesture == nil {
		return
	}
	pos := s.gesture.Pending
	steps := s.gesture.Steps
	s.clearGesture()

	s.pin(pos)
	s.log.Debug().Float64("position", pos).Int("steps", steps).Msg("Committing seek")
	s.commit(pos)
}

// Observe feeds a backend progress report; once the backend has caught
// up to the committed position the display pin is released early.
func (s *seekCoordinator) Observe(pos float64) {
	if !s.pinned {
		return
	}
	diff := pos - s.pinnedPos
	if diff < 0 {
		diff = -diff
	}
	if diff <= syncTolerance {
		s.unpin()
	}
}

// DisplayPosition maps the backend position to what the UI should
// show: the accumulating pending value during a gesture, the committed
// value during the sync window, the real position otherwise.
func (s *seekCoordinator) DisplayPosition(actual float64) float64 {
	if s.gesture != nil {
		return s.gesture.Pending
	}
	if s.pinned {
		return s.pinnedPos
	}
	return actual
}

// Active reports whether a gesture is currently accumulating
func (s *seekCoordinator) Active() bool { return s.gesture != nil }

// Cancel discards any uncommitted gesture and all timers.
// Used on stop, navigate-away and backend switches; a committed
// position survives, an uncommitted gesture does not.
func (s *seekCoordinator) Cancel() {
	s.clearGesture()
	s.unpin()
}

func (s *seekCoordinator) clearGesture() {
	s.stopGestureTimers()
	s.gesture = nil
	s.gen++
}

func (s *seekCoordinator) stopGestureTimers() {
	if s.watchdogTimer != nil {
		s.watchdogTimer.Stop()
		s.watchdogTimer = nil
	}
	if s.commitTimer != nil {
		s.commitTimer.Stop()
		s.commitTimer = nil
	}
}

func (s *seekCoordinator) pin(pos float64) {
	s.unpin()
	s.pinned = true
	s.pinnedPos = pos
	gen := s.pinGen
	s.pinTimer = s.clock.AfterFunc(s.syncWindow, func() {
		s.dispatch(func() { s.onPinExpired(gen) })
	})
}

func (s *seekCoordinator) onPinExpired(gen uint64) {
	if gen != s.pinGen {
		return
	}
	s.unpin()
}

func (s *seekCoordinator) unpin() {
	if s.pinTimer != nil {
		s.pinTimer.Stop()
		s.pinTimer = nil
	}
	s.pinned = false
	s.pinGen++
}

// clampPosition keeps a pending seek inside the media bounds.
// Duration may be unknown (zero) early in a load; only the lower
// bound applies then.
func clampPosition(pos, duration float64) float64 {
	if pos < 0 {
		return 0
	}
	if duration > 0 && pos > duration {
		return duration
	}
	return pos
}
