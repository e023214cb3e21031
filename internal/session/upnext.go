package session

import (
	"time"

	"github.com/rs/zerolog"
)

// UpNextState is the up-next prompt's visual state
type UpNextState int

const (
	UpNextHidden   UpNextState = iota
	UpNextActive               // Prompt surfaced, fully visible
	UpNextInactive             // Demoted/dimmed after inactivity, still actionable
)

// String returns a human-readable representation of the UpNextState
func (s UpNextState) String() string {
	switch s {
	case UpNextActive:
		return "active"
	case UpNextInactive:
		return "inactive"
	default:
		return "hidden"
	}
}

// upNextScheduler surfaces the up-next prompt when playback approaches
// the end and demotes it after a period of user inactivity. Automatic
// advancing draws from the session retry budget it shares with backend
// fallback, so a binge sequence whose every episode fails cannot loop
// forever.
//
// All methods must be called from the controller loop.
type upNextScheduler struct {
	clock    Clock
	dispatch func(f func())
	show     func(state UpNextState, target *UpNextTarget)
	log      zerolog.Logger

	inactivity time.Duration
	budget     *retryBudget
	target     *UpNextTarget

	state UpNextState
	timer Timer
	gen   uint64
}

func newUpNextScheduler(clock Clock, settings Settings, target *UpNextTarget, budget *retryBudget, dispatch func(func()), show func(UpNextState, *UpNextTarget), log zerolog.Logger) *upNextScheduler {
	return &upNextScheduler{
		clock:      clock,
		dispatch:   dispatch,
		show:       show,
		log:        log.With().Str("component", "upnext").Logger(),
		inactivity: settings.UpNextInactivity,
		budget:     budget,
		target:     target,
		state:      UpNextHidden,
	}
}

// Trigger surfaces the prompt on the approaching-end signal.
// Repeated triggers for the same session are ignored.
func (u *upNextScheduler) Trigger() {
	if u.state != UpNextHidden || u.target == nil {
		return
	}
	u.state = UpNextActive
	u.log.Debug().Str("next", u.target.VideoID).Msg("Surfacing up-next prompt")
	u.show(u.state, u.target)

	gen := u.gen
	u.timer = u.clock.AfterFunc(u.inactivity, func() {
		u.dispatch(func() { u.onInactivity(gen) })
	})
}

func (u *upNextScheduler) onInactivity(gen uint64) {
	if gen != u.gen || u.state != UpNextActive {
		return
	}
	u.state = UpNextInactive
	u.show(u.state, u.target)
}

// State returns the prompt's current visual state
func (u *upNextScheduler) State() UpNextState { return u.state }

// Target returns the advance destination, nil when there is none
func (u *upNextScheduler) Target() *UpNextTarget { return u.target }

// ConsumeAutoPlay reports whether an automatic advance may happen and
// spends one attempt from the shared budget if so
func (u *upNextScheduler) ConsumeAutoPlay() bool {
	if u.target == nil {
		return false
	}
	if !u.budget.tryConsume() {
		u.log.Warn().Msg("Auto-play budget exhausted, returning control to user")
		return false
	}
	return true
}

// Cancel hides the prompt and stops its timer
func (u *upNextScheduler) Cancel() {
	u.gen++
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
	u.state = UpNextHidden
}
