package session

import "github.com/rs/zerolog"

// Phase is the fallback controller's lifecycle state
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhasePlaying
	PhaseFailing
	PhaseSwitching
	PhaseExhausted
	PhaseStopped
)

// String returns a human-readable representation of the Phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhaseFailing:
		return "failing"
	case PhaseSwitching:
		return "switching"
	case PhaseExhausted:
		return "exhausted"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// fallbackState owns the candidate backend selection for one session.
// It never re-selects a candidate that already failed; the retry
// budget shared with up-next auto-play separately caps total switches.
type fallbackState struct {
	candidates []string
	current    int
	failed     map[string]bool
	phase      Phase
	log        zerolog.Logger
}

func newFallbackState(candidates []string, log zerolog.Logger) *fallbackState {
	return &fallbackState{
		candidates: candidates,
		current:    -1,
		failed:     make(map[string]bool),
		phase:      PhaseIdle,
		log:        log.With().Str("component", "fallback").Logger(),
	}
}

// Current returns the backend name currently selected, or "" before
// the first selection
func (f *fallbackState) Current() string {
	if f.current < 0 || f.current >= len(f.candidates) {
		return ""
	}
	return f.candidates[f.current]
}

// Phase returns the current lifecycle state
func (f *fallbackState) Phase() Phase { return f.phase }

// SelectFirst picks the first untried candidate and enters Loading.
// Returns false if the candidate list is empty.
func (f *fallbackState) SelectFirst() bool {
	for i, name := range f.candidates {
		if !f.failed[name] {
			f.current = i
			f.phase = PhaseLoading
			f.log.Debug().Str("backend", name).Msg("Selected initial backend")
			return true
		}
	}
	f.phase = PhaseExhausted
	return false
}

// MarkPlaying records that the selected backend loaded successfully
func (f *fallbackState) MarkPlaying() {
	f.phase = PhasePlaying
}

// MarkFailing records that the selected backend reported an error
func (f *fallbackState) MarkFailing() {
	f.phase = PhaseFailing
}

// Advance marks the current candidate failed and selects the next
// untried one, entering Switching. Returns the new backend name, or
// false when the list is exhausted (phase becomes Exhausted).
func (f *fallbackState) Advance() (string, bool) {
	if cur := f.Current(); cur != "" {
		f.failed[cur] = true
	}
	for i, name := range f.candidates {
		if !f.failed[name] {
			f.current = i
			f.phase = PhaseSwitching
			f.log.Info().Str("backend", name).Msg("Switching to fallback backend")
			return name, true
		}
	}
	f.phase = PhaseExhausted
	f.log.Warn().Msg("All backend candidates exhausted")
	return "", false
}

// MarkStopped records a user-initiated or terminal stop
func (f *fallbackState) MarkStopped() {
	f.phase = PhaseStopped
}
