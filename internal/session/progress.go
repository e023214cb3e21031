package session

import (
	"time"

	"github.com/castaway-tv/castaway/internal/store"
	"github.com/rs/zerolog"
)

// progressTracker samples backend progress reports, derives the
// completion ratio and raises the one-shot approaching-end signal.
// Persistence happens on a fixed interval rather than per report so
// write frequency stays bounded.
//
// All methods must be called from the controller loop.
type progressTracker struct {
	clock    Clock
	dispatch func(f func())
	persist  func(rec store.Record)
	approach func()
	log      zerolog.Logger

	interval   time.Duration
	threshold  float64 // Approaching-end ratio for this media type
	completion float64

	mediaID string
	videoID string

	position float64
	duration float64

	approached bool
	dirty      bool
	timer      Timer
	gen        uint64
}

func newProgressTracker(clock Clock, settings Settings, params Params, dispatch func(func()), persist func(store.Record), approach func(), log zerolog.Logger) *progressTracker {
	threshold := settings.MovieUpNextRatio
	if params.Type == Series {
		threshold = settings.SeriesUpNextRatio
	}
	return &progressTracker{
		clock:      clock,
		dispatch:   dispatch,
		persist:    persist,
		approach:   approach,
		log:        log.With().Str("component", "progress").Logger(),
		interval:   settings.PersistInterval,
		threshold:  threshold,
		completion: settings.CompletionRatio,
		mediaID:    params.MediaID,
		videoID:    params.VideoID,
	}
}

// Start arms the persist interval timer
func (p *progressTracker) Start() {
	p.armTimer()
}

func (p *progressTracker) armTimer() {
	gen := p.gen
	p.timer = p.clock.AfterFunc(p.interval, func() {
		p.dispatch(func() { p.onTick(gen) })
	})
}

func (p *progressTracker) onTick(gen uint64) {
	if gen != p.gen {
		return
	}
	if p.dirty {
		p.dirty = false
		p.persist(p.Record())
	}
	p.armTimer()
}

// Observe feeds one progress report from the active backend
func (p *progressTracker) Observe(pos, dur float64) {
	p.position = pos
	if dur > 0 {
		p.duration = dur
	}
	p.dirty = true

	ratio := p.Ratio()
	if !p.approached && ratio >= p.threshold && ratio > 0 {
		p.approached = true
		p.log.Debug().Float64("ratio", ratio).Msg("Approaching end of media")
		p.approach()
	}
}

// Ratio returns position/duration, or 0 while duration is unknown
func (p *progressTracker) Ratio() float64 {
	if p.duration <= 0 {
		return 0
	}
	return p.position / p.duration
}

// Finished reports whether playback passed the completion threshold
func (p *progressTracker) Finished() bool {
	return p.Ratio() >= p.completion
}

// Record builds the progress record for the current position
func (p *progressTracker) Record() store.Record {
	return store.Record{
		MediaID:   p.mediaID,
		VideoID:   p.videoID,
		Position:  p.position,
		Duration:  p.duration,
		Ratio:     p.Ratio(),
		UpdatedAt: p.clock.Now(),
	}
}

// Stop cancels the persist timer. The controller performs the final
// write itself during teardown.
func (p *progressTracker) Stop() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
