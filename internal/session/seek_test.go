package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testSeekSettings() Settings {
	s := DefaultSettings()
	s.SeekStep = 10
	s.Watchdog = 300 * time.Millisecond
	s.CommitDelay = 600 * time.Millisecond
	s.SyncWindow = 4 * time.Second
	s.AccelThreshold = 3
	s.AccelFactor = 3
	return s
}

// newTestSeek builds a coordinator with a synchronous dispatcher and
// a commit recorder
func newTestSeek(t *testing.T, clock *fakeClock) (*seekCoordinator, *[]float64) {
	t.Helper()
	var commits []float64
	sc := newSeekCoordinator(clock, testSeekSettings(),
		func(f func()) { f() },
		func(pos float64) { commits = append(commits, pos) },
		zerolog.Nop(),
	)
	return sc, &commits
}

func TestSeek_SinglePulseCommitsOneStep(t *testing.T) {
	clock := newFakeClock()
	sc, commits := newTestSeek(t, clock)

	sc.Pulse(SeekForward, 100, 600)
	if len(*commits) != 0 {
		t.Fatalf("seek committed before watchdog fired")
	}

	clock.Advance(300 * time.Millisecond)

	if len(*commits) != 1 {
		t.Fatalf("expected exactly 1 commit, got %d", len(*commits))
	}
	if (*commits)[0] != 110 {
		t.Errorf("expected commit at 110, got %v", (*commits)[0])
	}
}

func TestSeek_PulseBurstCommitsOnce(t *testing.T) {
	clock := newFakeClock()
	sc, commits := newTestSeek(t, clock)

	// Three rapid pulses, each well inside the watchdog window
	sc.Pulse(SeekForward, 0, 600)
	clock.Advance(100 * time.Millisecond)
	sc.Pulse(SeekForward, 0, 600)
	clock.Advance(100 * time.Millisecond)
	sc.Pulse(SeekForward, 0, 600)

	if len(*commits) != 0 {
		t.Fatalf("seek committed mid-gesture")
	}

	clock.Advance(time.Second)

	if len(*commits) != 1 {
		t.Fatalf("expected exactly 1 commit, got %d", len(*commits))
	}
	if (*commits)[0] != 30 {
		t.Errorf("expected commit at 30, got %v", (*commits)[0])
	}
}

func TestSeek_AccelerationPastThreshold(t *testing.T) {
	clock := newFakeClock()
	sc, commits := newTestSeek(t, clock)

	// Threshold 3, factor 3: pulses 1-3 move 10s each, 4-5 move 30s
	for i := 0; i < 5; i++ {
		sc.Pulse(SeekForward, 0, 600)
		clock.Advance(50 * time.Millisecond)
	}

	if !sc.gesture.Accelerated {
		t.Error("expected gesture to be accelerated after threshold")
	}

	clock.Advance(time.Second)

	want := 10.0*3 + 30.0*2
	if len(*commits) != 1 || (*commits)[0] != want {
		t.Fatalf("expected single commit at %v, got %v", want, *commits)
	}
}

func TestSeek_DirectionFlipResetsAccumulation(t *testing.T) {
	clock := newFakeClock()
	sc, commits := newTestSeek(t, clock)

	for i := 0; i < 4; i++ {
		sc.Pulse(SeekForward, 100, 600)
		clock.Advance(50 * time.Millisecond)
	}
	// 10+10+10+30 = 60 forward so far; the flip clears step count and
	// acceleration, then subtracts a single plain step
	sc.Pulse(SeekBackward, 100, 600)

	g := sc.gesture
	if g.Accelerated {
		t.Error("expected acceleration flag cleared on direction flip")
	}
	if g.Steps != 1 {
		t.Errorf("expected step count reset to 1 after flip, got %d", g.Steps)
	}

	clock.Advance(time.Second)

	want := 100.0 + 60 - 10
	if len(*commits) != 1 || (*commits)[0] != want {
		t.Fatalf("expected single commit at %v, got %v", want, *commits)
	}
}

func TestSeek_ClampsToMediaBounds(t *testing.T) {
	clock := newFakeClock()
	sc, commits := newTestSeek(t, clock)

	sc.Pulse(SeekBackward, 5, 600)
	clock.Advance(time.Second)

	if len(*commits) != 1 || (*commits)[0] != 0 {
		t.Fatalf("expected commit clamped to 0, got %v", *commits)
	}

	// Release the display pin from the first commit so the next
	// gesture bases itself on the backend position
	sc.Observe(0)

	sc.Pulse(SeekForward, 595, 600)
	clock.Advance(time.Second)

	if len(*commits) != 2 || (*commits)[1] != 600 {
		t.Fatalf("expected commit clamped to duration, got %v", *commits)
	}
}

func TestSeek_DisplayPositionPinnedAfterCommit(t *testing.T) {
	clock := newFakeClock()
	sc, _ := newTestSeek(t, clock)

	sc.Pulse(SeekForward, 100, 600)
	if got := sc.DisplayPosition(100); got != 110 {
		t.Errorf("expected pending position 110 during gesture, got %v", got)
	}

	clock.Advance(300 * time.Millisecond)

	// Backend still reports the old position; display stays pinned
	if got := sc.DisplayPosition(100); got != 110 {
		t.Errorf("expected pinned position 110 after commit, got %v", got)
	}

	// Backend catches up within tolerance; pin releases
	sc.Observe(109)
	if got := sc.DisplayPosition(109); got != 109 {
		t.Errorf("expected live position after sync, got %v", got)
	}
}

func TestSeek_PinExpiresAfterSyncWindow(t *testing.T) {
	clock := newFakeClock()
	sc, _ := newTestSeek(t, clock)

	sc.Pulse(SeekForward, 100, 600)
	clock.Advance(300 * time.Millisecond)

	if got := sc.DisplayPosition(100); got != 110 {
		t.Fatalf("expected pinned position 110, got %v", got)
	}

	clock.Advance(4 * time.Second)

	if got := sc.DisplayPosition(100); got != 100 {
		t.Errorf("expected pin released after sync window, got %v", got)
	}
}

func TestSeek_NewGestureContinuesFromCommittedPosition(t *testing.T) {
	clock := newFakeClock()
	sc, commits := newTestSeek(t, clock)

	sc.Pulse(SeekForward, 100, 600)
	clock.Advance(300 * time.Millisecond) // commits 110, pin active

	// Backend hasn't caught up yet; the next gesture must build on
	// the committed value, not the stale backend position
	sc.Pulse(SeekForward, 100, 600)
	clock.Advance(300 * time.Millisecond)

	if len(*commits) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(*commits))
	}
	if (*commits)[1] != 120 {
		t.Errorf("expected second commit at 120, got %v", (*commits)[1])
	}
}

func TestSeek_CancelDiscardsGestureAndTimers(t *testing.T) {
	clock := newFakeClock()
	sc, commits := newTestSeek(t, clock)

	sc.Pulse(SeekForward, 100, 600)
	sc.Cancel()

	clock.Advance(10 * time.Second)

	if len(*commits) != 0 {
		t.Fatalf("cancelled gesture still committed: %v", *commits)
	}
	if sc.Active() {
		t.Error("expected no active gesture after cancel")
	}
	if n := clock.pendingTimers(); n != 0 {
		t.Errorf("expected no pending timers after cancel, got %d", n)
	}
}

func TestSeek_StaleTimerFireIsDropped(t *testing.T) {
	clock := newFakeClock()
	sc, commits := newTestSeek(t, clock)

	sc.Pulse(SeekForward, 100, 600)
	gen := sc.gen
	sc.Cancel()

	// A fire for the old generation must be ignored even if it
	// somehow races past the Stop
	sc.onTimer(gen)

	if len(*commits) != 0 {
		t.Fatalf("stale timer fire produced a commit: %v", *commits)
	}
}
