package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type upNextShown struct {
	state  UpNextState
	target *UpNextTarget
}

func newTestUpNext(t *testing.T, clock *fakeClock, target *UpNextTarget, budget *retryBudget) (*upNextScheduler, *[]upNextShown) {
	t.Helper()
	settings := DefaultSettings()
	settings.UpNextInactivity = 12 * time.Second

	var shown []upNextShown
	u := newUpNextScheduler(clock, settings, target, budget,
		func(f func()) { f() },
		func(state UpNextState, target *UpNextTarget) {
			shown = append(shown, upNextShown{state, target})
		},
		zerolog.Nop(),
	)
	return u, &shown
}

func TestUpNext_TriggerSurfacesPromptOnce(t *testing.T) {
	clock := newFakeClock()
	target := &UpNextTarget{MediaID: "m2", VideoID: "e2"}
	u, shown := newTestUpNext(t, clock, target, &retryBudget{max: 3})

	u.Trigger()
	u.Trigger() // repeated signal ignored

	if len(*shown) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(*shown))
	}
	if (*shown)[0].state != UpNextActive {
		t.Errorf("expected active prompt, got %v", (*shown)[0].state)
	}
}

func TestUpNext_NoPromptWithoutTarget(t *testing.T) {
	clock := newFakeClock()
	u, shown := newTestUpNext(t, clock, nil, &retryBudget{max: 3})

	u.Trigger()

	if len(*shown) != 0 {
		t.Fatalf("prompt surfaced without a target: %d", len(*shown))
	}
	if u.State() != UpNextHidden {
		t.Errorf("expected hidden state, got %v", u.State())
	}
}

func TestUpNext_DemotedAfterInactivity(t *testing.T) {
	clock := newFakeClock()
	target := &UpNextTarget{MediaID: "m2", VideoID: "e2"}
	u, shown := newTestUpNext(t, clock, target, &retryBudget{max: 3})

	u.Trigger()
	clock.Advance(12 * time.Second)

	if len(*shown) != 2 {
		t.Fatalf("expected prompt + demotion, got %d transitions", len(*shown))
	}
	if (*shown)[1].state != UpNextInactive {
		t.Errorf("expected inactive state after delay, got %v", (*shown)[1].state)
	}
	// Demoted but still actionable
	if u.Target() == nil {
		t.Error("expected target to remain actionable after demotion")
	}
}

func TestUpNext_AutoPlayDrawsFromSharedBudget(t *testing.T) {
	clock := newFakeClock()
	target := &UpNextTarget{MediaID: "m2", VideoID: "e2"}
	budget := &retryBudget{max: 2}
	u, _ := newTestUpNext(t, clock, target, budget)

	// Backend fallback already spent one attempt
	if !budget.tryConsume() {
		t.Fatal("budget should allow the first attempt")
	}

	if !u.ConsumeAutoPlay() {
		t.Fatal("expected auto-play within budget")
	}
	if u.ConsumeAutoPlay() {
		t.Error("expected auto-play denied once the shared budget is spent")
	}
}

func TestUpNext_CancelStopsTimerAndHides(t *testing.T) {
	clock := newFakeClock()
	target := &UpNextTarget{MediaID: "m2", VideoID: "e2"}
	u, shown := newTestUpNext(t, clock, target, &retryBudget{max: 3})

	u.Trigger()
	u.Cancel()
	clock.Advance(time.Minute)

	if len(*shown) != 1 {
		t.Fatalf("demotion fired after cancel: %d transitions", len(*shown))
	}
	if u.State() != UpNextHidden {
		t.Errorf("expected hidden state after cancel, got %v", u.State())
	}
	if n := clock.pendingTimers(); n != 0 {
		t.Errorf("expected no pending timers after cancel, got %d", n)
	}
}
