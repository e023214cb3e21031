package session

import "time"

// Timer is a cancellable one-shot timer handle
type Timer interface {
	// Stop prevents the timer from firing. Returns false if it
	// already fired or was stopped.
	Stop() bool
}

// Clock abstracts time for the session state machines so tests can
// advance virtual time instead of sleeping on real timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns a Clock backed by the time package
func RealClock() Clock { return realClock{} }
