package playback

import "time"

// Timer is a handle to a pending callback.
type Timer interface {
	// Stop prevents the callback from running if it has not started. It
	// reports whether the call stopped the timer.
	Stop() bool
}

// Clock schedules callbacks. Tests substitute a manually advanced clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns a [Clock] backed by [time.AfterFunc].
func SystemClock() Clock {
	return systemClock{}
}
