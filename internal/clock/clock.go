package clock

import "time"

// Clock is the time source injected into services. All implementations
// return UTC so interval comparisons never depend on server locale.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns the wall clock.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a test clock pinned to one instant. Advance moves it forward,
// which lets tests cross cancellation deadlines and idempotency windows
// without sleeping.
type Fixed struct {
	now time.Time
}

// NewFixed returns a clock pinned to t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

func (f *Fixed) Now() time.Time {
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}
