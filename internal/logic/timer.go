package logic

import "time"

// Timer tracks when a periodic activity last ran, in elapsed time.
// A Timer with a non-positive interval is never due.
type Timer struct {
	Interval time.Duration
	last     time.Duration
}

// NewTimer creates a timer that last ran at elapsed zero.
func NewTimer(interval time.Duration) *Timer {
	return &Timer{Interval: interval}
}

// Due reports whether at least Interval has passed since the last run.
func (t *Timer) Due(now time.Duration) bool {
	if t.Interval <= 0 {
		return false
	}
	return now-t.last >= t.Interval
}

// Mark records a run at now.
func (t *Timer) Mark(now time.Duration) {
	t.last = now
}

// Last returns the elapsed timestamp of the last run.
func (t *Timer) Last() time.Duration {
	return t.last
}
