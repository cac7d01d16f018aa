package clock

import "time"

// Fake is a manually advanced clock for tests. Not safe for concurrent use.
type Fake struct {
	elapsed time.Duration
	wall    time.Time
}

// NewFake creates a Fake with zero elapsed time at the given wall time.
func NewFake(wall time.Time) *Fake {
	return &Fake{wall: wall}
}

// Advance moves both elapsed and wall time forward.
func (f *Fake) Advance(d time.Duration) {
	f.elapsed += d
	f.wall = f.wall.Add(d)
}

// SetWall jumps the wall clock without touching elapsed time.
func (f *Fake) SetWall(t time.Time) {
	f.wall = t
}

// Elapsed returns the scripted elapsed time.
func (f *Fake) Elapsed() time.Duration { return f.elapsed }

// Now returns the scripted wall time.
func (f *Fake) Now() time.Time { return f.wall }

// HourMinute returns the scripted time of day.
func (f *Fake) HourMinute() (int, int) { return f.wall.Hour(), f.wall.Minute() }
