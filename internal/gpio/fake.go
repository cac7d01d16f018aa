package gpio

// FakePin is a test double that records every level written to it.
type FakePin struct {
	// Writes contains every level passed to Set, in order.
	Writes []Level

	// Level is the last level successfully written.
	Level Level

	// SetError, if set, is returned by Set and the level is not recorded.
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakePin creates a FakePin that starts Off.
func NewFakePin() *FakePin {
	return &FakePin{}
}

// Set records the level.
func (f *FakePin) Set(level Level) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Writes = append(f.Writes, level)
	f.Level = level
	return nil
}

// Close drives the fake off and marks it closed.
func (f *FakePin) Close() error {
	f.Level = Off
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *FakePin) Reset() {
	f.Writes = nil
	f.Level = Off
	f.Closed = false
	f.SetError = nil
}
