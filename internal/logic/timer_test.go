package logic

import (
	"errors"
	"testing"
	"time"
)

func TestTimerDue(t *testing.T) {
	tm := NewTimer(10 * time.Second)

	if tm.Due(9999 * time.Millisecond) {
		t.Error("should not be due before interval")
	}
	if !tm.Due(10 * time.Second) {
		t.Error("should be due at exactly the interval")
	}

	tm.Mark(10 * time.Second)
	if tm.Last() != 10*time.Second {
		t.Errorf("Last: got %v", tm.Last())
	}
	if tm.Due(15 * time.Second) {
		t.Error("should not be due 5s after mark")
	}
	if !tm.Due(20 * time.Second) {
		t.Error("should be due 10s after mark")
	}
}

func TestTimerDisabled(t *testing.T) {
	tm := NewTimer(0)
	if tm.Due(time.Hour) {
		t.Error("zero interval timer should never be due")
	}
}

func TestErrMalformedMatchesTransport(t *testing.T) {
	if !errors.Is(ErrMalformedResponse, ErrTransport) {
		t.Error("malformed response should count as transport error")
	}
	if errors.Is(ErrSensorRead, ErrTransport) {
		t.Error("sensor error is not a transport error")
	}
}
