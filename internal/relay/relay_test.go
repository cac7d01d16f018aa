package relay

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
)

var wall = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

func newTestController(t *testing.T) (*Controller, *gpio.FakePin) {
	t.Helper()
	pin := gpio.NewFakePin()
	c := New(pin, DefaultMaxOn, func() time.Time { return wall })
	n := 0
	c.newID = func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
	require.NoError(t, c.Init())
	pin.Writes = nil
	return c, pin
}

func TestInitDrivesOff(t *testing.T) {
	pin := gpio.NewFakePin()
	c := New(pin, 0, nil)
	require.NoError(t, c.Init())
	assert.Equal(t, []gpio.Level{gpio.Off}, pin.Writes)
	assert.False(t, c.Active())
	assert.Equal(t, DefaultMaxOn, c.MaxOn(), "non-positive max-on falls back to default")
}

func TestTriggerActivates(t *testing.T) {
	c, pin := newTestController(t)

	ev, err := c.Trigger(5*time.Second, logic.ReasonSchedule)
	require.NoError(t, err)
	require.NotNil(t, ev)

	assert.Equal(t, logic.EventPumpOn, ev.Type)
	assert.Equal(t, logic.ReasonSchedule, ev.Reason)
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, wall, ev.Timestamp)
	assert.Equal(t, -1, ev.Moisture)

	st := c.State()
	assert.True(t, st.Active)
	assert.Equal(t, 5*time.Second, st.Since)
	assert.Equal(t, gpio.On, pin.Level)
}

func TestTriggerTwiceKeepsActivationTime(t *testing.T) {
	c, pin := newTestController(t)

	_, err := c.Trigger(5*time.Second, logic.ReasonSchedule)
	require.NoError(t, err)

	ev, err := c.Trigger(30*time.Second, logic.ReasonSchedule)
	require.NoError(t, err)
	assert.Nil(t, ev, "re-trigger must not emit an event")

	st := c.State()
	assert.Equal(t, 5*time.Second, st.Since, "re-trigger must not reset the on-timer")
	assert.Equal(t, "run-1", st.RunID)
	assert.Len(t, pin.Writes, 1, "re-trigger must not touch the pin")
}

func TestDeactivate(t *testing.T) {
	c, pin := newTestController(t)
	c.Trigger(5*time.Second, logic.ReasonThreshold)

	ev, err := c.Deactivate(25*time.Second, logic.ReasonThreshold)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, logic.EventPumpOff, ev.Type)
	assert.Equal(t, 20*time.Second, ev.OnFor)
	assert.Equal(t, "run-1", ev.RunID)

	assert.False(t, c.Active())
	assert.Equal(t, gpio.Off, pin.Level)
}

func TestDeactivateIdempotent(t *testing.T) {
	c, pin := newTestController(t)

	ev, err := c.Deactivate(time.Second, logic.ReasonShutdown)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, []gpio.Level{gpio.Off}, pin.Writes, "idle deactivate still drives the pin off")
	assert.False(t, c.Active())
}

func TestCutoffAtMaxOn(t *testing.T) {
	c, _ := newTestController(t)
	c.Trigger(10*time.Second, logic.ReasonSchedule)

	ev, err := c.CheckCutoff(10*time.Second + 59999*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.True(t, c.Active(), "still active 1ms before cutoff")

	ev, err = c.CheckCutoff(70 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, logic.ReasonCutoff, ev.Reason)
	assert.Equal(t, 60*time.Second, ev.OnFor)
	assert.False(t, c.Active())
}

func TestCutoffIdleNoop(t *testing.T) {
	c, pin := newTestController(t)
	ev, err := c.CheckCutoff(time.Hour)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Empty(t, pin.Writes)
}

func TestTriggerPinErrorStaysIdle(t *testing.T) {
	c, pin := newTestController(t)
	pin.SetError = errors.New("line busy")

	ev, err := c.Trigger(time.Second, logic.ReasonSchedule)
	assert.Error(t, err)
	assert.Nil(t, ev)
	assert.False(t, c.Active())
}

func TestDeactivatePinErrorStaysActive(t *testing.T) {
	c, pin := newTestController(t)
	c.Trigger(time.Second, logic.ReasonSchedule)
	pin.SetError = errors.New("line busy")

	_, err := c.CheckCutoff(61 * time.Second)
	assert.Error(t, err)
	assert.True(t, c.Active(), "failed deactivate keeps state so the next tick retries")

	pin.SetError = nil
	ev, err := c.CheckCutoff(62 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.False(t, c.Active())
}

func TestNewRunIDPerActivation(t *testing.T) {
	c, _ := newTestController(t)
	on1, _ := c.Trigger(0, logic.ReasonSchedule)
	c.Deactivate(time.Second, logic.ReasonThreshold)
	on2, _ := c.Trigger(2*time.Second, logic.ReasonThreshold)
	assert.NotEqual(t, on1.RunID, on2.RunID)
}

func TestConcurrentStateReads(t *testing.T) {
	c, _ := newTestController(t)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			now := time.Duration(i) * time.Second
			c.Trigger(now, logic.ReasonThreshold)
			c.CheckCutoff(now)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = c.State()
		}
	}()

	wg.Wait()
}
