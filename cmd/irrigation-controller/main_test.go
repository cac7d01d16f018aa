package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/irrigation-controller/internal/logger"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/sensor"
	"github.com/sweeney/irrigation-controller/internal/status"
)

// fakeClock yields start, start+step, start+2*step, ... on successive calls.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type fakeLoop struct {
	ticks       int
	shutdowns   int
	shutdownErr error
}

func (f *fakeLoop) Tick(ctx context.Context) { f.ticks++ }

func (f *fakeLoop) Shutdown() error {
	f.shutdowns++
	return f.shutdownErr
}

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func drive(t *testing.T, l loop, pub mqtt.Publisher, heartbeat time.Duration, clock func() time.Time, nTicks int, s os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	tracker := status.NewTracker(t0, status.Config{DeviceID: "XE23214"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(l, pub, tracker, heartbeat, clock, tick, sig, logger.Nop())
	}()
	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- s
	return <-errCh
}

func TestRunLoopTicksUntilSignal(t *testing.T) {
	l := &fakeLoop{}
	pub := mqtt.NewFakePublisher()

	err := drive(t, l, pub, 0, fakeClock(t0, 100*time.Millisecond), 25, syscall.SIGTERM)
	require.NoError(t, err)

	assert.Equal(t, 25, l.ticks)
	assert.Equal(t, 1, l.shutdowns)
	assert.Equal(t, []string{mqtt.EventShutdown}, pub.SystemEventNames(), "heartbeat disabled")

	ev := pub.SystemEvents[0]
	assert.Equal(t, "SIGTERM", ev.Reason)
	assert.True(t, ev.Retained)

	var st map[string]interface{}
	require.NoError(t, json.Unmarshal(ev.Status, &st))
	assert.Equal(t, "XE23214", st["device"])
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	require.NoError(t, drive(t, &fakeLoop{}, pub, 0, fakeClock(t0, time.Second), 0, syscall.SIGINT))
	require.Len(t, pub.SystemEvents, 1)
	assert.Equal(t, "SIGINT", pub.SystemEvents[0].Reason)
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	err := drive(t, &fakeLoop{}, pub, 15*time.Minute, fakeClock(t0, 5*time.Minute), 6, syscall.SIGTERM)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{mqtt.EventHeartbeat, mqtt.EventHeartbeat, mqtt.EventShutdown},
		pub.SystemEventNames())
	assert.Equal(t, t0.Add(15*time.Minute), pub.SystemEvents[0].Timestamp)
	assert.Equal(t, t0.Add(30*time.Minute), pub.SystemEvents[1].Timestamp)
	assert.False(t, pub.SystemEvents[0].Retained)
	assert.NotEmpty(t, pub.SystemEvents[0].Status)
}

func TestRunLoopShutdownErrorStillReports(t *testing.T) {
	l := &fakeLoop{shutdownErr: errors.New("line busy")}
	pub := mqtt.NewFakePublisher()

	require.NoError(t, drive(t, l, pub, 0, fakeClock(t0, time.Second), 3, syscall.SIGTERM))
	assert.Equal(t, 1, l.shutdowns)
	assert.Equal(t, []string{mqtt.EventShutdown}, pub.SystemEventNames())
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	l := &fakeLoop{}
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")

	err := drive(t, l, pub, time.Minute, fakeClock(t0, time.Minute), 5, syscall.SIGTERM)
	require.NoError(t, err)
	assert.Equal(t, 5, l.ticks)
}

func TestRunLoopWithoutPublisher(t *testing.T) {
	l := &fakeLoop{}
	require.NoError(t, drive(t, l, nil, time.Minute, fakeClock(t0, time.Minute), 3, syscall.SIGTERM))
	assert.Equal(t, 3, l.ticks)
	assert.Equal(t, 1, l.shutdowns)
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

func TestPrintReadings(t *testing.T) {
	var buf bytes.Buffer
	r := sensor.NewFakeReader(sensor.Sample{Temperature: 27.46, Humidity: 61, SoilRaw: 512})
	require.NoError(t, printReadings(&buf, r))
	assert.Equal(t, "temperature: 27.5 C\nhumidity: 61.0 %\nsoil: raw 512, moisture 50%\n", buf.String())
}

func TestPrintReadingsErrors(t *testing.T) {
	var buf bytes.Buffer
	r := sensor.NewFakeReader(sensor.Sample{SoilRaw: 2000})
	r.ClimateError = fmt.Errorf("%w: dht timeout", logic.ErrSensorRead)

	require.NoError(t, printReadings(&buf, r))
	out := buf.String()
	assert.Contains(t, out, "temperature: error: sensor read error: dht timeout")
	assert.Contains(t, out, "humidity: error:")
	assert.Contains(t, out, "soil: error: sensor read error: soil raw 2000")
}
