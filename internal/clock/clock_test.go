package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns a now func whose value the test controls.
func stepClock(start time.Time) (func() time.Time, func(time.Duration)) {
	cur := start
	return func() time.Time { return cur }, func(d time.Duration) { cur = cur.Add(d) }
}

func newTestSystem(server string, zone *time.Location) (*System, func(time.Duration), *int) {
	now, advance := stepClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	queries := 0
	c := NewSystem(zone, server, time.Minute)
	c.now = now
	c.start = now()
	c.query = func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		queries++
		return nil, errors.New("no network")
	}
	return c, advance, &queries
}

func TestSystemElapsedAndZone(t *testing.T) {
	zone := time.FixedZone("WIB", 7*3600)
	c, advance, _ := newTestSystem("", zone)

	assert.Equal(t, time.Duration(0), c.Elapsed())
	advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, c.Elapsed())

	h, m := c.HourMinute()
	assert.Equal(t, 7, h, "UTC midnight is 07:01 in +07:00")
	assert.Equal(t, 1, m)
}

func TestSystemSyncDisabled(t *testing.T) {
	c, _, queries := newTestSystem("", time.UTC)
	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 0, *queries)
}

func TestSystemSyncFailureKeepsOffset(t *testing.T) {
	c, advance, queries := newTestSystem("pool.ntp.org", time.UTC)

	c.query = func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		*queries++
		assert.Equal(t, "pool.ntp.org", host)
		assert.Equal(t, queryTimeout, opt.Timeout)
		ref := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		return &ntp.Response{
			ClockOffset:   3 * time.Second,
			Stratum:       2,
			Leap:          ntp.LeapNoWarning,
			Time:          ref,
			ReferenceTime: ref,
		}, nil
	}
	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 3*time.Second, c.Offset())
	h, _ := c.HourMinute()
	assert.Equal(t, 0, h)

	// Rate limited inside the interval.
	advance(30 * time.Second)
	c.Sync(context.Background())
	assert.Equal(t, 1, *queries)

	// Failure after the interval leaves the previous offset in place.
	before := c.Offset()
	c.query = func(string, ntp.QueryOptions) (*ntp.Response, error) {
		*queries++
		return nil, errors.New("timeout")
	}
	advance(31 * time.Second)
	assert.Error(t, c.Sync(context.Background()))
	assert.Equal(t, 2, *queries)
	assert.Equal(t, before, c.Offset())
}

func TestSystemSyncCancelled(t *testing.T) {
	c, _, queries := newTestSystem("pool.ntp.org", time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Sync(ctx), context.Canceled)
	assert.Equal(t, 0, *queries)
}

func TestFake(t *testing.T) {
	f := NewFake(time.Date(2026, 3, 1, 6, 59, 30, 0, time.UTC))
	f.Advance(30 * time.Second)

	assert.Equal(t, 30*time.Second, f.Elapsed())
	h, m := f.HourMinute()
	assert.Equal(t, 7, h)
	assert.Equal(t, 0, m)

	f.SetWall(time.Date(2026, 3, 1, 16, 30, 0, 0, time.UTC))
	assert.Equal(t, 30*time.Second, f.Elapsed(), "wall jump leaves elapsed alone")
	h, m = f.HourMinute()
	assert.Equal(t, 16, h)
	assert.Equal(t, 30, m)
}

var _ Source = (*System)(nil)
var _ Syncer = (*System)(nil)
var _ Source = (*Fake)(nil)
