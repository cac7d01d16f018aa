// Package clock supplies elapsed time and wall-clock time of day.
package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

// Source is the controller's only view of time.
type Source interface {
	// Elapsed is a monotonic counter since the source was created.
	Elapsed() time.Duration

	// HourMinute is the current local time of day.
	HourMinute() (hour, minute int)

	// Now is the current wall-clock time in the local zone.
	Now() time.Time
}

// Syncer is implemented by sources that correct themselves against a
// network time server. Sync must be cheap when no sync is due.
type Syncer interface {
	Sync(ctx context.Context) error
}

// DefaultSyncInterval matches the usual NTP client refresh period.
const DefaultSyncInterval = 60 * time.Second

const queryTimeout = 5 * time.Second

type queryFunc func(host string, opt ntp.QueryOptions) (*ntp.Response, error)

// System reads the host clock and applies an NTP-measured offset.
// A failed sync keeps the previous offset.
type System struct {
	zone     *time.Location
	server   string
	interval time.Duration

	now   func() time.Time
	query queryFunc
	start time.Time

	mu       sync.RWMutex
	offset   time.Duration
	synced   bool
	lastSync time.Time
}

// NewSystem creates a clock reporting time of day in zone. An empty server
// disables NTP and trusts the host clock as is.
func NewSystem(zone *time.Location, server string, interval time.Duration) *System {
	if zone == nil {
		zone = time.Local
	}
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	c := &System{
		zone:     zone,
		server:   server,
		interval: interval,
		now:      time.Now,
		query:    ntp.QueryWithOptions,
	}
	c.start = c.now()
	return c
}

// Elapsed returns monotonic time since creation.
func (c *System) Elapsed() time.Duration {
	return c.now().Sub(c.start)
}

// Now returns the corrected wall-clock time in the configured zone.
func (c *System) Now() time.Time {
	c.mu.RLock()
	off := c.offset
	c.mu.RUnlock()
	return c.now().Add(off).In(c.zone)
}

// HourMinute returns the corrected local time of day.
func (c *System) HourMinute() (int, int) {
	t := c.Now()
	return t.Hour(), t.Minute()
}

// Offset returns the last measured correction.
func (c *System) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Sync queries the NTP server if the sync interval has passed. At most one
// query is attempted per interval, successful or not.
func (c *System) Sync(ctx context.Context) error {
	if c.server == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := c.now()
	c.mu.Lock()
	if c.synced && now.Sub(c.lastSync) < c.interval {
		c.mu.Unlock()
		return nil
	}
	c.synced = true
	c.lastSync = now
	c.mu.Unlock()

	resp, err := c.query(c.server, ntp.QueryOptions{Timeout: queryTimeout})
	if err != nil {
		return fmt.Errorf("ntp query %s: %w", c.server, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("ntp response from %s: %w", c.server, err)
	}

	c.mu.Lock()
	c.offset = resp.ClockOffset
	c.mu.Unlock()
	return nil
}
