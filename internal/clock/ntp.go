// Package clock provides the wall clock used to timestamp connection
// sessions, optionally corrected by an NTP offset.
package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

const (
	DefaultPool      = "pool.ntp.org"
	defaultInterval  = 10 * time.Minute
	defaultThreshold = 500 * time.Millisecond
)

// Phase is the outcome of the last NTP check.
type Phase uint8

const (
	Unchecked Phase = iota + 1
	Healthy
	UnhealthyOffset
	Failed
)

func (p Phase) String() string {
	switch p {
	case Unchecked:
		return "unchecked"
	case Healthy:
		return "healthy"
	case UnhealthyOffset:
		return "unhealthy_offset"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the result of the most recent NTP check.
type Status struct {
	Offset    time.Duration
	Phase     Phase
	Error     string
	CheckedAt time.Time
}

// QueryFunc returns the local clock's offset from the server.
type QueryFunc func(server string) (time.Duration, error)

func queryNTP(server string) (time.Duration, error) {
	resp, err := ntp.Query(server)
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

// Option configures an NTP clock.
type Option func(*NTP)

// WithQuery replaces the NTP query, for tests.
func WithQuery(q QueryFunc) Option { return func(c *NTP) { c.query = q } }

// WithBase replaces the underlying system clock.
func WithBase(now func() time.Time) Option { return func(c *NTP) { c.base = now } }

// WithInterval sets how often Run re-checks the offset.
func WithInterval(d time.Duration) Option { return func(c *NTP) { c.interval = d } }

// NTP is a clock that adds the last measured NTP offset to the system time.
// Until the first successful check it reports system time.
type NTP struct {
	server    string
	interval  time.Duration
	threshold time.Duration
	base      func() time.Time
	query     QueryFunc

	mu     sync.RWMutex
	status Status
}

// NewNTP creates an NTP-corrected clock for server. An empty server uses
// pool.ntp.org.
func NewNTP(server string, opts ...Option) *NTP {
	if server == "" {
		server = DefaultPool
	}
	c := &NTP{
		server:    server,
		interval:  defaultInterval,
		threshold: defaultThreshold,
		base:      time.Now,
		query:     queryNTP,
		status:    Status{Phase: Unchecked},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Now returns the corrected wall time.
func (c *NTP) Now() time.Time {
	c.mu.RLock()
	offset := c.status.Offset
	c.mu.RUnlock()
	return c.base().Add(offset)
}

// Status returns the last check result.
func (c *NTP) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Sync queries the server once. A failed query keeps the previous offset.
func (c *NTP) Sync() Status {
	offset, err := c.query(c.server)
	now := c.base()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.status = Status{Offset: c.status.Offset, Phase: Failed, Error: err.Error(), CheckedAt: now}
		return c.status
	}
	phase := UnhealthyOffset
	if offset.Abs() < c.threshold {
		phase = Healthy
	}
	c.status = Status{Offset: offset, Phase: phase, CheckedAt: now}
	return c.status
}

// Run syncs immediately and then on every interval until ctx is done.
func (c *NTP) Run(ctx context.Context) {
	log := slog.With("component", "ntp", "server", c.server)
	report := func(st Status) {
		switch st.Phase {
		case Failed:
			log.Debug("ntp check failed", "err", st.Error)
		case UnhealthyOffset:
			log.Warn("system clock is off", "offset", st.Offset)
		}
	}
	report(c.Sync())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report(c.Sync())
		}
	}
}
