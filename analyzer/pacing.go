package analyzer

import (
	"context"
	"time"
)

const (
	DefaultChannelDelay  = 300 * time.Millisecond
	DefaultOccupantDelay = 200 * time.Millisecond
)

// SleepFunc blocks for d, returning early with ctx.Err() if ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacing is the fixed idle time inserted between outbound crawl requests to
// stay under the upstream's undocumented rate limit. There is no backoff: the
// delays are constant.
type Pacing struct {
	// ChannelDelay follows every channel iteration, the last one included.
	ChannelDelay time.Duration
	// OccupantDelay separates consecutive occupant profile lookups.
	OccupantDelay time.Duration
	// Sleep performs the wait. nil means Sleep.
	Sleep SleepFunc
}

// DefaultPacing returns the standard 300ms/200ms pacing.
func DefaultPacing() Pacing {
	return Pacing{ChannelDelay: DefaultChannelDelay, OccupantDelay: DefaultOccupantDelay, Sleep: Sleep}
}

// NoPacing never waits. Intended for tests and local fakes.
func NoPacing() Pacing {
	return Pacing{Sleep: func(context.Context, time.Duration) error { return nil }}
}

func (p Pacing) wait(ctx context.Context, d time.Duration) error {
	if p.Sleep == nil {
		return Sleep(ctx, d)
	}
	return p.Sleep(ctx, d)
}

func (p Pacing) afterChannel(ctx context.Context) error { return p.wait(ctx, p.ChannelDelay) }

func (p Pacing) betweenOccupants(ctx context.Context) error { return p.wait(ctx, p.OccupantDelay) }

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
