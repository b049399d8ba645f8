// Package reconnect re-establishes the Cortex connection after it drops.
package reconnect

import (
	"context"
	"time"

	"github.com/gaspardpetit/sfsb/internal/logx"
)

// Schedule defines the backoff durations for successive reconnect attempts.
var Schedule = []time.Duration{
	time.Second, time.Second, time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second, 15 * time.Second,
}

// Delay returns the backoff duration for the given attempt.
// Attempts beyond the length of the schedule default to 30 seconds.
func Delay(attempt int) time.Duration {
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 30 * time.Second
}

var delay = Delay

// Run invokes connect until it returns nil, ctx ends or, when enabled is
// false, after the first failure. connect reports whether a session was
// established before it failed; doing so restarts the backoff schedule.
func Run(ctx context.Context, enabled bool, connect func(context.Context) (bool, error)) error {
	attempt := 0
	for {
		connected, err := connect(ctx)
		if err == nil || !enabled || ctx.Err() != nil {
			return err
		}
		if connected {
			attempt = 0
		}
		d := delay(attempt)
		attempt++
		logx.Log.Warn().Dur("backoff", d).Int("attempt", attempt).Err(err).Msg("cortex connection lost; retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}
