package realtime

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/aura-webinar/liveqa/config"
)

// ReconnectPolicy decides whether and when a dropped channel is dialled again.
// The zero value never reconnects, which is how the classroom pages behave.
type ReconnectPolicy struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int // consecutive failures before giving up; 0 = unlimited
}

// ReconnectPolicyFromConfig maps the RECONNECT_* settings.
func ReconnectPolicyFromConfig(c config.ReconnectConfig) ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:         c.Enabled,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		MaxAttempts:     c.MaxAttempts,
	}
}

func (p ReconnectPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.Reset()
	return b
}

// next returns the delay before the given reconnect attempt (1-based), or
// false when the policy gives up.
func (p ReconnectPolicy) next(b *backoff.ExponentialBackOff, attempt int) (time.Duration, bool) {
	if !p.Enabled {
		return 0, false
	}
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return 0, false
	}
	d := b.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

// ResyncFunc fetches authoritative state after a channel (re)opens. It runs
// off the event loop; the returned apply func runs on the loop before any
// frame received since the open is dispatched.
type ResyncFunc func(ctx context.Context) (apply func(), err error)
