package workflow

import (
	"math/rand"
	"time"

	"cardpress/internal/config"
)

// backoffPolicy computes the delay before a failed job becomes claimable
// again: initial * 2^(streak-1), capped at max, with ±20% jitter so a batch
// of failures does not retry in lockstep.
type backoffPolicy struct {
	initial time.Duration
	max     time.Duration
	jitter  func() float64
}

func backoffFromConfig(cfg *config.Config) backoffPolicy {
	return backoffPolicy{
		initial: time.Duration(cfg.Queue.BackoffInitialSeconds) * time.Second,
		max:     time.Duration(cfg.Queue.BackoffMaxSeconds) * time.Second,
		jitter:  rand.Float64,
	}
}

func (b backoffPolicy) delay(streak int) time.Duration {
	if streak < 1 {
		streak = 1
	}
	initial := b.initial
	if initial <= 0 {
		initial = time.Second
	}
	max := b.max
	if max < initial {
		max = initial
	}

	delay := initial
	for i := 1; i < streak; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}

	if b.jitter != nil {
		factor := 0.8 + 0.4*b.jitter()
		delay = time.Duration(float64(delay) * factor)
	}
	if delay > time.Duration(float64(max)*1.2) {
		delay = max
	}
	return delay
}
