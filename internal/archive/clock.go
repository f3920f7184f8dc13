package archive

import (
	"context"
	"math/rand/v2"
	"time"
)

// Clock is the time source of the scheduler.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	Stop() bool
}

// Rand is the randomness source used by the pacing policy.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Int64N(n int64) int64
	IntN(n int) int
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type zonedClock struct {
	Clock
	loc *time.Location
}

// InLocation returns a Clock reporting the time of c in loc. Active hours and
// hour boundaries are computed from the hour of Now, so it must match the
// zone of the wall-clock ticks.
func InLocation(c Clock, loc *time.Location) Clock {
	if loc == nil {
		return c
	}
	return zonedClock{Clock: c, loc: loc}
}

func (c zonedClock) Now() time.Time { return c.Clock.Now().In(c.loc) }

// NewRand returns a PCG generator seeded from the given clock.
func NewRand(clock Clock) *rand.Rand {
	seed := uint64(clock.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
