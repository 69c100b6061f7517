package updater

import "time"

// Accumulator turns variable wall-clock deltas into fixed simulation steps.
type Accumulator struct {
	Interval time.Duration
	lag      time.Duration
}

// Advance adds dt to the lag and runs step while the lag exceeds the
// interval. It reports whether the lag exceeded the interval on entry, which
// is when events are drained and a snapshot is published.
func (a *Accumulator) Advance(dt time.Duration, step func(time.Duration)) bool {
	a.lag += dt
	caughtUp := a.lag > a.Interval
	for a.lag > a.Interval {
		step(min(a.lag, a.Interval))
		a.lag -= a.Interval
	}
	return caughtUp
}

// Lag is the simulated time not yet consumed by a step.
func (a *Accumulator) Lag() time.Duration { return a.lag }
