package updater

import (
	"sync/atomic"
	"time"

	"github.com/gilgamesh/engine/internal/core/deaddrop"
	"github.com/gilgamesh/engine/internal/core/event"
	"github.com/gilgamesh/engine/internal/core/system"
	"github.com/gilgamesh/engine/internal/input"
	"github.com/gilgamesh/engine/internal/renderer"
	"go.uber.org/zap"
)

// Loop is the simulation loop. Events arrive on an unbounded queue from the
// render loop and are applied by an InputSystem the loop registers on the
// state's runner; snapshots leave through a DeadDrop.
type Loop struct {
	state   *GameState
	out     *deaddrop.DeadDrop[*renderer.WorldState]
	running *atomic.Bool
	acc     Accumulator
	log     *zap.Logger

	now  func() time.Time
	last time.Time

	steps     int64
	published int64
}

func NewLoop(
	state *GameState,
	events *event.Queue[input.Event],
	out *deaddrop.DeadDrop[*renderer.WorldState],
	running *atomic.Bool,
	log *zap.Logger,
) *Loop {
	l := &Loop{
		state:   state,
		out:     out,
		running: running,
		acc:     Accumulator{Interval: state.opts.Interval},
		log:     log.Named("updater"),
		now:     time.Now,
	}
	state.runner.Register(&InputSystem{state: state, events: events, running: running, log: l.log})
	return l
}

// Run steps the world until running is cleared, then clears it itself so the
// render loop stops too.
func (l *Loop) Run() error {
	defer l.running.Store(false)
	l.last = l.now()
	l.log.Info("update loop started", zap.Duration("interval", l.acc.Interval))

	for l.running.Load() {
		start := l.now()
		l.Iterate(start)
		if err := l.state.Err(); err != nil {
			l.log.Error("update loop failed", zap.Error(err))
			return err
		}
		if l.state.opts.CapFPS {
			if rest := l.acc.Interval - l.now().Sub(start); rest > 0 {
				time.Sleep(rest)
			}
		}
	}
	fields := []zap.Field{
		zap.Int64("steps", l.steps),
		zap.Int64("snapshots", l.published),
	}
	for p, st := range l.state.runner.Stats() {
		fields = append(fields, zap.Duration(p.String()+"_mean", st.Mean()), zap.Duration(p.String()+"_max", st.Max))
	}
	l.log.Info("update loop stopped", fields...)
	return nil
}

// Iterate runs the steps owed up to now. Once the lag exceeded the interval
// it drains pending events and publishes one snapshot; it reports whether it
// did.
func (l *Loop) Iterate(now time.Time) bool {
	dt := now.Sub(l.last)
	l.last = now

	caughtUp := l.acc.Advance(dt, func(step time.Duration) {
		l.state.Step(step)
		l.steps++
	})
	if !caughtUp {
		return false
	}
	l.state.runner.RunPhase(system.PhaseInput, l.acc.Interval)
	l.out.Send(l.state.Snapshot())
	l.published++
	return true
}

// Steps is the number of fixed steps run so far.
func (l *Loop) Steps() int64 { return l.steps }
