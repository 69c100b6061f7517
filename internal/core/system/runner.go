package system

import (
	"cmp"
	"slices"
	"time"
)

// PhaseStats is the accumulated cost of one phase.
type PhaseStats struct {
	Runs  int64
	Total time.Duration
	Max   time.Duration
}

// Mean is the average time per run.
func (s PhaseStats) Mean() time.Duration {
	if s.Runs == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Runs)
}

// Runner groups systems by phase. Systems within a phase run in registration
// order. Not safe for concurrent use; the update goroutine owns it.
type Runner struct {
	phases map[Phase][]System
	order  []Phase
	stats  map[Phase]*PhaseStats
	now    func() time.Time
}

func NewRunner() *Runner {
	return &Runner{
		phases: make(map[Phase][]System),
		stats:  make(map[Phase]*PhaseStats),
		now:    time.Now,
	}
}

func (r *Runner) Register(s System) {
	p := s.Phase()
	if _, ok := r.phases[p]; !ok {
		r.order = append(r.order, p)
		slices.SortFunc(r.order, cmp.Compare[Phase])
		r.stats[p] = &PhaseStats{}
	}
	r.phases[p] = append(r.phases[p], s)
}

// Step runs every step phase once, in phase order.
func (r *Runner) Step(dt time.Duration) {
	for _, p := range r.order {
		if p.InStep() {
			r.run(p, dt)
		}
	}
}

// RunPhase runs the systems of a single phase.
func (r *Runner) RunPhase(p Phase, dt time.Duration) {
	if _, ok := r.phases[p]; ok {
		r.run(p, dt)
	}
}

// Stats returns a copy of the timing collected for each registered phase.
func (r *Runner) Stats() map[Phase]PhaseStats {
	out := make(map[Phase]PhaseStats, len(r.stats))
	for p, s := range r.stats {
		out[p] = *s
	}
	return out
}

func (r *Runner) run(p Phase, dt time.Duration) {
	start := r.now()
	for _, s := range r.phases[p] {
		s.Update(dt)
	}
	elapsed := r.now().Sub(start)
	st := r.stats[p]
	st.Runs++
	st.Total += elapsed
	st.Max = max(st.Max, elapsed)
}
