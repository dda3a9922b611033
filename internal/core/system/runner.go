package system

import (
	"sort"
	"sync/atomic"
	"time"
)

// Runner executes systems in phase order each tick. The tick counter is the
// only piece of loop state read from other goroutines.
type Runner struct {
	systems []System
	sorted  bool
	ticks   atomic.Uint64

	// OnOverrun, when set, is called after a tick that took longer than the
	// dt it was given.
	OnOverrun func(tick uint64, took, budget time.Duration)
	now       func() time.Time
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 8),
		now:     time.Now,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system once with dt and advances the tick counter.
func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	start := r.now()
	for _, s := range r.systems {
		s.Update(dt)
	}
	n := r.ticks.Add(1)
	if r.OnOverrun != nil {
		if took := r.now().Sub(start); took > dt {
			r.OnOverrun(n, took, dt)
		}
	}
}

// Ticks returns the number of completed ticks. Safe for concurrent use.
func (r *Runner) Ticks() uint64 {
	return r.ticks.Load()
}

func (r *Runner) ensureSorted() {
	if r.sorted {
		return
	}
	sort.SliceStable(r.systems, func(i, j int) bool {
		return r.systems[i].Phase() < r.systems[j].Phase()
	})
	r.sorted = true
}
