package system

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TickCounter reports completed game loop ticks. Must be safe to call from
// another goroutine.
type TickCounter interface {
	Ticks() uint64
}

// Watchdog runs beside the game loop and calls onStall once when the tick
// counter stops advancing for longer than the timeout. It fires again only
// after the loop has made progress.
type Watchdog struct {
	ticks    TickCounter
	timeout  time.Duration
	interval time.Duration
	onStall  func(stalled time.Duration)
	log      *zap.Logger

	last       uint64
	lastChange time.Time
	fired      bool
}

func NewWatchdog(ticks TickCounter, timeout, interval time.Duration, onStall func(time.Duration), log *zap.Logger) *Watchdog {
	return &Watchdog{
		ticks:    ticks,
		timeout:  timeout,
		interval: interval,
		onStall:  onStall,
		log:      log,
	}
}

// Run checks the counter every interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	w.reset(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			w.check(now)
		}
	}
}

func (w *Watchdog) reset(now time.Time) {
	w.last = w.ticks.Ticks()
	w.lastChange = now
	w.fired = false
}

// check reports whether the stall callback fired on this call.
func (w *Watchdog) check(now time.Time) bool {
	if n := w.ticks.Ticks(); n != w.last {
		if w.fired {
			w.log.Info("game loop recovered", zap.Uint64("tick", n))
		}
		w.last = n
		w.lastChange = now
		w.fired = false
		return false
	}
	stalled := now.Sub(w.lastChange)
	if w.fired || stalled < w.timeout {
		return false
	}
	w.fired = true
	w.log.Error("game loop stalled",
		zap.Uint64("tick", w.last),
		zap.Duration("stalled", stalled),
	)
	if w.onStall != nil {
		w.onStall(stalled)
	}
	return true
}
