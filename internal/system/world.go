package system

import (
	"time"

	"github.com/tsom/server/internal/core/event"
	coresys "github.com/tsom/server/internal/core/system"
	"github.com/tsom/server/internal/world"
)

// EventSystem delivers the events emitted during the previous tick.
// Phase 1 (PreUpdate).
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// WorldSystem steps the simulation and replicates it. Phase 2 (Update).
type WorldSystem struct {
	world *world.World
}

func NewWorldSystem(w *world.World) *WorldSystem {
	return &WorldSystem{world: w}
}

func (s *WorldSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *WorldSystem) Update(dt time.Duration) {
	s.world.Tick(dt)
}

// Flusher pushes queued outgoing packets to the network.
type Flusher interface {
	Flush()
}

// OutputSystem sends everything the tick queued. Phase 3 (Output).
type OutputSystem struct {
	out Flusher
}

func NewOutputSystem(out Flusher) *OutputSystem {
	return &OutputSystem{out: out}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.out.Flush()
}
