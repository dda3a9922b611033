package system

import (
	"github.com/tsom/server/internal/core/ecs"
	"github.com/tsom/server/internal/core/event"
)

// ScriptHooks is the scripting side of the player lifecycle.
type ScriptHooks interface {
	OnPlayerJoin(name string, id ecs.EntityID)
	OnPlayerLeave(name string)
}

// SubscribeScriptHooks forwards join and leave events to scripts. Events
// arrive one tick after they happen, in the PreUpdate phase.
func SubscribeScriptHooks(bus *event.Bus, hooks ScriptHooks) {
	event.Subscribe(bus, func(e event.PlayerJoined) { hooks.OnPlayerJoin(e.Name, e.Entity) })
	event.Subscribe(bus, func(e event.PlayerLeft) { hooks.OnPlayerLeave(e.Name) })
}
