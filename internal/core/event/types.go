package event

import "github.com/tsom/server/internal/core/ecs"

type PlayerJoined struct {
	Name      string
	SessionID uint64
	Entity    ecs.EntityID
}

type PlayerLeft struct {
	Name      string
	SessionID uint64
}

type EntityDestroyed struct {
	Entity ecs.EntityID
	Class  string
}
