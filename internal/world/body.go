package world

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Transform is the replicated placement of an entity.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

// RigidBody is the physics capability an entity may carry. Collision and
// dynamics live outside this package; the world only asks a body to move
// its transform forward once per tick.
type RigidBody interface {
	Integrate(dt time.Duration, tr *Transform)
}

// Body is the component wrapper stored per entity.
type Body struct {
	RigidBody
}

// KinematicBody moves at a set velocity and ignores forces.
type KinematicBody struct {
	Velocity mgl32.Vec3
}

func (b *KinematicBody) Integrate(dt time.Duration, tr *Transform) {
	tr.Position = tr.Position.Add(b.Velocity.Mul(float32(dt.Seconds())))
}
