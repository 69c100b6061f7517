package event

import (
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/go-gl/mathgl/mgl32"
)

// Scene commands queued by input handling and applied by the command system.

// MoveCamera displaces the active camera along its own axes. Direction is
// already scaled by motion speed and elapsed time.
type MoveCamera struct {
	Direction mgl32.Vec3
}

// RotateCamera rotates the active camera by pitch/yaw/roll in radians.
type RotateCamera struct {
	PitchYawRoll mgl32.Vec3
}

// DisplaceEntity moves an entity by an absolute offset.
type DisplaceEntity struct {
	Entity ecs.Entity
	Offset mgl32.Vec3
}
