package component

import (
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/go-gl/mathgl/mgl32"
)

// Velocity drives constant motion: Linear in units/s along world axes,
// Angular in radians/s as pitch/yaw/roll.
type Velocity struct {
	Linear  mgl32.Vec3
	Angular mgl32.Vec3
}

func (Velocity) ComponentID() ecs.ComponentID { return "velocity" }
