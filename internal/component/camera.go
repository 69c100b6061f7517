package component

import (
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	cameraNear = 0.1
	cameraFar  = 1000.0
)

// Camera marks an entity as a viewpoint. FOV is vertical, in degrees.
type Camera struct {
	FOV float32
}

func (Camera) ComponentID() ecs.ComponentID { return "camera" }

// Project returns the perspective projection for a viewport.
func (c *Camera) Project(width, height int) mgl32.Mat4 {
	aspect := float32(1)
	if width > 0 && height > 0 {
		aspect = float32(width) / float32(height)
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FOV), aspect, cameraNear, cameraFar)
}
