package renderer

import (
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/gilgamesh/engine/internal/gfx"
	"github.com/go-gl/mathgl/mgl32"
)

type CameraState struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Position   mgl32.Vec3
	Forward    mgl32.Vec3
}

// WorldState is the snapshot the simulation publishes for rendering. The
// renderer owns it once received; the simulation never touches it again.
type WorldState struct {
	Camera      *CameraState
	Generations map[ecs.EntityID]ecs.Generation
	Transforms  map[ecs.EntityID]mgl32.Mat4
	Lights      []gfx.ShaderLight
	// LightsVersion changes whenever the light set or a light changed, so a
	// dropped snapshot cannot hide a light update.
	LightsVersion uint64
	Entities      int
}

// Transform returns e's world matrix if e is still the live occupant of its
// slot.
func (w *WorldState) Transform(e ecs.Entity) (mgl32.Mat4, bool) {
	if g, ok := w.Generations[e.ID]; !ok || g != e.Generation {
		return mgl32.Mat4{}, false
	}
	m, ok := w.Transforms[e.ID]
	return m, ok
}
