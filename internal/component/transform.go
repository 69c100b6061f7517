package component

import (
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/go-gl/mathgl/mgl32"
)

// Transform is an entity's local placement. Dirty is set by every mutator and
// cleared by the transform system once the world matrix is recomputed.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
	Dirty    bool
}

func (Transform) ComponentID() ecs.ComponentID { return "transform" }

// NewTransform builds a transform from pitch/yaw/roll (radians) and a position.
func NewTransform(pitchYawRoll, position mgl32.Vec3) Transform {
	return Transform{
		Position: position,
		Rotation: mgl32.AnglesToQuat(pitchYawRoll.X(), pitchYawRoll.Y(), pitchYawRoll.Z(), mgl32.XYZ),
		Scale:    mgl32.Vec3{1, 1, 1},
		Dirty:    true,
	}
}

// Matrix is translate * rotate * scale.
func (t *Transform) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).
		Mul4(t.Rotation.Mat4()).
		Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

// PointOfView is the view matrix of an observer placed at this transform.
func (t *Transform) PointOfView() mgl32.Mat4 {
	return t.Rotation.Inverse().Mat4().
		Mul4(mgl32.Translate3D(-t.Position.X(), -t.Position.Y(), -t.Position.Z()))
}

// Translate moves along world axes.
func (t *Transform) Translate(offset mgl32.Vec3) {
	t.Position = t.Position.Add(offset)
	t.Dirty = true
}

// DisplaceBy moves along the transform's own axes.
func (t *Transform) DisplaceBy(offset mgl32.Vec3) {
	t.Position = t.Position.Add(t.Rotation.Rotate(offset))
	t.Dirty = true
}

// Rotate applies pitch/yaw/roll (radians) in local space.
func (t *Transform) Rotate(pitchYawRoll mgl32.Vec3) {
	delta := mgl32.AnglesToQuat(pitchYawRoll.X(), pitchYawRoll.Y(), pitchYawRoll.Z(), mgl32.XYZ)
	t.Rotation = t.Rotation.Mul(delta).Normalize()
	t.Dirty = true
}

// Forward is the direction the transform faces (-Z in local space).
func (t *Transform) Forward() mgl32.Vec3 {
	return t.Rotation.Rotate(mgl32.Vec3{0, 0, -1})
}
