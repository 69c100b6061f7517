package component

import (
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/go-gl/mathgl/mgl32"
)

type LightKind int

const (
	LightPoint LightKind = iota
	LightSpot
)

func (k LightKind) String() string {
	if k == LightSpot {
		return "spot"
	}
	return "point"
}

type Attenuation struct {
	Constant  float32
	Linear    float32
	Quadratic float32
}

// Light is a point or spot light. Cutoff and FadeExponent apply to spots.
type Light struct {
	Kind         LightKind
	Color        mgl32.Vec3
	Ambient      mgl32.Vec3
	Attenuation  Attenuation
	Cutoff       float32
	FadeExponent float32
}

func (Light) ComponentID() ecs.ComponentID { return "light" }
