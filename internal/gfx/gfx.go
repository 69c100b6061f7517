// Package gfx is the graphics layer the render loop draws through. A Context
// owns every GPU-side handle; models carry an opaque handle in Model.GPU
// between Upload and Release.
package gfx

import (
	"github.com/gilgamesh/engine/internal/model"
	"github.com/go-gl/mathgl/mgl32"
)

type LightKind int

const (
	LightPoint LightKind = iota
	LightSpot
)

// ShaderLight is a light resolved to world space, ready for the lighting
// pass.
type ShaderLight struct {
	Kind      LightKind
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Ambient   mgl32.Vec3

	Constant  float32
	Linear    float32
	Quadratic float32

	// Cutoff is the cosine of the spot half-angle.
	Cutoff       float32
	FadeExponent float32
}

// Intensity is the light's attenuated strength at p, in [0, 1].
func (l ShaderLight) Intensity(p mgl32.Vec3) float32 {
	d := p.Sub(l.Position).Len()
	den := l.Constant + l.Linear*d + l.Quadratic*d*d
	if den <= 0 {
		return 1
	}
	i := 1 / den
	if l.Kind == LightSpot && d > 0 {
		cos := p.Sub(l.Position).Normalize().Dot(l.Direction.Normalize())
		if cos < l.Cutoff {
			return 0
		}
	}
	return min(i, 1)
}

// Context is implemented by each rendering backend. Every method is called
// from the render goroutine only.
type Context interface {
	// Upload creates the GPU resources for m and stores the handle in m.GPU.
	Upload(m *model.Model) error
	// Release frees m's GPU resources and clears m.GPU.
	Release(m *model.Model)

	// UploadInstances replaces m's instance buffer.
	UploadInstances(m *model.Model, transforms []mgl32.Mat4)
	// PatchInstance rewrites one slot of m's instance buffer.
	PatchInstance(m *model.Model, index int, transform mgl32.Mat4)

	BeginFrame()
	SetLights(lights []ShaderLight)
	DrawInstanced(m *model.Model, view, projection mgl32.Mat4, count int)
	DrawOverlay(lines []string)
	Present()

	Size() (width, height int)
}
