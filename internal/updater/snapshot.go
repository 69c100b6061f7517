package updater

import (
	"maps"

	"github.com/gilgamesh/engine/internal/component"
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/gilgamesh/engine/internal/gfx"
	"github.com/gilgamesh/engine/internal/renderer"
	"github.com/go-gl/mathgl/mgl32"
)

// Snapshot copies what the renderer needs out of the world.
func (g *GameState) Snapshot() *renderer.WorldState {
	ws := &renderer.WorldState{
		Generations:   g.entities.Generations(),
		Transforms:    maps.Clone(g.worlds),
		LightsVersion: g.lightsVersion,
		Entities:      g.entities.LiveCount(),
	}
	if ws.Transforms == nil {
		ws.Transforms = make(map[ecs.EntityID]mgl32.Mat4)
	}
	if cam := g.cameraState(); cam != nil {
		ws.Camera = cam
	}

	for _, e := range g.lights {
		if len(ws.Lights) == g.opts.MaxLights {
			break
		}
		l, ok := ecs.GetComponent[component.Light](g.entities, e)
		if !ok {
			continue
		}
		world, ok := g.worlds[e.ID]
		if !ok {
			tr, has := ecs.GetComponent[component.Transform](g.entities, e)
			if !has {
				continue
			}
			world = tr.Matrix()
		}
		ws.Lights = append(ws.Lights, shaderLight(l, world))
	}
	return ws
}

func (g *GameState) cameraState() *renderer.CameraState {
	if !g.hasCamera {
		return nil
	}
	cam, ok := ecs.GetComponent[component.Camera](g.entities, g.camera)
	if !ok {
		return nil
	}
	tr, ok := ecs.GetComponent[component.Transform](g.entities, g.camera)
	if !ok {
		return nil
	}
	return &renderer.CameraState{
		View:       tr.PointOfView(),
		Projection: cam.Project(g.opts.Width, g.opts.Height),
		Position:   tr.Position,
		Forward:    tr.Forward(),
	}
}

func shaderLight(l *component.Light, world mgl32.Mat4) gfx.ShaderLight {
	sl := gfx.ShaderLight{
		Kind:         gfx.LightPoint,
		Position:     world.Col(3).Vec3(),
		Direction:    world.Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3().Normalize(),
		Color:        l.Color,
		Ambient:      l.Ambient,
		Constant:     l.Attenuation.Constant,
		Linear:       l.Attenuation.Linear,
		Quadratic:    l.Attenuation.Quadratic,
		Cutoff:       l.Cutoff,
		FadeExponent: l.FadeExponent,
	}
	if l.Kind == component.LightSpot {
		sl.Kind = gfx.LightSpot
	}
	return sl
}
