// Package updater runs the fixed-timestep simulation: it owns the entity
// store, applies input, steps the systems and publishes render snapshots.
package updater

import (
	"errors"
	"slices"
	"time"

	"github.com/gilgamesh/engine/internal/component"
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/gilgamesh/engine/internal/core/event"
	"github.com/gilgamesh/engine/internal/core/system"
	"github.com/gilgamesh/engine/internal/resource"
	"github.com/gilgamesh/engine/internal/scene"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// ModelRequester is the part of the resource manager the simulation uses.
type ModelRequester interface {
	RequestModels(batch []resource.Request) error
	RequestUnloadModels(batch []resource.Request) error
}

type Options struct {
	Interval         time.Duration
	CapFPS           bool
	MotionSpeed      float32
	MouseSensitivity float32
	MaxLights        int
	Width            int
	Height           int
}

type modelOp struct {
	unload bool
	req    resource.Request
}

// GameState is the simulation's world. It is owned by the update goroutine.
type GameState struct {
	entities *ecs.EntitySystem
	models   ModelRequester
	bus      *event.Bus
	runner   *system.Runner
	opts     Options
	log      *zap.Logger

	camera    ecs.Entity
	hasCamera bool

	lights        []ecs.Entity
	lightsVersion uint64

	// worlds holds each entity's world matrix, keyed by slot.
	worlds map[ecs.EntityID]mgl32.Mat4

	pending []modelOp
	err     error
}

func NewGameState(models ModelRequester, opts Options, log *zap.Logger) *GameState {
	log = log.Named("updater")
	g := &GameState{
		entities: ecs.NewEntitySystem(log.Named("ecs")),
		models:   models,
		bus:      event.NewBus(),
		runner:   system.NewRunner(),
		opts:     opts,
		log:      log,
		worlds:   make(map[ecs.EntityID]mgl32.Mat4, 1024),
	}
	ecs.Register[component.Transform](g.entities)
	ecs.Register[component.Hierarchy](g.entities)
	ecs.Register[component.Velocity](g.entities)
	ecs.Register[component.Camera](g.entities)
	ecs.Register[component.Light](g.entities)
	ecs.Register[component.Model](g.entities)

	event.Subscribe(g.bus, g.moveCamera)
	event.Subscribe(g.bus, g.rotateCamera)
	event.Subscribe(g.bus, g.displaceEntity)

	g.runner.Register(&CommandSystem{bus: g.bus})
	g.runner.Register(&MotionSystem{entities: g.entities})
	g.runner.Register(&TransformSystem{state: g})
	g.runner.Register(&CleanupSystem{state: g})
	return g
}

func (g *GameState) Entities() *ecs.EntitySystem { return g.entities }

func (g *GameState) Bus() *event.Bus { return g.bus }

// Camera returns the active camera entity.
func (g *GameState) Camera() (ecs.Entity, bool) { return g.camera, g.hasCamera }

// Lights returns the registered light entities.
func (g *GameState) Lights() []ecs.Entity { return g.lights }

// World returns e's world matrix as of the last step.
func (g *GameState) World(e ecs.Entity) (mgl32.Mat4, bool) {
	if !g.entities.Alive(e) {
		return mgl32.Mat4{}, false
	}
	m, ok := g.worlds[e.ID]
	return m, ok
}

func (g *GameState) NewEntity() ecs.Entity { return g.entities.NewEntity() }

// Add stores c on e and runs its hook: models are requested, lights and
// cameras registered, hierarchy depth resolved.
func Add[T ecs.Component](g *GameState, e ecs.Entity, c T) bool {
	if !g.entities.Alive(e) {
		return ecs.AddComponent(g.entities, e, c) // logs the stale handle
	}
	if m, ok := any(c).(component.Model); ok {
		if old, had := ecs.GetComponent[component.Model](g.entities, e); had && old.Path != m.Path {
			g.queueModel(true, old.Path, e)
		}
	}
	if !ecs.AddComponent(g.entities, e, c) {
		return false
	}
	switch c := any(c).(type) {
	case component.Model:
		g.queueModel(false, c.Path, e)
	case component.Light:
		if !slices.Contains(g.lights, e) {
			g.lights = append(g.lights, e)
		}
		g.lightsVersion++
	case component.Camera:
		g.camera, g.hasCamera = e, true
	case component.Hierarchy:
		h, _ := ecs.GetComponent[component.Hierarchy](g.entities, e)
		h.Depth = 1
		if ph, ok := ecs.GetComponent[component.Hierarchy](g.entities, c.Parent); ok {
			h.Depth = ph.Depth + 1
		}
	}
	return true
}

// Remove clears e's T and undoes its hook.
func Remove[T ecs.Component](g *GameState, e ecs.Entity) bool {
	if !g.entities.Alive(e) {
		return ecs.RemoveComponent[T](g.entities, e) // logs the stale handle
	}
	var zero T
	switch any(zero).(type) {
	case component.Model:
		if m, ok := ecs.GetComponent[component.Model](g.entities, e); ok {
			g.queueModel(true, m.Path, e)
		}
	case component.Light:
		g.dropLight(e)
	case component.Camera:
		if g.hasCamera && g.camera == e {
			g.hasCamera = false
		}
	case component.Transform:
		delete(g.worlds, e.ID)
	}
	return ecs.RemoveComponent[T](g.entities, e)
}

// DeleteEntity removes e now, releasing its model and light registrations.
func (g *GameState) DeleteEntity(e ecs.Entity) bool {
	if !g.entities.Alive(e) {
		return g.entities.DeleteEntity(e) // logs the stale handle
	}
	g.beforeDelete(e)
	return g.entities.DeleteEntity(e)
}

// MarkForDestruction defers e's deletion to the end of the current step.
func (g *GameState) MarkForDestruction(e ecs.Entity) {
	g.entities.MarkForDestruction(e)
}

func (g *GameState) beforeDelete(e ecs.Entity) {
	if m, ok := ecs.GetComponent[component.Model](g.entities, e); ok {
		g.queueModel(true, m.Path, e)
	}
	if _, ok := ecs.GetComponent[component.Light](g.entities, e); ok {
		g.dropLight(e)
	}
	if g.hasCamera && g.camera == e {
		g.hasCamera = false
	}
	delete(g.worlds, e.ID)
}

func (g *GameState) dropLight(e ecs.Entity) {
	if i := slices.Index(g.lights, e); i >= 0 {
		g.lights = slices.Delete(g.lights, i, i+1)
		g.lightsVersion++
	}
}

func (g *GameState) queueModel(unload bool, path string, e ecs.Entity) {
	g.pending = append(g.pending, modelOp{unload: unload, req: resource.Request{Path: path, Entity: e}})
}

// FlushModelRequests sends queued model loads and unloads to the resource
// manager as batches, preserving the order they were queued in.
func (g *GameState) FlushModelRequests() error {
	var errs []error
	for len(g.pending) > 0 {
		unload := g.pending[0].unload
		n := 1
		for n < len(g.pending) && g.pending[n].unload == unload {
			n++
		}
		batch := make([]resource.Request, n)
		for i := range batch {
			batch[i] = g.pending[i].req
		}
		g.pending = g.pending[n:]
		if unload {
			errs = append(errs, g.models.RequestUnloadModels(batch))
		} else {
			errs = append(errs, g.models.RequestModels(batch))
		}
	}
	g.pending = nil
	return errors.Join(errs...)
}

// Populate creates the entities a scene script spawned and requests their
// models.
func (g *GameState) Populate(spawns []scene.Spawn) ([]ecs.Entity, error) {
	out := make([]ecs.Entity, len(spawns))
	for i, s := range spawns {
		e := g.NewEntity()
		out[i] = e
		if s.Transform != nil {
			Add(g, e, *s.Transform)
		}
		if s.Parent > 0 {
			Add(g, e, component.Hierarchy{Parent: out[s.Parent-1]})
		}
		if s.Velocity != nil {
			Add(g, e, *s.Velocity)
		}
		if s.Camera != nil {
			Add(g, e, *s.Camera)
		}
		if s.Light != nil {
			Add(g, e, *s.Light)
		}
		if s.Model != nil {
			Add(g, e, *s.Model)
		}
	}
	g.log.Info("world populated",
		zap.Int("entities", len(out)),
		zap.Int("lights", len(g.lights)),
		zap.Bool("camera", g.hasCamera))
	return out, g.FlushModelRequests()
}

// Step advances the world by one fixed step.
func (g *GameState) Step(dt time.Duration) {
	g.runner.Step(dt)
}

// Err returns the first error a step hit, if any.
func (g *GameState) Err() error { return g.err }

func (g *GameState) fail(err error) {
	if err != nil && g.err == nil {
		g.err = err
	}
}

func (g *GameState) moveCamera(cmd event.MoveCamera) {
	if tr := g.cameraTransform(); tr != nil {
		tr.DisplaceBy(cmd.Direction)
	}
}

func (g *GameState) rotateCamera(cmd event.RotateCamera) {
	if tr := g.cameraTransform(); tr != nil {
		tr.Rotate(cmd.PitchYawRoll)
	}
}

func (g *GameState) displaceEntity(cmd event.DisplaceEntity) {
	if tr, ok := ecs.GetComponent[component.Transform](g.entities, cmd.Entity); ok {
		tr.DisplaceBy(cmd.Offset)
	}
}

func (g *GameState) cameraTransform() *component.Transform {
	if !g.hasCamera {
		return nil
	}
	tr, _ := ecs.GetComponent[component.Transform](g.entities, g.camera)
	return tr
}
