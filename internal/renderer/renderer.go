// Package renderer runs the variable-rate render loop: it takes the latest
// world snapshot, forwards input to the simulation, integrates loaded models
// and draws through the graphics context.
package renderer

import (
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gilgamesh/engine/internal/core/deaddrop"
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/gilgamesh/engine/internal/core/event"
	"github.com/gilgamesh/engine/internal/gfx"
	"github.com/gilgamesh/engine/internal/input"
	"github.com/gilgamesh/engine/internal/model"
	"github.com/gilgamesh/engine/internal/platform"
	"github.com/gilgamesh/engine/internal/resource"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// ModelIntegrator is the part of the resource manager the render loop uses.
type ModelIntegrator interface {
	TryIntegrateLoadedModels(live map[string]*model.Model, g resource.GraphicsContext) (bool, error)
}

type Options struct {
	// UpdateInterval throttles input polling to the simulation rate.
	UpdateInterval time.Duration
	// CapFPS sleeps out the rest of each update interval.
	CapFPS bool
	// MaxFrames stops the loop after that many frames; 0 runs until the
	// running flag clears.
	MaxFrames int
}

// instanceCache mirrors what was last written to a model's instance buffer.
type instanceCache struct {
	entities []ecs.Entity
	matrices []mgl32.Mat4
	missing  int
	world    *WorldState
}

// RenderState is everything the render goroutine owns.
type RenderState struct {
	world  *WorldState
	models map[string]*model.Model
	caches map[string]*instanceCache

	lightsVersion  uint64
	lightsUploaded bool

	lastDTs [2]time.Duration
	avgDT   time.Duration
	lag     time.Duration
	frames  int
}

func NewRenderState() *RenderState {
	return &RenderState{
		models: make(map[string]*model.Model),
		caches: make(map[string]*instanceCache),
	}
}

// Models is the live model table, keyed by asset path.
func (s *RenderState) Models() map[string]*model.Model { return s.models }

// FPS is the frame rate over the last three frames.
func (s *RenderState) FPS() float64 {
	if s.avgDT <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.avgDT)
}

func (s *RenderState) Frames() int { return s.frames }

// Loop is the render loop. It must run on the goroutine that owns the
// graphics context and platform.
type Loop struct {
	state     *RenderState
	gfx       gfx.Context
	platform  platform.Platform
	resources ModelIntegrator
	in        *deaddrop.DeadDrop[*WorldState]
	events    *event.Queue[input.Event]
	running   *atomic.Bool
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

func NewLoop(
	g gfx.Context,
	p platform.Platform,
	resources ModelIntegrator,
	in *deaddrop.DeadDrop[*WorldState],
	events *event.Queue[input.Event],
	running *atomic.Bool,
	opts Options,
	log *zap.Logger,
) *Loop {
	return &Loop{
		state:     NewRenderState(),
		gfx:       g,
		platform:  p,
		resources: resources,
		in:        in,
		events:    events,
		running:   running,
		opts:      opts,
		log:       log.Named("renderer"),
		now:       time.Now,
	}
}

func (l *Loop) State() *RenderState { return l.state }

// Run renders until the running flag clears, a frame fails or MaxFrames is
// reached, then clears the flag so the simulation stops too. Live models are
// released on the way out.
func (l *Loop) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer l.running.Store(false)
	defer l.releaseAll()

	l.log.Info("render loop started")
	last := l.now()
	for l.running.Load() {
		start := l.now()
		if err := l.Frame(start.Sub(last)); err != nil {
			l.log.Error("render loop failed", zap.Error(err))
			return err
		}
		last = start

		if l.opts.MaxFrames > 0 && l.state.frames >= l.opts.MaxFrames {
			l.log.Info("frame limit reached", zap.Int("frames", l.state.frames))
			break
		}
		if l.opts.CapFPS {
			if rest := l.opts.UpdateInterval - l.now().Sub(start); rest > 0 {
				time.Sleep(rest)
			}
		}
	}
	l.log.Info("render loop stopped",
		zap.Int("frames", l.state.frames),
		zap.Float64("fps", l.state.FPS()))
	return nil
}

// Frame runs one render iteration for a frame time of dt.
func (l *Loop) Frame(dt time.Duration) error {
	s := l.state
	s.avgDT = (s.lastDTs[0] + s.lastDTs[1] + dt) / 3
	s.lastDTs[0], s.lastDTs[1] = s.lastDTs[1], dt

	if ws, ok := l.in.Recv(); ok {
		s.world = ws
	}

	s.lag += dt
	if s.lag > l.opts.UpdateInterval {
		l.pollInput()
		s.lag = 0
	}

	if _, err := l.resources.TryIntegrateLoadedModels(s.models, l.gfx); err != nil {
		return fmt.Errorf("integrate models: %w", err)
	}

	l.draw()
	s.frames++
	return nil
}

// pollInput forwards platform events to the simulation. Escape toggles
// mouse capture here instead; while captured, one aggregated frame event
// carries the held keys and mouse motion.
func (l *Loop) pollInput() {
	for _, ev := range l.platform.PollEvents() {
		if ev.Kind == input.KindKeyDown && ev.Scancode == input.ScancodeEscape {
			l.platform.SetRelativeMouseMode(!l.platform.RelativeMouseMode())
			continue
		}
		l.events.Push(ev)
	}
	if l.platform.RelativeMouseMode() {
		dx, dy := l.platform.RelativeMouseState()
		l.events.Push(input.Frame(l.platform.KeyboardState(), dx, dy))
	}
}

func (l *Loop) draw() {
	s := l.state
	l.gfx.BeginFrame()

	instances := 0
	if ws := s.world; ws != nil && ws.Camera != nil {
		if !s.lightsUploaded || ws.LightsVersion != s.lightsVersion {
			l.gfx.SetLights(ws.Lights)
			s.lightsVersion, s.lightsUploaded = ws.LightsVersion, true
		}
		for _, path := range slices.Sorted(maps.Keys(s.models)) {
			m := s.models[path]
			c := l.syncInstances(path, m, ws)
			if len(c.entities) == 0 {
				continue
			}
			l.gfx.DrawInstanced(m, ws.Camera.View, ws.Camera.Projection, len(c.entities))
			instances += len(c.entities)
		}
	}
	for path := range s.caches {
		if _, ok := s.models[path]; !ok {
			delete(s.caches, path)
		}
	}

	l.gfx.DrawOverlay(l.overlay(instances))
	l.gfx.Present()
}

// syncInstances brings m's instance buffer up to date with ws. Membership
// changes, newly stale entities and entities still waiting for a transform
// force a full upload; otherwise only moved instances are patched.
func (l *Loop) syncInstances(path string, m *model.Model, ws *WorldState) *instanceCache {
	c, ok := l.state.caches[path]
	if !ok {
		c = &instanceCache{}
		l.state.caches[path] = c
	}
	if c.world == ws && !m.EntitiesDirty {
		return c
	}

	rebuild := m.EntitiesDirty || c.missing > 0
	if !rebuild {
		for i, e := range c.entities {
			mat, ok := ws.Transform(e)
			if !ok {
				rebuild = true
				break
			}
			if mat != c.matrices[i] {
				c.matrices[i] = mat
				l.gfx.PatchInstance(m, i, mat)
			}
		}
	}

	if rebuild {
		c.entities = c.entities[:0]
		c.matrices = c.matrices[:0]
		c.missing = 0
		for _, e := range m.EntityList() {
			mat, ok := ws.Transform(e)
			if !ok {
				c.missing++
				continue
			}
			c.entities = append(c.entities, e)
			c.matrices = append(c.matrices, mat)
		}
		l.gfx.UploadInstances(m, c.matrices)
		m.EntitiesDirty = false
	}
	c.world = ws
	return c
}

func (l *Loop) overlay(instances int) []string {
	s := l.state
	lines := []string{
		fmt.Sprintf("fps %.0f  frame %s", s.FPS(), s.avgDT.Round(100*time.Microsecond)),
	}
	if ws := s.world; ws != nil {
		if ws.Camera != nil {
			p, f := ws.Camera.Position, ws.Camera.Forward
			lines = append(lines, fmt.Sprintf("camera (%.1f, %.1f, %.1f) facing (%.2f, %.2f, %.2f)",
				p.X(), p.Y(), p.Z(), f.X(), f.Y(), f.Z()))
		}
		lines = append(lines, fmt.Sprintf("entities %d  lights %d", ws.Entities, len(ws.Lights)))
	}
	lines = append(lines, fmt.Sprintf("models %d  instances %d", len(s.models), instances))
	if !l.platform.RelativeMouseMode() {
		lines = append(lines, "esc: capture mouse")
	}
	return lines
}

func (l *Loop) releaseAll() {
	for path, m := range l.state.models {
		l.gfx.Release(m)
		delete(l.state.models, path)
	}
}
