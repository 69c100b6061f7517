package updater

import (
	"cmp"
	"slices"
	"time"

	"github.com/gilgamesh/engine/internal/component"
	"github.com/gilgamesh/engine/internal/core/ecs"
	"github.com/gilgamesh/engine/internal/core/event"
	"github.com/gilgamesh/engine/internal/core/system"
	"github.com/go-gl/mathgl/mgl32"
)

// CommandSystem applies the scene commands emitted since the previous step.
type CommandSystem struct {
	bus *event.Bus
}

func (s *CommandSystem) Phase() system.Phase { return system.PhaseCommands }

func (s *CommandSystem) Update(time.Duration) {
	// The front buffer is only dispatched right after a swap, so an idle
	// step can leave both buffers alone.
	if s.bus.Pending() == 0 {
		return
	}
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// MotionSystem moves every entity carrying a Velocity.
type MotionSystem struct {
	entities *ecs.EntitySystem
}

func (s *MotionSystem) Phase() system.Phase { return system.PhaseUpdate }

func (s *MotionSystem) Update(dt time.Duration) {
	secs := float32(dt.Seconds())
	tv := ecs.ColumnsMut[component.Transform](s.entities)
	defer tv.Release()
	vv := ecs.Columns[component.Velocity](s.entities)
	defer vv.Release()

	for _, row := range ecs.With2(tv, vv) {
		tr, v := row.A, row.B
		if v.Linear != (mgl32.Vec3{}) {
			tr.Translate(v.Linear.Mul(secs))
		}
		if v.Angular != (mgl32.Vec3{}) {
			tr.Rotate(v.Angular.Mul(secs))
		}
	}
}

// TransformSystem recomputes world matrices for dirty transforms, parents
// before children. A child whose parent moved is recomputed even when its own
// transform is clean. A child whose parent is stale or has no transform falls
// back to its local matrix and loses its Hierarchy.
type TransformSystem struct {
	state   *GameState
	order   []ecs.EntityID
	orphans []ecs.EntityID
	changed map[ecs.EntityID]bool
	depths  map[ecs.EntityID]int
}

func (s *TransformSystem) Phase() system.Phase { return system.PhaseTransforms }

func (s *TransformSystem) Update(time.Duration) {
	s.propagate()
	// Orphans become roots once their world matrix has been reset.
	for _, id := range s.orphans {
		if e, ok := s.state.entities.CurrentEntity(id); ok {
			ecs.RemoveComponent[component.Hierarchy](s.state.entities, e)
		}
	}
}

func (s *TransformSystem) propagate() {
	g := s.state
	tv := ecs.ColumnsMut[component.Transform](g.entities)
	defer tv.Release()
	hv := ecs.ColumnsMut[component.Hierarchy](g.entities)
	defer hv.Release()

	s.order = s.order[:0]
	s.orphans = s.orphans[:0]
	for id := range ecs.With(tv) {
		s.order = append(s.order, id)
	}
	s.resolveDepths(hv)
	slices.SortStableFunc(s.order, func(a, b ecs.EntityID) int {
		return cmp.Compare(depth(hv.At(a)), depth(hv.At(b)))
	})

	if s.changed == nil {
		s.changed = make(map[ecs.EntityID]bool, len(s.order))
	}
	clear(s.changed)

	for _, id := range s.order {
		tr := tv.At(id)
		h := hv.At(id)

		var parent *mgl32.Mat4
		parentChanged := false
		if h != nil {
			pm, ok := g.worlds[h.Parent.ID]
			if ok && g.entities.Alive(h.Parent) && tv.At(h.Parent.ID) != nil {
				parent = &pm
				parentChanged = s.changed[h.Parent.ID]
			} else {
				s.orphans = append(s.orphans, id)
				parentChanged = true
			}
		}
		if _, known := g.worlds[id]; known && !tr.Dirty && !parentChanged {
			continue
		}

		world := tr.Matrix()
		if parent != nil {
			world = parent.Mul4(world)
		}
		g.worlds[id] = world
		s.changed[id] = true
	}
	for _, id := range s.order {
		tv.At(id).Dirty = false
	}
}

// resolveDepths recomputes every Hierarchy depth from the current parent
// chain; a parent can gain or lose its own parent after its children were
// attached. A dead parent ends the chain.
func (s *TransformSystem) resolveDepths(hv *ecs.View[component.Hierarchy]) {
	if s.depths == nil {
		s.depths = make(map[ecs.EntityID]int, len(s.order))
	}
	clear(s.depths)

	var resolve func(id ecs.EntityID, budget int) int
	resolve = func(id ecs.EntityID, budget int) int {
		h := hv.At(id)
		if h == nil {
			return 0
		}
		if d, ok := s.depths[id]; ok {
			return d
		}
		d := 1
		// budget bounds the walk if a script builds a parent cycle.
		if budget > 0 && s.state.entities.Alive(h.Parent) {
			d = resolve(h.Parent.ID, budget-1) + 1
		}
		s.depths[id] = d
		h.Depth = d
		return d
	}
	for id := range ecs.With(hv) {
		resolve(id, hv.Len())
	}
}

func depth(h *component.Hierarchy) int {
	if h == nil {
		return 0
	}
	return h.Depth
}

// CleanupSystem deletes entities marked for destruction and sends the model
// requests queued during the step.
type CleanupSystem struct {
	state *GameState
}

func (s *CleanupSystem) Phase() system.Phase { return system.PhaseCleanup }

func (s *CleanupSystem) Update(time.Duration) {
	g := s.state
	g.entities.FlushDestroyQueue(g.beforeDelete)
	g.fail(g.FlushModelRequests())
}
