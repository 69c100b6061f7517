package ecs

import (
	"fmt"
	"maps"

	"go.uber.org/zap"
)

// EntitySystem owns entity identity and one type-erased column per component
// type. Every column's length equals EntityCount at all times.
//
// Not safe for concurrent use: the simulation goroutine owns it.
type EntitySystem struct {
	pool         *entityPool
	columns      map[ComponentID]Column
	destroyQueue []Entity
	log          *zap.Logger
}

func NewEntitySystem(log *zap.Logger) *EntitySystem {
	return &EntitySystem{
		pool:         newEntityPool(),
		columns:      make(map[ComponentID]Column, 16),
		destroyQueue: make([]Entity, 0, 64),
		log:          log,
	}
}

// NewEntity issues a fresh handle, reusing the most recently freed slot first.
func (s *EntitySystem) NewEntity() Entity {
	e, grown := s.pool.create()
	if grown {
		for _, col := range s.columns {
			col.Widen()
		}
	}
	return e
}

// DeleteEntity clears every component cell of e and frees its slot.
// Stale handles are logged and ignored.
func (s *EntitySystem) DeleteEntity(e Entity) bool {
	if !s.checkLive(e, "delete_entity") {
		return false
	}
	for _, col := range s.columns {
		col.ClearAt(e.ID)
	}
	s.pool.destroy(e)
	return true
}

// Alive reports whether e still refers to the current occupant of its slot.
func (s *EntitySystem) Alive(e Entity) bool {
	return s.pool.alive(e)
}

// CurrentEntity returns the live handle occupying slot id, if any.
func (s *EntitySystem) CurrentEntity(id EntityID) (Entity, bool) {
	g, ok := s.pool.current[id]
	if !ok {
		return Entity{}, false
	}
	return Entity{ID: id, Generation: g}, true
}

// EntityCount is the number of slots ever allocated.
func (s *EntitySystem) EntityCount() int { return s.pool.count }

// LiveCount is the number of occupied slots.
func (s *EntitySystem) LiveCount() int { return len(s.pool.current) }

// Generations returns a copy of the slot -> current generation table.
func (s *EntitySystem) Generations() map[EntityID]Generation {
	return maps.Clone(s.pool.current)
}

// MarkForDestruction queues e for deletion at the end of the current step.
func (s *EntitySystem) MarkForDestruction(e Entity) {
	s.destroyQueue = append(s.destroyQueue, e)
}

// FlushDestroyQueue deletes all queued entities. before, if non-nil, runs for
// each still-live entity ahead of its deletion.
func (s *EntitySystem) FlushDestroyQueue(before func(Entity)) int {
	n := 0
	for _, e := range s.destroyQueue {
		if before != nil && s.pool.alive(e) {
			before(e)
		}
		if s.DeleteEntity(e) {
			n++
		}
	}
	s.destroyQueue = s.destroyQueue[:0]
	return n
}

func (s *EntitySystem) checkLive(e Entity, op string) bool {
	if s.pool.alive(e) {
		return true
	}
	current, ok := s.pool.current[e.ID]
	s.log.Warn("stale entity handle",
		zap.String("op", op),
		zap.Uint32("id", uint32(e.ID)),
		zap.Uint64("generation", uint64(e.Generation)),
		zap.Uint64("current", uint64(current)),
		zap.Bool("occupied", ok),
	)
	return false
}

// AddComponent stores c for e, creating T's column on first use.
func AddComponent[T Component](s *EntitySystem, e Entity, c T) bool {
	if !s.checkLive(e, "add_component") {
		return false
	}
	col := columnOf[T](s)
	if col == nil {
		col = newPtrColumn[T](s.pool.count)
		s.columns[componentID[T]()] = col
	}
	col.set(e.ID, &c)
	return true
}

// RemoveComponent clears e's T cell. It reports whether e was live.
func RemoveComponent[T Component](s *EntitySystem, e Entity) bool {
	if !s.checkLive(e, "remove_component") {
		return false
	}
	if col := columnOf[T](s); col != nil {
		col.ClearAt(e.ID)
	}
	return true
}

// GetComponent returns e's T, or false when e is stale or has none.
func GetComponent[T Component](s *EntitySystem, e Entity) (*T, bool) {
	if !s.checkLive(e, "get_component") {
		return nil, false
	}
	col := columnOf[T](s)
	if col == nil {
		return nil, false
	}
	c := col.get(e.ID)
	return c, c != nil
}

// Register creates T's column if it does not exist yet, so views over T can
// be borrowed before any entity carries one.
func Register[T Component](s *EntitySystem) {
	if columnOf[T](s) == nil {
		s.columns[componentID[T]()] = newPtrColumn[T](s.pool.count)
	}
}

// Columns borrows T's column for reading. Requesting a type that was never
// registered is a programmer error and panics.
func Columns[T Component](s *EntitySystem) *View[T] {
	col := mustColumn[T](s)
	col.borrowShared()
	return &View[T]{col: col}
}

// ColumnsMut borrows T's column exclusively.
func ColumnsMut[T Component](s *EntitySystem) *View[T] {
	col := mustColumn[T](s)
	col.borrowExclusive()
	return &View[T]{col: col, exclusive: true}
}

func columnOf[T Component](s *EntitySystem) *PtrColumn[T] {
	raw, ok := s.columns[componentID[T]()]
	if !ok {
		return nil
	}
	col, ok := raw.(*PtrColumn[T])
	if !ok {
		panic(fmt.Sprintf("ecs: component id %q registered with a different type", componentID[T]()))
	}
	return col
}

func mustColumn[T Component](s *EntitySystem) *PtrColumn[T] {
	col := columnOf[T](s)
	if col == nil {
		panic(fmt.Sprintf("ecs: component column %q was never registered", componentID[T]()))
	}
	return col
}
