package ecs

import "fmt"

// ComponentID names a component type. It keys the column registry.
type ComponentID string

// Component is implemented by every type stored in the EntitySystem.
// ComponentID must not depend on the receiver's value.
type Component interface {
	ComponentID() ComponentID
}

// Column is the type-erased capability set the EntitySystem needs from every
// per-type store: grow by one empty cell, clear one cell, and report length.
type Column interface {
	Widen()
	ClearAt(id EntityID)
	Len() int
}

// PtrColumn stores one optional *T per entity slot, indexed by EntityID.
// It carries a borrow guard: any number of shared views or exactly one
// exclusive view may be live at a time.
type PtrColumn[T Component] struct {
	cells   []*T
	borrows int // >0 shared views, -1 exclusive view
}

func newPtrColumn[T Component](length int) *PtrColumn[T] {
	return &PtrColumn[T]{cells: make([]*T, length, max(length, 64))}
}

func (c *PtrColumn[T]) Widen() {
	c.assertUnborrowed()
	c.cells = append(c.cells, nil)
}

func (c *PtrColumn[T]) ClearAt(id EntityID) {
	c.assertUnborrowed()
	c.cells[id] = nil
}

func (c *PtrColumn[T]) Len() int {
	return len(c.cells)
}

func (c *PtrColumn[T]) set(id EntityID, v *T) {
	c.assertUnborrowed()
	c.cells[id] = v
}

func (c *PtrColumn[T]) get(id EntityID) *T {
	if c.borrows < 0 {
		panic(fmt.Sprintf("ecs: column %q is exclusively borrowed", componentID[T]()))
	}
	return c.cells[id]
}

func (c *PtrColumn[T]) borrowShared() {
	if c.borrows < 0 {
		panic(fmt.Sprintf("ecs: column %q already exclusively borrowed", componentID[T]()))
	}
	c.borrows++
}

func (c *PtrColumn[T]) borrowExclusive() {
	if c.borrows != 0 {
		panic(fmt.Sprintf("ecs: column %q already borrowed", componentID[T]()))
	}
	c.borrows = -1
}

func (c *PtrColumn[T]) release(exclusive bool) {
	if exclusive {
		c.borrows = 0
		return
	}
	c.borrows--
}

func (c *PtrColumn[T]) assertUnborrowed() {
	if c.borrows != 0 {
		panic(fmt.Sprintf("ecs: column %q mutated while borrowed", componentID[T]()))
	}
}

func componentID[T Component]() ComponentID {
	var zero T
	return zero.ComponentID()
}
