package ecs

import "iter"

// View is a borrowed window onto one component column. Release it when done;
// until then the column's borrow guard rejects conflicting borrows and any
// structural mutation.
type View[T Component] struct {
	col       *PtrColumn[T]
	exclusive bool
	released  bool
}

// Rows exposes the full column: one optional cell per entity slot.
func (v *View[T]) Rows() []*T { return v.col.cells }

// At returns the cell for id, nil when absent or out of range.
func (v *View[T]) At(id EntityID) *T {
	if int(id) >= len(v.col.cells) {
		return nil
	}
	return v.col.cells[id]
}

func (v *View[T]) Len() int { return len(v.col.cells) }

func (v *View[T]) Release() {
	if v.released {
		return
	}
	v.released = true
	v.col.release(v.exclusive)
}

// Row2 is one joined row of two columns.
type Row2[A, B Component] struct {
	A *A
	B *B
}

// Row3 is one joined row of three columns.
type Row3[A, B, C Component] struct {
	A *A
	B *B
	C *C
}

// With yields every slot holding an A. Presence only: callers holding raw
// ids across a mutation must re-check liveness themselves.
func With[A Component](va *View[A]) iter.Seq2[EntityID, *A] {
	return func(yield func(EntityID, *A) bool) {
		for i, a := range va.col.cells {
			if a == nil {
				continue
			}
			if !yield(EntityID(i), a) {
				return
			}
		}
	}
}

// With2 zips two columns and yields the rows where both cells are present.
func With2[A, B Component](va *View[A], vb *View[B]) iter.Seq2[EntityID, Row2[A, B]] {
	return func(yield func(EntityID, Row2[A, B]) bool) {
		n := min(len(va.col.cells), len(vb.col.cells))
		for i := 0; i < n; i++ {
			a, b := va.col.cells[i], vb.col.cells[i]
			if a == nil || b == nil {
				continue
			}
			if !yield(EntityID(i), Row2[A, B]{A: a, B: b}) {
				return
			}
		}
	}
}

// With3 zips three columns and yields the rows where all cells are present.
func With3[A, B, C Component](va *View[A], vb *View[B], vc *View[C]) iter.Seq2[EntityID, Row3[A, B, C]] {
	return func(yield func(EntityID, Row3[A, B, C]) bool) {
		n := min(len(va.col.cells), len(vb.col.cells), len(vc.col.cells))
		for i := 0; i < n; i++ {
			a, b, c := va.col.cells[i], vb.col.cells[i], vc.col.cells[i]
			if a == nil || b == nil || c == nil {
				continue
			}
			if !yield(EntityID(i), Row3[A, B, C]{A: a, B: b, C: c}) {
				return
			}
		}
	}
}
