package ecs

import "fmt"

// EntityID indexes a slot in every component column. Slots are recycled.
type EntityID uint32

// Generation is a stamp taken from the store-wide generation counter at the
// moment a slot was (re)issued.
type Generation uint64

// Entity is a generational handle: the slot plus the generation of the
// occupant it was issued to. A handle whose generation no longer matches the
// slot's current occupant is stale.
type Entity struct {
	ID         EntityID
	Generation Generation
}

func (e Entity) String() string {
	return fmt.Sprintf("Entity(%d:%d)", e.ID, e.Generation)
}

// entityPool allocates slots with LIFO reuse and stamps each issue with a
// single monotonically increasing counter shared by all slots. Both issuing
// and freeing a slot advance the counter.
type entityPool struct {
	count      int
	generation Generation
	current    map[EntityID]Generation
	freeList   []EntityID
}

func newEntityPool() *entityPool {
	return &entityPool{
		current:  make(map[EntityID]Generation, 1024),
		freeList: make([]EntityID, 0, 256),
	}
}

// create returns the issued entity and whether its slot is brand new (the
// caller must widen every column when it is).
func (p *entityPool) create() (Entity, bool) {
	p.generation++
	if n := len(p.freeList); n > 0 {
		id := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.current[id] = p.generation
		return Entity{ID: id, Generation: p.generation}, false
	}
	id := EntityID(p.count)
	p.count++
	p.current[id] = p.generation
	return Entity{ID: id, Generation: p.generation}, true
}

func (p *entityPool) alive(e Entity) bool {
	g, ok := p.current[e.ID]
	return ok && g == e.Generation
}

// destroy frees a live entity's slot. Stale handles are ignored.
func (p *entityPool) destroy(e Entity) bool {
	if !p.alive(e) {
		return false
	}
	p.generation++
	delete(p.current, e.ID)
	p.freeList = append(p.freeList, e.ID)
	return true
}
