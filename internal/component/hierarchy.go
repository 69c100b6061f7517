package component

import "github.com/gilgamesh/engine/internal/core/ecs"

// Hierarchy parents an entity's transform to another entity's. Depth is the
// number of ancestors, so parents sort before children.
type Hierarchy struct {
	Parent ecs.Entity
	Depth  int
}

func (Hierarchy) ComponentID() ecs.ComponentID { return "hierarchy" }
