package component

import "github.com/gilgamesh/engine/internal/core/ecs"

// Model references a model asset by path. The asset itself lives in the
// render thread's live model table once loaded.
type Model struct {
	Path          string
	ShaderProgram int
}

func (Model) ComponentID() ecs.ComponentID { return "model" }
